package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kmelnyk/gatecheck/internal/notify"
	redisrepo "github.com/kmelnyk/gatecheck/internal/repository/redis"
	"github.com/kmelnyk/gatecheck/internal/service"
	"github.com/kmelnyk/gatecheck/internal/service/checkin"
	"github.com/kmelnyk/gatecheck/internal/service/query"
	"github.com/kmelnyk/gatecheck/internal/service/registration"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Registration API
	r.POST("/registrations", handleRegister(svcs, idem))
	r.GET("/registrations/:id", handleGetRegistration(svcs))
	r.DELETE("/registrations/:id", handleCancelRegistration(svcs))

	// Scanning API
	r.POST("/scan", handleScan(svcs))
	r.GET("/tickets/:code", handleDescribeTicket(svcs))
	r.GET("/tickets/:code/qr", handleTicketQR(svcs))

	// Reporting API
	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events/:id/attendance", handleGetAttendance(svcs))
	r.GET("/events/:id/checkins", handleListCheckins(svcs))

	return r
}

func handleRegister(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemRegister(req.EventID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		reg, ticket, err := svcs.Registration.Register(
			c.Request.Context(),
			req.EventID,
			req.UserID,
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := toRegistrationResponse(reg, ticket)

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func handleGetRegistration(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		reg, err := svcs.Registration.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toRegistrationResponse(reg, nil))
	}
}

func handleCancelRegistration(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		reg, ticket, err := svcs.Registration.Cancel(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toRegistrationResponse(reg, ticket))
	}
}

func handleScan(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		rlKey := "scanner:" + strconv.FormatInt(req.ScannerID, 10)

		result, err := svcs.Checkin.Redeem(
			c.Request.Context(),
			req.Code,
			req.EventID,
			req.ScannerID,
			time.Now().UTC(),
			rlKey,
		)
		if err != nil {
			respondScanErr(c, err)
			return
		}

		c.JSON(http.StatusOK, ScanResponse{
			Result:     "success",
			CheckinID:  result.CheckinID.String(),
			Attendee:   result.AttendeeName,
			EventTitle: result.EventTitle,
			RedeemedAt: result.RedeemedAt,
		})
	}
}

func handleDescribeTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		details, err := svcs.Checkin.Describe(c.Request.Context(), c.Param("code"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toTicketResponse(details))
	}
}

func handleTicketQR(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		details, err := svcs.Checkin.Describe(c.Request.Context(), c.Param("code"))
		if err != nil {
			respondErr(c, err)
			return
		}

		png, err := notify.RenderQR(details.Code)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Data(http.StatusOK, "image/png", png)
	}
}

func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		e, err := svcs.Query.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, e, "public, max-age=60", true)
	}
}

func handleGetAttendance(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		counts, err := svcs.Query.Attendance(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, counts, "public, max-age=15", true)
	}
}

func handleListCheckins(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		limit := parseIntDefault(c.Query("limit"), 100)
		offset := parseIntDefault(c.Query("offset"), 0)

		list, err := svcs.Query.Checkins(c.Request.Context(), eventID, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, list)
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// respondScanErr maps every distinct scan failure to a machine-readable
// reason. Collapsing these into one generic error would leave the operator
// staring at a blank rejection.
func respondScanErr(c *gin.Context, err error) {
	var redeemed *checkin.AlreadyRedeemedError
	if errors.As(err, &redeemed) {
		c.JSON(http.StatusConflict, ScanErrorResponse{
			Result: "rejected",
			Reason: "already_redeemed",
			Detail: redeemed.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, checkin.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ScanErrorResponse{
			Result: "rejected", Reason: "ticket_not_found",
		})
	case errors.Is(err, checkin.ErrAlreadyRedeemed):
		c.JSON(http.StatusConflict, ScanErrorResponse{
			Result: "rejected", Reason: "already_redeemed",
		})
	case errors.Is(err, checkin.ErrTicketCancelled):
		c.JSON(http.StatusConflict, ScanErrorResponse{
			Result: "rejected", Reason: "cancelled",
		})
	case errors.Is(err, checkin.ErrWrongEvent):
		c.JSON(http.StatusConflict, ScanErrorResponse{
			Result: "rejected", Reason: "wrong_event",
		})
	case errors.Is(err, checkin.ErrTicketExpired):
		c.JSON(http.StatusConflict, ScanErrorResponse{
			Result: "rejected", Reason: "expired",
		})
	case errors.Is(err, checkin.ErrEventNotStarted):
		c.JSON(http.StatusConflict, ScanErrorResponse{
			Result: "rejected", Reason: "not_started",
		})
	case errors.Is(err, checkin.ErrEventEnded):
		c.JSON(http.StatusConflict, ScanErrorResponse{
			Result: "rejected", Reason: "ended",
		})
	case errors.Is(err, checkin.ErrRateLimited):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusTooManyRequests, ScanErrorResponse{
			Result: "rejected", Reason: "rate_limited",
		})
	case errors.Is(err, checkin.ErrTransient):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ScanErrorResponse{
			Result: "retry", Reason: "transient",
		})
	default:
		c.JSON(http.StatusInternalServerError, ScanErrorResponse{
			Result: "error", Reason: "internal",
		})
	}
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// registration service
	case errors.Is(err, registration.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, registration.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
	case errors.Is(err, registration.ErrRegistrationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "registration not found"})
	case errors.Is(err, registration.ErrEventNotOpen):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event is not open for registration"})
	case errors.Is(err, registration.ErrAlreadyRegistered):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "already registered"})
	case errors.Is(err, registration.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event is at capacity"})
	case errors.Is(err, registration.ErrTransient):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "temporary failure, retry"})
	// checkin service
	case errors.Is(err, checkin.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket not found"})
	// query service
	case errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
