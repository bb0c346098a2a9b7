package service

import (
	"log/slog"

	"github.com/kmelnyk/gatecheck/internal/notify"
	postgres "github.com/kmelnyk/gatecheck/internal/repository/postgres"
	redis "github.com/kmelnyk/gatecheck/internal/repository/redis"
	"github.com/kmelnyk/gatecheck/internal/service/checkin"
	"github.com/kmelnyk/gatecheck/internal/service/query"
	"github.com/kmelnyk/gatecheck/internal/service/registration"
)

type Services struct {
	Registration *registration.Service
	Checkin      *checkin.Service
	Query        *query.Service
}

type Config struct {
	Registration registration.Config
	Checkin      checkin.Config
	Query        query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.CheckinPubSub,
	limiter *redis.SlidingWindowLimiter,
	dispatcher notify.Dispatcher,
	logger *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Registration: registration.New(store, cache, dispatcher, logger, cfg.Registration),
		Checkin:      checkin.New(store, cache, pubsub, limiter, logger, cfg.Checkin),
		Query:        query.New(store, cache, cfg.Query),
	}
}
