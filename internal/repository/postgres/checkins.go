package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kmelnyk/gatecheck/internal/domain"
)

type CheckinRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CheckinRepo) With(db DB) *CheckinRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CheckinRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert appends a check-in record. The log is append-only; rows are never
// updated after creation.
func (r *CheckinRepo) Insert(ctx context.Context, c *domain.Checkin) error {
	const op = "postgres.CheckinRepo.Insert"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO checkins (id, ticket_id, event_id, scanner_id, status, scan_time)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.TicketID, c.EventID, c.ScannerID, c.Status, c.ScanTime,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// ListByEvent returns the check-in log for an event, newest first.
func (r *CheckinRepo) ListByEvent(ctx context.Context, eventID int64, limit, offset int) ([]domain.Checkin, error) {
	const op = "postgres.CheckinRepo.ListByEvent"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, ticket_id, event_id, scanner_id, status, scan_time
		 FROM checkins
		 WHERE event_id = $1
		 ORDER BY scan_time DESC
		 LIMIT $2 OFFSET $3`,
		eventID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Checkin
	for rows.Next() {
		var c domain.Checkin
		if err := rows.Scan(&c.ID, &c.TicketID, &c.EventID, &c.ScannerID, &c.Status, &c.ScanTime); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
