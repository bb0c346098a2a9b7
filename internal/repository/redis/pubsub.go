package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CheckinPubSub broadcasts successful redemptions so live attendance
// dashboards can update without polling.
type CheckinPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewCheckinPubSub(rdb *redis.Client) *CheckinPubSub {
	return &CheckinPubSub{
		rdb:     rdb,
		channel: ChannelCheckins(),
	}
}

type ticketRedeemedMsg struct {
	Type     string `json:"type"`
	EventID  int64  `json:"event_id"`
	TicketID string `json:"ticket_id"`
	TsUnix   int64  `json:"ts_unix"`
}

func (p *CheckinPubSub) PublishTicketRedeemed(ctx context.Context, eventID int64, ticketID uuid.UUID) error {
	msg := ticketRedeemedMsg{
		Type:     "ticket_redeemed",
		EventID:  eventID,
		TicketID: ticketID.String(),
		TsUnix:   time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}
