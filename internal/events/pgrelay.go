package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/sqlinline"
)

// DefaultChannel is the Postgres NOTIFY channel carrying ad events.
const DefaultChannel = "ad_events"

type envelope struct {
	AdID  string `json:"adId"`
	Event Event  `json:"event"`
}

// PgRelay publishes through pg_notify and relays notifications to a local
// Hub, so a worker process and the API process see the same events.
type PgRelay struct {
	pool    *pgxpool.Pool
	sql     infra.SQLExecutor
	hub     *Hub
	channel string
	logger  zerolog.Logger
}

func NewPgRelay(pool *pgxpool.Pool, sql infra.SQLExecutor, hub *Hub, logger zerolog.Logger) *PgRelay {
	return &PgRelay{pool: pool, sql: sql, hub: hub, channel: DefaultChannel, logger: logger}
}

func (r *PgRelay) Subscribe(adID string, sink Sink) func() {
	return r.hub.Subscribe(adID, sink)
}

// Publish notifies every listening process. If the notify fails the event is
// still delivered to local subscribers.
func (r *PgRelay) Publish(ctx context.Context, adID string, ev Event) {
	raw, err := json.Marshal(envelope{AdID: adID, Event: ev})
	if err == nil {
		_, err = r.sql.Exec(ctx, sqlinline.QNotifyAdEvent, r.channel, string(raw))
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("ad_id", adID).Msg("events: notify failed, delivering locally")
		r.hub.Publish(ctx, adID, ev)
	}
}

// Listen relays notifications until ctx is cancelled, reconnecting after errors.
func (r *PgRelay) Listen(ctx context.Context) error {
	for {
		err := r.listenOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("events: listener stopped, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

func (r *PgRelay) listenOnce(ctx context.Context) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "listen "+pgx.Identifier{r.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", r.channel, err)
	}
	r.logger.Info().Str("channel", r.channel).Msg("events: listening")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		r.relay(ctx, n.Payload)
	}
}

// relay hands one notification payload to local subscribers. Payloads that
// do not decode to an envelope with an ad ID are dropped.
func (r *PgRelay) relay(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn().Err(err).Msg("events: malformed notification")
		return
	}
	if env.AdID == "" {
		r.logger.Warn().Msg("events: notification without ad id")
		return
	}
	r.hub.Publish(ctx, env.AdID, env.Event)
}

var _ Broadcaster = (*PgRelay)(nil)
