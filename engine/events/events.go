// Package events defines the search analytics event stream. The API layer
// publishes one event per executed operation; the eventsink service consumes
// them into PostgreSQL. Publishing is fire-and-forget and never blocks a
// request on broker availability.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/TruckFinderAI/truckfinder-mvp/pkg/natsutil"
)

// Stream subjects.
const (
	SubjectSearch  = "truckfinder.events.search"
	SubjectCompare = "truckfinder.events.compare"
)

// SearchEvent records one executed search turn.
type SearchEvent struct {
	SessionID    string    `json:"session_id"`
	Mode         string    `json:"mode"`
	FilterJSON   string    `json:"filter_json"`
	TotalMatches int       `json:"total_matches"`
	Returned     int       `json:"returned"`
	At           time.Time `json:"at"`
}

// CompareEvent records one comparison request.
type CompareEvent struct {
	SessionID  string    `json:"session_id"`
	VehicleIDs []int     `json:"vehicle_ids"`
	At         time.Time `json:"at"`
}

// Publisher emits events to NATS. A nil Publisher, or one built from a nil
// connection, silently drops events so the API runs without a broker.
type Publisher struct {
	nc  *nats.Conn
	log *slog.Logger
}

// NewPublisher wraps nc. nc may be nil.
func NewPublisher(nc *nats.Conn, log *slog.Logger) *Publisher {
	return &Publisher{nc: nc, log: log}
}

func (p *Publisher) Search(ctx context.Context, ev SearchEvent) {
	p.publish(ctx, SubjectSearch, ev)
}

func (p *Publisher) Compare(ctx context.Context, ev CompareEvent) {
	p.publish(ctx, SubjectCompare, ev)
}

func (p *Publisher) publish(ctx context.Context, subject string, v any) {
	if p == nil || p.nc == nil {
		return
	}
	if err := natsutil.Publish(ctx, p.nc, subject, v); err != nil && p.log != nil {
		p.log.Warn("event publish failed", "subject", subject, "error", err)
	}
}
