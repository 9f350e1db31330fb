package main

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/TruckFinderAI/truckfinder-mvp/engine/events"
	"github.com/TruckFinderAI/truckfinder-mvp/pkg/fn"
)

// insertBatchSize caps how many rows go into one INSERT statement.
const insertBatchSize = 50

// EventWriter persists search and compare events to PostgreSQL.
type EventWriter struct {
	db *sql.DB
}

// NewEventWriter opens dsn with ping retries (the sink typically starts
// alongside the database) and runs schema migrations.
func NewEventWriter(dsn string) (*EventWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	w := &EventWriter{db: db}
	if err := w.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return w, nil
}

func (w *EventWriter) migrate() error {
	_, err := w.db.Exec(`
		CREATE TABLE IF NOT EXISTS search_events (
			id            SERIAL PRIMARY KEY,
			session_id    TEXT        NOT NULL,
			mode          TEXT        NOT NULL,
			filter        JSONB       NOT NULL,
			total_matches INT         NOT NULL,
			returned      INT         NOT NULL,
			occurred_at   TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS compare_events (
			id          SERIAL PRIMARY KEY,
			session_id  TEXT        NOT NULL,
			vehicle_ids INT[]       NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_search_events_session  ON search_events(session_id);
		CREATE INDEX IF NOT EXISTS idx_search_events_time     ON search_events(occurred_at);
		CREATE INDEX IF NOT EXISTS idx_compare_events_session ON compare_events(session_id);
	`)
	return err
}

// WriteSearches batch-inserts search events.
func (w *EventWriter) WriteSearches(evs []events.SearchEvent) error {
	for _, batch := range fn.Chunk(evs, insertBatchSize) {
		valueStrings := make([]string, 0, len(batch))
		valueArgs := make([]interface{}, 0, len(batch)*6)
		for idx, ev := range batch {
			base := idx * 6
			valueStrings = append(valueStrings,
				fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d)",
					base+1, base+2, base+3, base+4, base+5, base+6))
			valueArgs = append(valueArgs,
				ev.SessionID, ev.Mode, ev.FilterJSON, ev.TotalMatches, ev.Returned, ev.At)
		}
		query := fmt.Sprintf(`
			INSERT INTO search_events (session_id, mode, filter, total_matches, returned, occurred_at)
			VALUES %s`, strings.Join(valueStrings, ","))
		if _, err := w.db.Exec(query, valueArgs...); err != nil {
			return fmt.Errorf("insert search events: %w", err)
		}
	}
	return nil
}

// WriteCompares batch-inserts compare events.
func (w *EventWriter) WriteCompares(evs []events.CompareEvent) error {
	for _, batch := range fn.Chunk(evs, insertBatchSize) {
		valueStrings := make([]string, 0, len(batch))
		valueArgs := make([]interface{}, 0, len(batch)*3)
		for idx, ev := range batch {
			base := idx * 3
			valueStrings = append(valueStrings,
				fmt.Sprintf("($%d,$%d,$%d)", base+1, base+2, base+3))
			valueArgs = append(valueArgs,
				ev.SessionID, pq.Array(ev.VehicleIDs), ev.At)
		}
		query := fmt.Sprintf(`
			INSERT INTO compare_events (session_id, vehicle_ids, occurred_at)
			VALUES %s`, strings.Join(valueStrings, ","))
		if _, err := w.db.Exec(query, valueArgs...); err != nil {
			return fmt.Errorf("insert compare events: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (w *EventWriter) Close() error { return w.db.Close() }
