package imagepulse

import (
	"context"
	"fmt"
	"time"
)

// Outcome is the closed set of results a pull attempt can have.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ParseOutcome maps a raw string onto the Outcome enum.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeSuccess:
		return OutcomeSuccess, nil
	case OutcomeFailure:
		return OutcomeFailure, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// PullEvent is one observed image pull attempt. Events are append-only:
// once recorded they are never mutated or deleted.
type PullEvent struct {
	Image     string
	Outcome   Outcome
	Detail    string
	Timestamp time.Time
}

// Counter is the per-image aggregate derived from pull events.
type Counter struct {
	Image    string
	Total    int64
	Success  int64
	Failure  int64
	LastSeen time.Time
}

// RecordEvent appends the event and updates the image's counter in a
// single transaction, so the counter can never be observed out of sync
// with the events it summarizes.
func (s *Store) RecordEvent(ctx context.Context, ev PullEvent) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &WriteError{Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO events (image, outcome, detail, created_at) VALUES (?, ?, ?, ?)",
		ev.Image, string(ev.Outcome), ev.Detail, formatTime(ts),
	)
	if err != nil {
		return &WriteError{Err: fmt.Errorf("failed to insert event for %s: %w", ev.Image, err)}
	}

	var success, failure int64
	if ev.Outcome == OutcomeSuccess {
		success = 1
	} else {
		failure = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO counters (image, total, success, failure, last_seen)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(image) DO UPDATE SET
			total = total + 1,
			success = success + excluded.success,
			failure = failure + excluded.failure,
			last_seen = MAX(last_seen, excluded.last_seen)
	`, ev.Image, success, failure, formatTime(ts))
	if err != nil {
		return &WriteError{Err: fmt.Errorf("failed to update counter for %s: %w", ev.Image, err)}
	}

	if err := tx.Commit(); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// QueryCounters returns current aggregate state. An empty image filter
// returns every tracked image, ordered by image name.
func (s *Store) QueryCounters(ctx context.Context, image string) ([]Counter, error) {
	query := "SELECT image, total, success, failure, last_seen FROM counters"
	args := []any{}
	if image != "" {
		query += " WHERE image = ?"
		args = append(args, image)
	}
	query += " ORDER BY image"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query counters: %w", err)
	}
	defer rows.Close()

	var counters []Counter
	for rows.Next() {
		var c Counter
		var lastSeen string
		if err := rows.Scan(&c.Image, &c.Total, &c.Success, &c.Failure, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		c.LastSeen, err = parseTime(lastSeen)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_seen for %s: %w", c.Image, err)
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

// CountEvents returns the number of recorded events for an image, or
// for all images when the filter is empty.
func (s *Store) CountEvents(ctx context.Context, image string) (int64, error) {
	query := "SELECT COUNT(*) FROM events"
	args := []any{}
	if image != "" {
		query += " WHERE image = ?"
		args = append(args, image)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
