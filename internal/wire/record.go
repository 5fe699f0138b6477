// Package wire defines the schema-stable journal record for queue items.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"flushq/internal/queue"
)

// Record is one journaled snapshot of an item. The latest record for an id
// wins; readers never see partial updates.
type Record struct {
	ID          string          `json:"id"`
	State       string          `json:"state"`
	Payload     json.RawMessage `json:"payload"`
	SubmittedAt time.Time       `json:"submitted_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Attempts    []queue.Attempt `json:"attempts,omitempty"`
	// Canceled is the item's cancel flag. It can be set on a succeeded item,
	// where State stays "succeeded".
	Canceled    bool            `json:"canceled,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// LastError is the message of the most recent failed attempt, if any.
func (r Record) LastError() string {
	if len(r.Attempts) == 0 {
		return ""
	}
	return r.Attempts[len(r.Attempts)-1].Err
}

// Encode snapshots it. The payload must be JSON-marshalable.
func Encode[T any](it *queue.Item[T], now time.Time) (Record, error) {
	p, err := json.Marshal(it.Payload())
	if err != nil {
		return Record{}, fmt.Errorf("encode payload of %s: %w", it.ID(), err)
	}
	r := Record{
		ID:          it.ID(),
		State:       it.State().String(),
		Payload:     p,
		SubmittedAt: it.SubmittedAt(),
		Attempts:    it.Attempts(),
		Canceled:    it.Canceled(),
		UpdatedAt:   now,
	}
	if at, ok := it.CompletedAt(); ok {
		r.CompletedAt = &at
	}
	return r, nil
}

// Decode returns the payload carried by r.
func Decode[T any](r Record) (T, error) {
	var v T
	if len(r.Payload) == 0 {
		return v, fmt.Errorf("record %s has no payload", r.ID)
	}
	if err := json.Unmarshal(r.Payload, &v); err != nil {
		return v, fmt.Errorf("decode payload of %s: %w", r.ID, err)
	}
	return v, nil
}
