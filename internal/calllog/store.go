package calllog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("calllog: record not found")
	ErrInvalidArgument = errors.New("calllog: invalid argument")
)

// Store owns the canonical call records.
//
// Concurrency contract: implementations serialize writes per call key
// (keyed mutex or row lock), so the terminal-state guard in merge is
// race-free. Writes to different keys must not block each other.
type Store interface {
	Get(ctx context.Context, callKey string) (CallRecord, error)

	// FindOrCreate returns the existing record for the key, or creates one.
	// The bool reports whether a record was created.
	FindOrCreate(ctx context.Context, callKey string, params CreateParams) (CallRecord, bool, error)

	// Apply merges the update into the record under the key's lock,
	// honoring the immutability and terminal-monotonicity rules.
	Apply(ctx context.Context, callKey string, upd Update) (CallRecord, error)

	// Cancel force-writes a terminal Cancelled status, but only while the
	// record is still non-terminal. An explicit local hangup wins over any
	// pending ambiguous webhook, never over an already-applied terminal
	// status describing what actually happened on the wire.
	Cancel(ctx context.Context, callKey string, at time.Time) (CallRecord, error)

	// OldestUnassigned returns the oldest inbound call that is still
	// waiting for an agent (ringing or initiated, no receiver).
	OldestUnassigned(ctx context.Context) (CallRecord, bool, error)
}

// CreateParams seeds a new record. Status defaults to Initiated.
type CreateParams struct {
	Direction  Direction
	FromNumber string
	ToNumber   string
	Status     CallStatus
	StartTime  time.Time
	Receiver   string

	ReferenceType EntityType
	ReferenceID   string

	Note string
}

// Update carries proposed field values for one webhook event. Zero values
// mean "not provided"; provided values still pass through the merge guard.
type Update struct {
	Status *CallStatus

	FromNumber string
	ToNumber   string

	// StartTime is applied only while the stored start time is unset.
	StartTime *time.Time
	EndTime   *time.Time

	DurationSeconds *int

	RecordingURL string
	Receiver     string

	ReferenceType EntityType
	ReferenceID   string

	Note string
}

// merge applies upd to rec in place, enforcing the write-time rules:
// a terminal status is never regressed to a non-terminal one, start time is
// write-once, recording url and entity reference are sticky.
func merge(rec *CallRecord, upd Update, now time.Time) {
	if upd.Status != nil {
		next := *upd.Status
		if !rec.Status.IsTerminal() || next.IsTerminal() {
			rec.Status = next
		}
	}
	if upd.FromNumber != "" {
		rec.FromNumber = upd.FromNumber
	}
	if upd.ToNumber != "" {
		rec.ToNumber = upd.ToNumber
	}
	if upd.StartTime != nil && rec.StartTime.IsZero() {
		rec.StartTime = *upd.StartTime
	}
	if upd.EndTime != nil {
		rec.EndTime = upd.EndTime
	}
	if upd.DurationSeconds != nil && *upd.DurationSeconds >= 0 {
		rec.DurationSeconds = *upd.DurationSeconds
	}
	if upd.RecordingURL != "" {
		rec.RecordingURL = Truncate(upd.RecordingURL)
	}
	if upd.Receiver != "" {
		rec.ReceiverAgent = upd.Receiver
	}
	if upd.ReferenceType != EntityNone && rec.ReferenceType == EntityNone {
		rec.ReferenceType = upd.ReferenceType
		rec.ReferenceID = upd.ReferenceID
	}
	if upd.Note != "" {
		rec.Note = Truncate(upd.Note)
	}
	rec.UpdatedAt = now
}

func newRecord(callKey string, params CreateParams, now time.Time) CallRecord {
	status := params.Status
	if status == "" {
		status = StatusInitiated
	}
	start := params.StartTime
	if start.IsZero() {
		start = now
	}
	return CallRecord{
		CallKey:         Truncate(callKey),
		Direction:       params.Direction,
		FromNumber:      params.FromNumber,
		ToNumber:        params.ToNumber,
		Status:          status,
		StartTime:       start,
		ReceiverAgent:   params.Receiver,
		ReferenceType:   params.ReferenceType,
		ReferenceID:     params.ReferenceID,
		Note:            Truncate(params.Note),
		DurationSeconds: 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
