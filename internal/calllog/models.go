package calllog

import "time"

// CallRecord is the canonical record for one physical call.
//
// Exactly one record exists per CallKey; every webhook delivery carrying the
// same key mutates the same row. Records are never hard-deleted here;
// archival is an external concern.
//
// Provider-specific scratch data (provider call id, hangup cause, raw agent
// labels) goes into Note, which has no dedicated columns.

type CallRecord struct {
	CallKey   string    `json:"call_key" db:"call_key"`
	Direction Direction `json:"direction" db:"direction"`

	// FromNumber/ToNumber are stored normalized: digits plus leading "+"
	// for inbound, last-10-digits for outbound.
	FromNumber string `json:"from_number,omitempty" db:"from_number"`
	ToNumber   string `json:"to_number,omitempty" db:"to_number"`

	Status CallStatus `json:"status" db:"status"`

	// StartTime is set once at creation (or from the first event carrying a
	// start stamp) and never overwritten afterwards.
	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`

	DurationSeconds int `json:"duration" db:"duration_seconds"`

	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`

	// ReceiverAgent is the CRM user mapped from the answering agent's number.
	ReceiverAgent string `json:"receiver_agent,omitempty" db:"receiver_agent"`

	// Resolved business entity, attached at creation or backfilled once.
	ReferenceType EntityType `json:"reference_type,omitempty" db:"reference_type"`
	ReferenceID   string     `json:"reference_id,omitempty" db:"reference_id"`

	Note string `json:"note,omitempty" db:"note"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type CallStatus string

const (
	StatusInitiated  CallStatus = "initiated"
	StatusRinging    CallStatus = "ringing"
	StatusRouted     CallStatus = "routed"
	StatusInProgress CallStatus = "in_progress"
	StatusCompleted  CallStatus = "completed"
	StatusNoAnswer   CallStatus = "no_answer"
	StatusFailed     CallStatus = "failed"
	StatusBusy       CallStatus = "busy"
	StatusCancelled  CallStatus = "cancelled"
)

// IsTerminal reports whether no further legitimate transition exists.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusNoAnswer, StatusFailed, StatusBusy, StatusCancelled:
		return true
	default:
		return false
	}
}

// EntityType identifies the kind of business record a call is linked to.
// Resolution priority is Lead > Deal > Contact.
type EntityType string

const (
	EntityLead    EntityType = "lead"
	EntityDeal    EntityType = "deal"
	EntityContact EntityType = "contact"
	EntityNone    EntityType = ""
)

// MaxFieldLen mirrors the persisted varchar(140) constraint on identifier,
// note and recording-url columns. Values are truncated, never rejected.
const MaxFieldLen = 140

// Truncate clamps s to MaxFieldLen.
func Truncate(s string) string {
	if len(s) > MaxFieldLen {
		return s[:MaxFieldLen]
	}
	return s
}
