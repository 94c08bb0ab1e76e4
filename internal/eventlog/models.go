package eventlog

import "time"

// Delivery is an immutable, append-only record of one webhook delivery.
//
// Invariants:
// - Deliveries are never updated or deleted.
// - Capture is best-effort; event processing must never block on journal
//   failures.
//
// Storage recommendation (Postgres): table webhook_deliveries with an
// INSERT-only policy, partitioned by time for retention.
type Delivery struct {
	ID string `json:"id" db:"id"`

	// Kind is the webhook endpoint the delivery arrived on.
	Kind Kind `json:"kind" db:"kind"`

	// CallKey correlates the delivery to its call record, when one was
	// resolvable.
	CallKey string `json:"call_key,omitempty" db:"call_key"`

	// Outcome summarizes what the gateway did with the delivery.
	Outcome Outcome `json:"outcome" db:"outcome"`

	// RemoteIP is the resolved client IP when available.
	RemoteIP string `json:"remote_ip,omitempty" db:"remote_ip"`

	// Detail is a short description for internal ops (mapped status,
	// skip reason, error summary).
	Detail string `json:"detail,omitempty" db:"detail"`

	// Payload is the raw body, truncated; kept for replaying disputes
	// with the provider.
	Payload string `json:"payload,omitempty" db:"payload"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Kind string

const (
	KindInboundReceived  Kind = "inbound_received"
	KindInboundAnswered  Kind = "inbound_answered"
	KindInboundCompleted Kind = "inbound_completed"
	KindOutbound         Kind = "outbound"
)

type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeFailed       Outcome = "failed"
)

// MaxPayloadLen bounds the stored raw body.
const MaxPayloadLen = 4096
