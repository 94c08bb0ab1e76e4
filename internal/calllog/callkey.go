package calllog

import "github.com/google/uuid"

// ResolveCallKey derives the idempotency key that correlates all webhook
// deliveries of one physical call.
//
// Priority: provider call id, then correlation uuid, then a generated key.
// The generated branch exists only for malformed payloads; retries of the
// same malformed event will produce distinct records. That is an accepted
// limitation, not something to paper over.
func ResolveCallKey(p Payload) string {
	key := p.CallID()
	if key == "" {
		key = p.Pick("uuid", "UUID")
	}
	if key == "" {
		key = "GEN-" + uuid.NewString()
	}
	return Truncate(key)
}
