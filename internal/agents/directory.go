package agents

import (
	"context"
	"errors"

	"callbridge/internal/calllog"
)

var ErrNotFound = errors.New("agents: mapping not found")

// Mapping ties a provider-side agent phone number to a CRM user. Read-only
// to the reconciliation engine; availability is the only mutable bit and is
// owned by the queue-assignment path.
type Mapping struct {
	User        string `json:"user" db:"user_id"`
	AgentNumber string `json:"agent_number" db:"agent_number"`
	CallerID    string `json:"caller_id,omitempty" db:"caller_id"`
	Available   bool   `json:"available" db:"available"`
}

// Directory looks up agent mappings.
//
// UserForNumber tries the exact normalized number first, then its last ten
// digits, because the provider reports agent numbers inconsistently with and
// without country prefix.
type Directory interface {
	UserForNumber(ctx context.Context, agentNumber string) (string, error)
	MappingForUser(ctx context.Context, user string) (Mapping, error)
	ListAvailable(ctx context.Context) ([]Mapping, error)
	SetAvailability(ctx context.Context, user string, available bool) error
}

// normalizeKeys returns the candidate lookup keys for an agent number.
func normalizeKeys(agentNumber string) []string {
	exact := calllog.NormalizeNumber(agentNumber)
	if exact == "" {
		return nil
	}
	keys := []string{exact}
	if last := calllog.LastTenDigits(exact); last != exact {
		keys = append(keys, last)
	}
	return keys
}
