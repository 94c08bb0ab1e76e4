package telephony

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the outbound control surface of the telephony provider.
// Webhooks flow the other way and never touch this interface.
//
// Rules:
// - No provider HTTP calls outside this package.
// - All calls have bounded timeouts and fail closed into ErrProvider.
type Provider interface {
	Name() string

	// Originate asks the provider to bridge an agent to a destination
	// (click-to-call). The call itself progresses via webhooks keyed by
	// RefID.
	Originate(ctx context.Context, req OriginateRequest) (OriginateResult, error)

	// Hangup tears down an ongoing call by the provider's call id.
	Hangup(ctx context.Context, callID string) error
}

// OriginateRequest carries the dial parameters.
type OriginateRequest struct {
	// AgentNumber is the leg the provider rings first.
	AgentNumber string `json:"agent_number"`
	// DestinationNumber is the customer leg.
	DestinationNumber string `json:"destination_number"`
	// CallerID is what the destination sees.
	CallerID string `json:"caller_id"`
	// RefID is our correlation key; the provider echoes it in webhooks.
	RefID string `json:"ref_id"`
}

type OriginateResult struct {
	// CallID is the provider's own identifier, when returned. Needed for
	// hangup; stored in the record's note since no dedicated column
	// exists.
	CallID string `json:"call_id,omitempty"`
}

// ErrProvider wraps non-2xx or transport failures from the provider API.
// The provider's message is preserved for the user-facing error.
var ErrProvider = errors.New("telephony: provider request failed")

func providerError(detail string) error {
	return fmt.Errorf("%w: %s", ErrProvider, detail)
}
