package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the delivery journal.
// Append-only; there are no Update or Delete methods.
type Repository interface {
	Append(ctx context.Context, d Delivery) error
}

var ErrInvalidDelivery = errors.New("eventlog: invalid delivery")

// Service journals webhook deliveries. Callers treat it as best-effort and
// must not fail event processing on journal errors.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, d Delivery) error {
	if s == nil || s.repo == nil {
		return nil
	}
	if d.Kind == "" || d.Outcome == "" {
		return ErrInvalidDelivery
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.clock().UTC()
	}
	if len(d.Payload) > MaxPayloadLen {
		d.Payload = d.Payload[:MaxPayloadLen]
	}
	return s.repo.Append(ctx, d)
}
