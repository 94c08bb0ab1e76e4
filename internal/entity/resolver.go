package entity

import (
	"context"
	"errors"

	"callbridge/internal/calllog"
)

// RecordStore abstracts the external record-keeping backend that owns leads,
// deals and contacts. This engine only reads phone-number matches from it.
//
// Implementations should match on both the normalized number and its
// last-10-digits form, since stored numbers may or may not carry a country
// prefix. A miss returns "", nil; not found is a normal outcome.
type RecordStore interface {
	FindLeadByPhone(ctx context.Context, number string) (string, error)
	FindDealByPhone(ctx context.Context, number string) (string, error)
	FindContactByPhone(ctx context.Context, number string) (string, error)
}

// Resolution links a phone number to at most one business entity.
type Resolution struct {
	Type calllog.EntityType
	ID   string
}

// Found reports whether anything matched.
func (r Resolution) Found() bool { return r.Type != calllog.EntityNone }

var ErrStoreUnavailable = errors.New("entity: record store unavailable")

// Resolver finds the best-matching business entity for a phone number.
// Priority is Lead > Deal > Contact; the first hit wins.
type Resolver struct {
	store RecordStore
}

func NewResolver(store RecordStore) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(ctx context.Context, number string) (Resolution, error) {
	if r.store == nil {
		return Resolution{}, ErrStoreUnavailable
	}
	number = calllog.NormalizeNumber(number)
	if number == "" {
		return Resolution{}, nil
	}

	if id, err := r.store.FindLeadByPhone(ctx, number); err != nil {
		return Resolution{}, err
	} else if id != "" {
		return Resolution{Type: calllog.EntityLead, ID: id}, nil
	}

	if id, err := r.store.FindDealByPhone(ctx, number); err != nil {
		return Resolution{}, err
	} else if id != "" {
		return Resolution{Type: calllog.EntityDeal, ID: id}, nil
	}

	if id, err := r.store.FindContactByPhone(ctx, number); err != nil {
		return Resolution{}, err
	} else if id != "" {
		return Resolution{Type: calllog.EntityContact, ID: id}, nil
	}

	return Resolution{}, nil
}
