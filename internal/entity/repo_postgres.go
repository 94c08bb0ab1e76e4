package entity

import (
	"context"
	"database/sql"
	"errors"

	"callbridge/internal/calllog"
)

// PostgresRecordStore reads the CRM's own tables. This engine never writes
// them.
//
// Assumed tables (owned by the CRM, not migrated here):
//
//	leads(id, phone), deals(id, phone), contacts(id, phone)
//
// phone columns store either prefixed or bare domestic numbers, so matches
// try the normalized form first and the last-10-digits form second.
type PostgresRecordStore struct {
	db *sql.DB
}

func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

func (s *PostgresRecordStore) findByPhone(ctx context.Context, table, number string) (string, error) {
	normalized := calllog.NormalizeNumber(number)
	if normalized == "" {
		return "", nil
	}
	// table is one of the three constants below, never caller input.
	q := `SELECT id FROM ` + table + ` WHERE phone = $1 LIMIT 1`

	var id string
	err := s.db.QueryRowContext(ctx, q, normalized).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	lastTen := calllog.LastTenDigits(number)
	if lastTen == "" || lastTen == normalized {
		return "", nil
	}
	err = s.db.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE RIGHT(regexp_replace(phone, '\D', '', 'g'), 10) = $1 LIMIT 1`, lastTen).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresRecordStore) FindLeadByPhone(ctx context.Context, number string) (string, error) {
	return s.findByPhone(ctx, "leads", number)
}

func (s *PostgresRecordStore) FindDealByPhone(ctx context.Context, number string) (string, error) {
	return s.findByPhone(ctx, "deals", number)
}

func (s *PostgresRecordStore) FindContactByPhone(ctx context.Context, number string) (string, error) {
	return s.findByPhone(ctx, "contacts", number)
}
