package agents

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresDirectory reads the agent_mappings table.
//
// Assumed table:
//
//	CREATE TABLE agent_mappings (
//	    user_id      VARCHAR(140) PRIMARY KEY,
//	    agent_number VARCHAR(140) NOT NULL,
//	    caller_id    VARCHAR(140),
//	    available    BOOLEAN NOT NULL DEFAULT FALSE
//	)
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) UserForNumber(ctx context.Context, agentNumber string) (string, error) {
	keys := normalizeKeys(agentNumber)
	if len(keys) == 0 {
		return "", ErrNotFound
	}
	const q = `
SELECT user_id FROM agent_mappings
WHERE agent_number = $1 OR RIGHT(agent_number, 10) = $2
LIMIT 1
`
	lastTen := keys[len(keys)-1]
	var user string
	err := d.db.QueryRowContext(ctx, q, keys[0], lastTen).Scan(&user)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return user, nil
}

func (d *PostgresDirectory) MappingForUser(ctx context.Context, user string) (Mapping, error) {
	const q = `
SELECT user_id, agent_number, COALESCE(caller_id, ''), available
FROM agent_mappings
WHERE user_id = $1
`
	var m Mapping
	err := d.db.QueryRowContext(ctx, q, user).Scan(&m.User, &m.AgentNumber, &m.CallerID, &m.Available)
	if errors.Is(err, sql.ErrNoRows) {
		return Mapping{}, ErrNotFound
	}
	if err != nil {
		return Mapping{}, err
	}
	return m, nil
}

func (d *PostgresDirectory) ListAvailable(ctx context.Context) ([]Mapping, error) {
	const q = `
SELECT user_id, agent_number, COALESCE(caller_id, ''), available
FROM agent_mappings
WHERE available
ORDER BY user_id
`
	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.User, &m.AgentNumber, &m.CallerID, &m.Available); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *PostgresDirectory) SetAvailability(ctx context.Context, user string, available bool) error {
	res, err := d.db.ExecContext(ctx, `UPDATE agent_mappings SET available = $2 WHERE user_id = $1`, user, available)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
