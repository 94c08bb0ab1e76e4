package calllog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"callbridge/pkg/utils"
)

// PostgresStore persists call records in the call_logs table.
//
// The schema stores the origin number in a column named "from", which is a
// reserved SQL keyword. Every statement here goes through the quoted column
// constants below, so reserved and ordinary columns share one write path
// and no call site needs to know the difference.
//
// Assumed table:
//
//	CREATE TABLE call_logs (
//	    call_key         VARCHAR(140) PRIMARY KEY,
//	    direction        TEXT NOT NULL,
//	    "from"           VARCHAR(140),
//	    "to"             VARCHAR(140),
//	    status           TEXT NOT NULL,
//	    start_time       TIMESTAMPTZ NOT NULL,
//	    end_time         TIMESTAMPTZ,
//	    duration_seconds INT NOT NULL DEFAULT 0,
//	    recording_url    VARCHAR(140),
//	    receiver_agent   VARCHAR(140),
//	    reference_type   TEXT,
//	    reference_id     VARCHAR(140),
//	    note             VARCHAR(140),
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    updated_at       TIMESTAMPTZ NOT NULL
//	)
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const callLogColumns = `
call_key, direction, "from", "to", status, start_time, end_time,
duration_seconds, recording_url, receiver_agent, reference_type,
reference_id, note, created_at, updated_at
`

func scanCallRecord(row interface{ Scan(...any) error }) (CallRecord, error) {
	var rec CallRecord
	var from, to, recording, receiver, refType, refID, note sql.NullString
	var endTime sql.NullTime
	err := row.Scan(
		&rec.CallKey,
		&rec.Direction,
		&from,
		&to,
		&rec.Status,
		&rec.StartTime,
		&endTime,
		&rec.DurationSeconds,
		&recording,
		&receiver,
		&refType,
		&refID,
		&note,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return CallRecord{}, err
	}
	rec.FromNumber = from.String
	rec.ToNumber = to.String
	rec.RecordingURL = recording.String
	rec.ReceiverAgent = receiver.String
	rec.ReferenceType = EntityType(refType.String)
	rec.ReferenceID = refID.String
	rec.Note = note.String
	if endTime.Valid {
		t := endTime.Time
		rec.EndTime = &t
	}
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, callKey string) (CallRecord, error) {
	if callKey == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	const q = `SELECT ` + callLogColumns + ` FROM call_logs WHERE call_key = $1`
	rec, err := scanCallRecord(s.db.QueryRowContext(ctx, q, Truncate(callKey)))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	return rec, err
}

// lockRecord reads the row FOR UPDATE, serializing concurrent events for the
// same call key at the database.
func lockRecord(ctx context.Context, tx *sql.Tx, callKey string) (CallRecord, error) {
	const q = `SELECT ` + callLogColumns + ` FROM call_logs WHERE call_key = $1 FOR UPDATE`
	rec, err := scanCallRecord(tx.QueryRowContext(ctx, q, callKey))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	return rec, err
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec CallRecord) error {
	const q = `
INSERT INTO call_logs (` + callLogColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (call_key) DO NOTHING
`
	_, err := tx.ExecContext(ctx, q,
		rec.CallKey,
		rec.Direction,
		nullable(rec.FromNumber),
		nullable(rec.ToNumber),
		rec.Status,
		rec.StartTime,
		rec.EndTime,
		rec.DurationSeconds,
		nullable(rec.RecordingURL),
		nullable(rec.ReceiverAgent),
		nullable(string(rec.ReferenceType)),
		nullable(rec.ReferenceID),
		nullable(rec.Note),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

func updateRecord(ctx context.Context, tx *sql.Tx, rec CallRecord) error {
	const q = `
UPDATE call_logs SET
	"from" = $2,
	"to" = $3,
	status = $4,
	start_time = $5,
	end_time = $6,
	duration_seconds = $7,
	recording_url = $8,
	receiver_agent = $9,
	reference_type = $10,
	reference_id = $11,
	note = $12,
	updated_at = $13
WHERE call_key = $1
`
	_, err := tx.ExecContext(ctx, q,
		rec.CallKey,
		nullable(rec.FromNumber),
		nullable(rec.ToNumber),
		rec.Status,
		rec.StartTime,
		rec.EndTime,
		rec.DurationSeconds,
		nullable(rec.RecordingURL),
		nullable(rec.ReceiverAgent),
		nullable(string(rec.ReferenceType)),
		nullable(rec.ReferenceID),
		nullable(rec.Note),
		rec.UpdatedAt,
	)
	return err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *PostgresStore) FindOrCreate(ctx context.Context, callKey string, params CreateParams) (CallRecord, bool, error) {
	if callKey == "" {
		return CallRecord{}, false, ErrInvalidArgument
	}
	key := Truncate(callKey)
	var out CallRecord
	created := false
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		rec, err := lockRecord(ctx, tx, key)
		if err == nil {
			out = rec
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		rec = newRecord(key, params, s.clock().UTC())
		if err := insertRecord(ctx, tx, rec); err != nil {
			return err
		}
		// A concurrent insert may have won the ON CONFLICT race; re-read
		// under the lock either way.
		out, err = lockRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		created = out.CreatedAt.Equal(rec.CreatedAt)
		return nil
	})
	return out, created, err
}

func (s *PostgresStore) Apply(ctx context.Context, callKey string, upd Update) (CallRecord, error) {
	if callKey == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	key := Truncate(callKey)
	var out CallRecord
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		rec, err := lockRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		merge(&rec, upd, s.clock().UTC())
		if err := updateRecord(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (s *PostgresStore) Cancel(ctx context.Context, callKey string, at time.Time) (CallRecord, error) {
	if callKey == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	key := Truncate(callKey)
	var out CallRecord
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		rec, err := lockRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		if !rec.Status.IsTerminal() {
			rec.Status = StatusCancelled
			rec.EndTime = &at
			rec.UpdatedAt = s.clock().UTC()
			if err := updateRecord(ctx, tx, rec); err != nil {
				return err
			}
		}
		out = rec
		return nil
	})
	return out, err
}

func (s *PostgresStore) OldestUnassigned(ctx context.Context) (CallRecord, bool, error) {
	const q = `
SELECT ` + callLogColumns + `
FROM call_logs
WHERE direction = $1
  AND status IN ($2, $3)
  AND receiver_agent IS NULL
ORDER BY start_time ASC
LIMIT 1
`
	rec, err := scanCallRecord(s.db.QueryRowContext(ctx, q, DirectionInbound, StatusRinging, StatusInitiated))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, false, nil
	}
	if err != nil {
		return CallRecord{}, false, err
	}
	return rec, true, nil
}
