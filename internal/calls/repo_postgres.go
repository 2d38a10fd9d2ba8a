package calls

import (
	"context"
	"errors"
	"fmt"

	"answering-machine/internal/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of *pgxpool.Pool used by PostgresStore.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists call records in the call_records table.
//
// Each mutation is a single statement, so row-level locking in Postgres
// serializes concurrent callbacks for the same call.
type PostgresStore struct {
	db   PgxPool
	opts StoreOptions
}

func NewPostgresStore(db PgxPool, opts StoreOptions) *PostgresStore {
	return &PostgresStore{db: db, opts: opts}
}

const schemaCallRecords = `
CREATE TABLE IF NOT EXISTS call_records (
  call_id            TEXT PRIMARY KEY,
  destination_number TEXT NOT NULL,
  audio_url          TEXT NOT NULL,
  status             TEXT NOT NULL,
  duration           INTEGER,
  price              DOUBLE PRECISION,
  price_unit         TEXT NOT NULL DEFAULT '',
  error_message      TEXT NOT NULL DEFAULT '',
  sequence_number    INTEGER,
  created_at         TIMESTAMPTZ NOT NULL,
  updated_at         TIMESTAMPTZ NOT NULL,
  CHECK (updated_at >= created_at)
)`

const callRecordColumns = `call_id, destination_number, audio_url, status, duration, price, price_unit, error_message, sequence_number, created_at, updated_at`

// EnsureSchema creates the call_records table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaCallRecords); err != nil {
		return fmt.Errorf("calls: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, r CallRecord) error {
	if r.CallID == "" {
		return fmt.Errorf("calls: call_id required: %w", apperr.ErrInvalidArgument)
	}
	const q = `
INSERT INTO call_records (` + callRecordColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (call_id) DO NOTHING
`
	tag, err := s.db.Exec(ctx, q,
		r.CallID,
		r.DestinationNumber,
		r.AudioURL,
		string(r.Status),
		r.Duration,
		r.Price,
		r.PriceUnit,
		r.ErrorMessage,
		r.SequenceNumber,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("calls: insert %s: %w", r.CallID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("calls: %s: %w", r.CallID, apperr.ErrAlreadyExists)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, callID string) (CallRecord, error) {
	const q = `SELECT ` + callRecordColumns + ` FROM call_records WHERE call_id = $1`
	r, err := scanCallRecord(s.db.QueryRow(ctx, q, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CallRecord{}, fmt.Errorf("calls: %s: %w", callID, apperr.ErrNotFound)
		}
		return CallRecord{}, fmt.Errorf("calls: get %s: %w", callID, err)
	}
	return r, nil
}

func (s *PostgresStore) Update(ctx context.Context, callID string, u StatusUpdate) (CallRecord, error) {
	// Absent fields keep the stored value. With stale rejection on, the WHERE clause
	// skips updates whose sequence number is not newer than the stored one.
	const q = `
UPDATE call_records SET
  status          = COALESCE(NULLIF($2, ''), status),
  duration        = COALESCE($3, duration),
  price           = COALESCE($4, price),
  price_unit      = COALESCE(NULLIF($5, ''), price_unit),
  error_message   = COALESCE(NULLIF($6, ''), error_message),
  sequence_number = COALESCE($7::integer, sequence_number),
  updated_at      = GREATEST($8, created_at)
WHERE call_id = $1
  AND (NOT $9::boolean OR $7::integer IS NULL OR sequence_number IS NULL OR sequence_number < $7::integer)
RETURNING ` + callRecordColumns

	r, err := scanCallRecord(s.db.QueryRow(ctx, q,
		callID,
		string(u.Status),
		u.Duration,
		u.Price,
		u.PriceUnit,
		u.ErrorMessage,
		u.SequenceNumber,
		u.UpdatedAt,
		s.opts.RejectStale,
	))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return CallRecord{}, fmt.Errorf("calls: update %s: %w", callID, err)
	}

	// No row matched: either the call is unknown or the update was stale.
	current, getErr := s.Get(ctx, callID)
	if getErr != nil {
		return CallRecord{}, getErr
	}
	return current, fmt.Errorf("calls: %s: %w", callID, apperr.ErrStaleEvent)
}

func (s *PostgresStore) List(ctx context.Context) ([]CallRecord, error) {
	const q = `SELECT ` + callRecordColumns + ` FROM call_records ORDER BY created_at, call_id`
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("calls: list: %w", err)
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		r, err := scanCallRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("calls: list scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calls: list: %w", err)
	}
	return out, nil
}

func scanCallRecord(row pgx.Row) (CallRecord, error) {
	var (
		r      CallRecord
		status string
	)
	if err := row.Scan(
		&r.CallID,
		&r.DestinationNumber,
		&r.AudioURL,
		&status,
		&r.Duration,
		&r.Price,
		&r.PriceUnit,
		&r.ErrorMessage,
		&r.SequenceNumber,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return CallRecord{}, err
	}
	r.Status = CallStatus(status)
	return r, nil
}
