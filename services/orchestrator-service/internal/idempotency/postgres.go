package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	stateReserved  = "reserved"
	stateProcessed = "processed"
)

// Querier is the slice of pgxpool.Pool the store uses, kept narrow so tests
// can script conflict outcomes without a live database.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the durable backend. The unique primary key on command_id
// plus INSERT ... ON CONFLICT gives the atomic insert-if-absent reservation
// the pipeline's exactly-once guarantee rests on.
type PostgresStore struct {
	pool Querier

	// A reservation older than reservationTTL with no commit is treated as
	// abandoned by a crashed invocation and answered ErrReservationStale.
	reservationTTL time.Duration
}

func NewPostgresStore(pool Querier, reservationTTL time.Duration) *PostgresStore {
	if reservationTTL <= 0 {
		reservationTTL = 5 * time.Minute
	}
	return &PostgresStore{pool: pool, reservationTTL: reservationTTL}
}

// EnsureSchema creates the backing table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS command_records (
			command_id      TEXT PRIMARY KEY,
			command_type    TEXT NOT NULL,
			state           TEXT NOT NULL,
			reserved_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			processed_at    TIMESTAMPTZ,
			result_event_id TEXT
		)
	`)
	return err
}

func (s *PostgresStore) Reserve(ctx context.Context, commandID, commandType string) error {
	// A concurrent Release can delete the conflicting row between the INSERT
	// and the SELECT. The key is free again at that point, so one retry of
	// the INSERT claims it instead of answering a spurious duplicate.
	for attempt := 0; attempt < 2; attempt++ {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO command_records (command_id, command_type, state)
			VALUES ($1, $2, $3)
			ON CONFLICT (command_id) DO NOTHING
		`, commandID, commandType, stateReserved)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var state string
		var reservedAt time.Time
		err = s.pool.QueryRow(ctx, `
			SELECT state, reserved_at FROM command_records WHERE command_id = $1
		`, commandID).Scan(&state, &reservedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return err
		}

		if state == stateProcessed {
			return ErrAlreadyProcessed
		}
		if time.Since(reservedAt) > s.reservationTTL {
			return ErrReservationStale
		}
		return ErrReservationHeld
	}
	return ErrReservationHeld
}

func (s *PostgresStore) Commit(ctx context.Context, commandID, resultEventID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE command_records
		SET state = $2, processed_at = now(), result_event_id = $3
		WHERE command_id = $1 AND state = $4
	`, commandID, stateProcessed, resultEventID, stateReserved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	processed, err := s.IsProcessed(ctx, commandID)
	if err != nil {
		return err
	}
	if processed {
		return ErrAlreadyProcessed
	}
	return ErrNotReserved
}

func (s *PostgresStore) Release(ctx context.Context, commandID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM command_records WHERE command_id = $1 AND state = $2
	`, commandID, stateReserved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	processed, err := s.IsProcessed(ctx, commandID)
	if err != nil {
		return err
	}
	if processed {
		return ErrAlreadyProcessed
	}
	return nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, commandID, commandType, resultEventID string) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO command_records (command_id, command_type, state, processed_at, result_event_id)
		VALUES ($1, $2, $3, now(), $4)
		ON CONFLICT (command_id) DO NOTHING
	`, commandID, commandType, stateProcessed, resultEventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

func (s *PostgresStore) IsProcessed(ctx context.Context, commandID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM command_records WHERE command_id = $1 AND state = $2
		)
	`, commandID, stateProcessed).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) Lookup(ctx context.Context, commandID string) (Record, bool, error) {
	var rec Record
	err := s.pool.QueryRow(ctx, `
		SELECT command_id, command_type, processed_at, COALESCE(result_event_id, '')
		FROM command_records
		WHERE command_id = $1 AND state = $2
	`, commandID, stateProcessed).Scan(&rec.CommandID, &rec.CommandType, &rec.ProcessedAt, &rec.ResultEventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM command_records WHERE state = $1
	`, stateProcessed).Scan(&n)
	return n, err
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM command_records`)
	return err
}

var _ Store = (*PostgresStore)(nil)
