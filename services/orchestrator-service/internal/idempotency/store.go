// Package idempotency guarantees a command is acted upon at most once.
//
// The store exposes an atomic reserve / commit / release primitive keyed on
// command_id. Reservation closes the check-then-act race between concurrent
// submissions of the same command: exactly one caller wins the reservation,
// every other caller observes it as held or already processed.
package idempotency

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAlreadyProcessed means the command_id has a committed record. A
	// second unconditional write to a committed key is a contract violation;
	// an ordinary duplicate submission surfaces it through Reserve.
	ErrAlreadyProcessed = errors.New("command already processed")

	// ErrReservationHeld means another in-flight invocation holds the
	// reservation for this command_id.
	ErrReservationHeld = errors.New("command reservation held by another invocation")

	// ErrReservationStale means a reservation was left unresolved (crash
	// mid-execute) and has aged past the store's TTL. The retry must be
	// answered "inconclusive, retry later", never silently re-executed.
	ErrReservationStale = errors.New("command reservation is stale")

	// ErrNotReserved means Commit or Release was called without a live
	// reservation for the command_id.
	ErrNotReserved = errors.New("command is not reserved")
)

// Record is the durable evidence that a command completed.
type Record struct {
	CommandID     string
	CommandType   string
	ProcessedAt   time.Time
	ResultEventID string
}

// Store is the pluggable keyed idempotency medium. Production backends must
// be durable and provide an atomic insert-if-absent on command_id; the
// in-memory implementation loses exactly-once across restarts and is for
// tests only.
type Store interface {
	// Reserve atomically claims the command_id. It fails with
	// ErrAlreadyProcessed for a committed key, ErrReservationHeld for a live
	// reservation, and ErrReservationStale for an expired one.
	Reserve(ctx context.Context, commandID, commandType string) error

	// Commit finalizes a reservation with the id of the event the command
	// produced. Only a committed key counts as processed.
	Commit(ctx context.Context, commandID, resultEventID string) error

	// Release drops an uncommitted reservation so the command_id stays
	// retryable after a failed execute.
	Release(ctx context.Context, commandID string) error

	// MarkProcessed writes a committed record in one step. It always fails
	// with ErrAlreadyProcessed if the key exists in any state; this is the
	// store's internal safety net, not duplicate handling.
	MarkProcessed(ctx context.Context, commandID, commandType, resultEventID string) error

	// IsProcessed is a pure lookup with no side effect.
	IsProcessed(ctx context.Context, commandID string) (bool, error)

	// Lookup returns the committed record for the command_id, if present.
	Lookup(ctx context.Context, commandID string) (Record, bool, error)

	// Count and Clear are operational/test-only.
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
