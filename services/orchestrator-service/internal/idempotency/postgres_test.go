package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubRow struct {
	state      string
	reservedAt time.Time
	err        error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.state
	*(dest[1].(*time.Time)) = r.reservedAt
	return nil
}

// scriptedQuerier replays canned Exec/QueryRow outcomes in order.
type scriptedQuerier struct {
	execTags []pgconn.CommandTag
	rows     []stubRow
	execs    int
	queries  int
}

func (q *scriptedQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tag := q.execTags[q.execs]
	q.execs++
	return tag, nil
}

func (q *scriptedQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	row := q.rows[q.queries]
	q.queries++
	return row
}

func TestPostgresReserveRetriesWhenConflictingRowVanishes(t *testing.T) {
	// First INSERT conflicts, the SELECT finds the row already gone (released
	// concurrently), the second INSERT claims the now-free key.
	q := &scriptedQuerier{
		execTags: []pgconn.CommandTag{
			pgconn.NewCommandTag("INSERT 0 0"),
			pgconn.NewCommandTag("INSERT 0 1"),
		},
		rows: []stubRow{{err: pgx.ErrNoRows}},
	}
	s := NewPostgresStore(q, 5*time.Minute)

	if err := s.Reserve(context.Background(), "cmd-1", "InitiatePayment"); err != nil {
		t.Fatalf("expected the retry to claim the freed key, got %v", err)
	}
	if q.execs != 2 {
		t.Fatalf("expected 2 insert attempts, got %d", q.execs)
	}
}

func TestPostgresReserveGivesUpAfterOneRetry(t *testing.T) {
	q := &scriptedQuerier{
		execTags: []pgconn.CommandTag{
			pgconn.NewCommandTag("INSERT 0 0"),
			pgconn.NewCommandTag("INSERT 0 0"),
		},
		rows: []stubRow{{err: pgx.ErrNoRows}, {err: pgx.ErrNoRows}},
	}
	s := NewPostgresStore(q, 5*time.Minute)

	if err := s.Reserve(context.Background(), "cmd-1", "InitiatePayment"); !errors.Is(err, ErrReservationHeld) {
		t.Fatalf("expected ErrReservationHeld after the retry budget, got %v", err)
	}
}

func TestPostgresReserveClassifiesConflicts(t *testing.T) {
	cases := []struct {
		name string
		row  stubRow
		want error
	}{
		{"processed key", stubRow{state: stateProcessed, reservedAt: time.Now()}, ErrAlreadyProcessed},
		{"live reservation", stubRow{state: stateReserved, reservedAt: time.Now()}, ErrReservationHeld},
		{"stale reservation", stubRow{state: stateReserved, reservedAt: time.Now().Add(-time.Hour)}, ErrReservationStale},
	}
	for _, tc := range cases {
		q := &scriptedQuerier{
			execTags: []pgconn.CommandTag{pgconn.NewCommandTag("INSERT 0 0")},
			rows:     []stubRow{tc.row},
		}
		s := NewPostgresStore(q, 5*time.Minute)
		if err := s.Reserve(context.Background(), "cmd-1", "InitiatePayment"); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}
