package stats_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonderful-ai/pharmagent/internal/stats"
)

func TestMemory_LazyCreationAndOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := stats.NewMemory()

	snap, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap) != 0 {
		t.Fatalf("fresh recorder should have no entries, got %d", len(snap))
	}

	m.Increment(ctx, "list_medications")
	m.Increment(ctx, "list_medications")
	m.Increment(ctx, "list_medications")
	m.Increment(ctx, "list_stores")
	m.Increment(ctx, "check_stock_availability")

	snap, err = m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap) != 3 {
		t.Fatalf("got %d entries, want 3", len(snap))
	}
	if snap[0].Tool != "list_medications" || snap[0].Count != 3 {
		t.Errorf("snap[0] = %+v, want list_medications with count 3", snap[0])
	}
	// Ties break by name ascending.
	if snap[1].Tool != "check_stock_availability" {
		t.Errorf("snap[1] = %+v, want check_stock_availability", snap[1])
	}
	if snap[2].Tool != "list_stores" {
		t.Errorf("snap[2] = %+v, want list_stores", snap[2])
	}
}

func TestMemory_ConcurrentIncrements(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := stats.NewMemory()

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				m.Increment(ctx, "search_users")
			}
		}()
	}
	wg.Wait()

	snap, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap) != 1 || snap[0].Count != workers*perWorker {
		t.Errorf("snapshot = %+v, want single entry with count %d", snap, workers*perWorker)
	}
}

// failingDB errors on every call, simulating storage being down.
type failingDB struct{}

func (failingDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("connection refused")
}

func (failingDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("connection refused")
}

func TestPostgres_SwallowsStorageFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := stats.NewPostgres(failingDB{}, nil)

	// Must not panic or surface the failure.
	p.Increment(ctx, "request_prescription_refill")
	p.Increment(ctx, "request_prescription_refill")

	// Snapshot falls back to the in-memory view.
	snap, err := p.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap) != 1 {
		t.Fatalf("got %d entries, want 1", len(snap))
	}
	if snap[0].Tool != "request_prescription_refill" || snap[0].Count != 2 {
		t.Errorf("snap[0] = %+v, want request_prescription_refill with count 2", snap[0])
	}
}
