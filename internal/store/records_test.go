package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/johnagius/eikon-eod/internal/domain"
	"github.com/johnagius/eikon-eod/internal/kv/memory"
)

func TestGetMissingRecord(t *testing.T) {
	s := NewRecordStore(memory.New(), nil)

	if _, err := s.Get(context.Background(), "2026-03-01", "valletta"); err != ErrNotFound {
		t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
	}
}

func TestUpsertUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore(memory.New(), nil)

	rec := domain.NewRecord("2026-03-01", "valletta", "tester")
	rec.Staff = "First"
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	rec.Staff = "Second"
	rec.FloatAmount = decimal.NewFromInt(300)
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	stored, err := s.Get(ctx, "2026-03-01", "valletta")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Staff != "Second" {
		t.Errorf("staff = %q, want the second write's value", stored.Staff)
	}

	all, err := s.ListByLocation(ctx, "valletta")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("stored records = %d, want exactly 1 per (date, location)", len(all))
	}
}

func TestUpsertRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore(memory.New(), nil)

	rec := domain.NewRecord("2026-03-01", "valletta", "tester")
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	// A second client loaded before the next write lands.
	stale, err := s.Get(ctx, "2026-03-01", "valletta")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("fresh upsert: %v", err)
	}
	if err := s.Upsert(ctx, stale); err != ErrStaleWrite {
		t.Errorf("stale upsert: err = %v, want ErrStaleWrite", err)
	}
}

func TestListByLocationNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore(memory.New(), nil)

	for _, date := range []string{"2026-03-02", "2026-03-10", "2026-03-05"} {
		if err := s.Upsert(ctx, domain.NewRecord(date, "valletta", "tester")); err != nil {
			t.Fatalf("upsert %s: %v", date, err)
		}
	}
	if err := s.Upsert(ctx, domain.NewRecord("2026-03-08", "mosta", "tester")); err != nil {
		t.Fatalf("upsert other location: %v", err)
	}

	recs, err := s.ListByLocation(ctx, "valletta")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	want := []string{"2026-03-10", "2026-03-05", "2026-03-02"}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d", len(recs), len(want))
	}
	for i, date := range want {
		if recs[i].Date != date {
			t.Errorf("recs[%d].Date = %s, want %s", i, recs[i].Date, date)
		}
	}
}

func TestMalformedCollectionDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	if err := backend.Set(ctx, recordsKey, "{not json"); err != nil {
		t.Fatalf("seed garbage: %v", err)
	}

	s := NewRecordStore(backend, nil)
	if _, err := s.Get(ctx, "2026-03-01", "valletta"); err != ErrNotFound {
		t.Fatalf("Get over garbage: err = %v, want ErrNotFound", err)
	}

	// Writes must still work after the corrupt payload is discarded.
	if err := s.Upsert(ctx, domain.NewRecord("2026-03-01", "valletta", "tester")); err != nil {
		t.Fatalf("upsert after garbage: %v", err)
	}
	if _, err := s.Get(ctx, "2026-03-01", "valletta"); err != nil {
		t.Fatalf("get after recovery: %v", err)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	s := NewRecordStore(memory.New(), nil)

	if err := s.Upsert(ctx, domain.NewRecord("2026-03-01", "valletta", "tester")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.Get(ctx, "2026-03-01", "valletta"); err != ErrNotFound {
		t.Errorf("Get after wipe: err = %v, want ErrNotFound", err)
	}
}
