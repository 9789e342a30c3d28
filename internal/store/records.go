package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/johnagius/eikon-eod/internal/domain"
	"github.com/johnagius/eikon-eod/internal/kv"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrStaleWrite = errors.New("record version conflict")
)

const recordsKey = "eod:records"

// RecordStore persists EOD records, one per (date, location), as a single
// JSON collection under recordsKey. The mutex serializes the read-modify-write
// cycle so an upsert is all-or-nothing with respect to this process.
type RecordStore struct {
	mu  sync.Mutex
	kv  kv.Backend
	log *zap.Logger
}

func NewRecordStore(backend kv.Backend, log *zap.Logger) *RecordStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecordStore{kv: backend, log: log}
}

func recordKey(date, location string) string {
	return date + "|" + location
}

// Get returns the stored record for (date, location), or ErrNotFound. Absence
// is an expected outcome; callers build a default record from it.
func (s *RecordStore) Get(ctx context.Context, date, location string) (*domain.EodRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	rec, ok := coll[recordKey(date, location)]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Upsert inserts or fully replaces the record for its (date, location) key.
// The record's Version must match the stored one; on success the stored and
// in-memory versions are bumped together. A mismatch means another client
// wrote (or locked) the record since this copy was loaded.
func (s *RecordStore) Upsert(ctx context.Context, rec *domain.EodRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.load(ctx)
	if err != nil {
		return err
	}

	key := recordKey(rec.Date, rec.LocationName)
	if existing, ok := coll[key]; ok && existing.Version != rec.Version {
		return ErrStaleWrite
	}

	rec.Version++
	coll[key] = *rec
	if err := s.save(ctx, coll); err != nil {
		rec.Version--
		return err
	}
	return nil
}

// ListByLocation returns every record for the location, newest date first.
func (s *RecordStore) ListByLocation(ctx context.Context, location string) ([]domain.EodRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.EodRecord
	for _, rec := range coll {
		if rec.LocationName == location {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// ClearAll wipes every record. Administrative clear path only.
func (s *RecordStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, recordsKey); err != nil {
		return fmt.Errorf("record wipe failed: %w", err)
	}
	return nil
}

func (s *RecordStore) load(ctx context.Context) (map[string]domain.EodRecord, error) {
	raw, ok, err := s.kv.Get(ctx, recordsKey)
	if err != nil {
		return nil, fmt.Errorf("record load failed: %w", err)
	}
	if !ok {
		return map[string]domain.EodRecord{}, nil
	}

	var coll map[string]domain.EodRecord
	if err := json.Unmarshal([]byte(raw), &coll); err != nil {
		// Corrupt payloads degrade to an empty collection rather than
		// wedging the register.
		s.log.Warn("discarding malformed record collection", zap.Error(err))
		return map[string]domain.EodRecord{}, nil
	}
	return coll, nil
}

func (s *RecordStore) save(ctx context.Context, coll map[string]domain.EodRecord) error {
	raw, err := json.Marshal(coll)
	if err != nil {
		return fmt.Errorf("record encode failed: %w", err)
	}
	if err := s.kv.Set(ctx, recordsKey, string(raw)); err != nil {
		return fmt.Errorf("record write failed: %w", err)
	}
	return nil
}
