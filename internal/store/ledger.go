package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnagius/eikon-eod/internal/domain"
	"github.com/johnagius/eikon-eod/internal/kv"
)

var ErrIncompleteEntry = errors.New("audit entry requires date, location and action")

const ledgerKey = "eod:ledger"

// AuditLedger is the append-only record of lifecycle actions. Entries are
// never mutated or individually deleted; ClearAll exists only for the
// administrative wipe.
type AuditLedger struct {
	mu  sync.Mutex
	kv  kv.Backend
	log *zap.Logger
}

func NewAuditLedger(backend kv.Backend, log *zap.Logger) *AuditLedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditLedger{kv: backend, log: log}
}

// Append stores one entry, assigning its ID and timestamp if unset.
func (l *AuditLedger) Append(ctx context.Context, entry domain.AuditEntry) error {
	if entry.Date == "" || entry.LocationName == "" || entry.Action == "" {
		return ErrIncompleteEntry
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	return l.save(ctx, entries)
}

// Query returns all entries for (date, location), newest first. Timestamp
// ties keep their append order.
func (l *AuditLedger) Query(ctx context.Context, date, location string) ([]domain.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.AuditEntry
	for _, e := range entries {
		if e.Date == date && e.LocationName == location {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// ClearAll wipes the ledger. Administrative clear path only.
func (l *AuditLedger) ClearAll(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.kv.Delete(ctx, ledgerKey); err != nil {
		return fmt.Errorf("ledger wipe failed: %w", err)
	}
	return nil
}

func (l *AuditLedger) load(ctx context.Context) ([]domain.AuditEntry, error) {
	raw, ok, err := l.kv.Get(ctx, ledgerKey)
	if err != nil {
		return nil, fmt.Errorf("ledger load failed: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var entries []domain.AuditEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		l.log.Warn("discarding malformed audit ledger", zap.Error(err))
		return nil, nil
	}
	return entries, nil
}

func (l *AuditLedger) save(ctx context.Context, entries []domain.AuditEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("ledger encode failed: %w", err)
	}
	if err := l.kv.Set(ctx, ledgerKey, string(raw)); err != nil {
		return fmt.Errorf("ledger write failed: %w", err)
	}
	return nil
}
