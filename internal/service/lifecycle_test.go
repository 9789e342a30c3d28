package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnagius/eikon-eod/internal/domain"
	"github.com/johnagius/eikon-eod/internal/kv"
	"github.com/johnagius/eikon-eod/internal/kv/memory"
	"github.com/johnagius/eikon-eod/internal/store"
)

const testSecret = "mgr-override"

type fixture struct {
	lifecycle *Lifecycle
	records   *store.RecordStore
	ledger    *store.AuditLedger
	contacts  *store.ContactStore
}

func newFixture() *fixture {
	backend := memory.New()
	records := store.NewRecordStore(backend, nil)
	ledger := store.NewAuditLedger(backend, nil)
	contacts := store.NewContactStore(backend, nil)
	return &fixture{
		lifecycle: NewLifecycle(records, ledger, contacts, testSecret, nil),
		records:   records,
		ledger:    ledger,
		contacts:  contacts,
	}
}

func validRecord() *domain.EodRecord {
	rec := domain.NewRecord("2026-03-14", "valletta", "Carmen Borg")
	rec.Staff = "Carmen Borg"
	rec.FloatAmount = decimal.NewFromInt(250)
	rec.XReadings[0].Amount = decimal.NewFromInt(1200)
	rec.CashCount = domain.CashCount{N50: 10, N20: 20, CoinsTotal: decimal.NewFromInt(12)}
	return rec
}

func TestLoadOrDefaultBuildsDraft(t *testing.T) {
	f := newFixture()

	rec, err := f.lifecycle.LoadOrDefault(context.Background(), "2026-03-14", "valletta", "Carmen Borg")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Saved() || rec.Locked() {
		t.Error("fresh record must be a Draft")
	}
	if len(rec.XReadings) != 4 || len(rec.EposLines) != 4 || len(rec.ChequeLines) != 2 || len(rec.PaidOutLines) != 1 {
		t.Errorf("default slots = %d/%d/%d/%d, want 4/4/2/1",
			len(rec.XReadings), len(rec.EposLines), len(rec.ChequeLines), len(rec.PaidOutLines))
	}
}

func TestLoadOrDefaultRejectsBadDate(t *testing.T) {
	f := newFixture()

	var vErr *ValidationError
	_, err := f.lifecycle.LoadOrDefault(context.Background(), "14/03/2026", "valletta", "Carmen Borg")
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestSaveValidRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	saved, err := f.lifecycle.Save(ctx, validRecord())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !saved.Saved() {
		t.Error("SavedAt not stamped")
	}

	stored, err := f.records.Get(ctx, "2026-03-14", "valletta")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Staff != "Carmen Borg" {
		t.Errorf("stored staff = %q", stored.Staff)
	}

	entries, err := f.ledger.Query(ctx, "2026-03-14", "valletta")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != domain.ActionSave {
		t.Fatalf("ledger = %+v, want exactly one SAVE entry", entries)
	}
	if entries[0].Details["staff"] != "Carmen Borg" || entries[0].Details["float_amount"] != "250.00" {
		t.Errorf("SAVE details = %v", entries[0].Details)
	}
}

func TestSaveRejectsMissingStaff(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	rec := validRecord()
	rec.Staff = ""

	var vErr *ValidationError
	if _, err := f.lifecycle.Save(ctx, rec); !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	} else if vErr.Field != "staff" {
		t.Errorf("failed field = %q, want staff", vErr.Field)
	}

	if _, err := f.records.Get(ctx, "2026-03-14", "valletta"); !errors.Is(err, store.ErrNotFound) {
		t.Error("rejected save must not write")
	}
}

func TestSaveRejectsNegativeLineAmount(t *testing.T) {
	f := newFixture()

	rec := validRecord()
	rec.ChequeLines[1].Amount = decimal.NewFromInt(-5)

	var vErr *ValidationError
	if _, err := f.lifecycle.Save(context.Background(), rec); !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestBagNumberAndDepositTravelTogether(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec := validRecord()
	rec.DepositCount = domain.DepositCount{N50: 10}
	var vErr *ValidationError
	if _, err := f.lifecycle.Save(ctx, rec); !errors.As(err, &vErr) {
		t.Fatalf("deposit without bag: err = %v, want ValidationError", err)
	}

	rec = validRecord()
	rec.BagNumber = "BAG-0312"
	if _, err := f.lifecycle.Save(ctx, rec); !errors.As(err, &vErr) {
		t.Fatalf("bag without deposit: err = %v, want ValidationError", err)
	}

	rec = validRecord()
	rec.BagNumber = "BAG-0312"
	rec.DepositCount = domain.DepositCount{N50: 10}
	if _, err := f.lifecycle.Save(ctx, rec); err != nil {
		t.Fatalf("bag and deposit together: %v", err)
	}
}

func TestLockRejectsInvalidRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	rec := validRecord()
	rec.Staff = ""

	var vErr *ValidationError
	if _, err := f.lifecycle.Lock(ctx, rec); !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if rec.Locked() {
		t.Error("LockedAt must stay empty after a rejected lock")
	}
	entries, _ := f.ledger.Query(ctx, "2026-03-14", "valletta")
	if len(entries) != 0 {
		t.Errorf("rejected lock wrote %d ledger entries", len(entries))
	}
}

func TestLockStampsSavedAtWhenMissing(t *testing.T) {
	f := newFixture()

	locked, err := f.lifecycle.Lock(context.Background(), validRecord())
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !locked.Saved() || !locked.Locked() {
		t.Error("lock must stamp both SavedAt and LockedAt on a Draft")
	}
}

func TestLockedRecordIsImmutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	rec, err := f.lifecycle.Save(ctx, validRecord())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := f.lifecycle.Lock(ctx, rec); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if _, err := f.lifecycle.Lock(ctx, rec); !errors.Is(err, ErrAlreadyLocked) {
		t.Errorf("second lock: err = %v, want ErrAlreadyLocked", err)
	}

	rec.XReadings[0].Amount = decimal.NewFromInt(9999)
	if _, err := f.lifecycle.Save(ctx, rec); !errors.Is(err, ErrLocked) {
		t.Errorf("save while locked: err = %v, want ErrLocked", err)
	}
	if err := f.lifecycle.AddChequeLine(rec); !errors.Is(err, ErrLocked) {
		t.Errorf("add cheque while locked: err = %v, want ErrLocked", err)
	}
	if err := f.lifecycle.AddPaidOutLine(rec); !errors.Is(err, ErrLocked) {
		t.Errorf("add paid-out while locked: err = %v, want ErrLocked", err)
	}

	stored, err := f.records.Get(ctx, "2026-03-14", "valletta")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.XReadings[0].Amount.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("stored X-reading = %s, rejected save must not leak through", stored.XReadings[0].Amount)
	}
	if len(stored.ChequeLines) != 2 || len(stored.PaidOutLines) != 1 {
		t.Error("line slots changed under lock")
	}
}

func TestSaveChecksStoredLockState(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	rec, err := f.lifecycle.Save(ctx, validRecord())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := f.lifecycle.Lock(ctx, rec); err != nil {
		t.Fatalf("lock: %v", err)
	}

	// A client echoes the current version but sends no lock stamp. The
	// stored record's lock must still win.
	forged, err := f.records.Get(ctx, "2026-03-14", "valletta")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	forged.LockedAt = nil
	forged.Staff = "Intruder"

	if _, err := f.lifecycle.Save(ctx, forged); !errors.Is(err, ErrLocked) {
		t.Fatalf("save with stripped lock: err = %v, want ErrLocked", err)
	}

	stored, err := f.records.Get(ctx, "2026-03-14", "valletta")
	if err != nil {
		t.Fatalf("get after rejected save: %v", err)
	}
	if !stored.Locked() {
		t.Error("lock cleared without unlock")
	}
	if stored.Staff != "Carmen Borg" {
		t.Errorf("stored staff = %q, rejected save must not land", stored.Staff)
	}
}

func TestLockChecksStoredLockState(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	rec, err := f.lifecycle.Save(ctx, validRecord())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := f.lifecycle.Lock(ctx, rec); err != nil {
		t.Fatalf("lock: %v", err)
	}

	forged, err := f.records.Get(ctx, "2026-03-14", "valletta")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	forged.LockedAt = nil

	if _, err := f.lifecycle.Lock(ctx, forged); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("re-lock with stripped stamp: err = %v, want ErrAlreadyLocked", err)
	}
}

func TestUnlockGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	rec, err := f.lifecycle.Save(ctx, validRecord())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := f.lifecycle.Lock(ctx, rec); err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Wrong credential: nothing changes, nothing is logged.
	if _, err := f.lifecycle.Unlock(ctx, rec, "guess"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("wrong credential: err = %v, want ErrInvalidCredential", err)
	}
	stored, _ := f.records.Get(ctx, "2026-03-14", "valletta")
	if !stored.Locked() {
		t.Error("wrong credential cleared the lock")
	}
	entries, _ := f.ledger.Query(ctx, "2026-03-14", "valletta")
	for _, e := range entries {
		if e.Action == domain.ActionUnlock {
			t.Error("wrong credential must not write an UNLOCK entry")
		}
	}

	// Correct credential: lock cleared, exactly one UNLOCK entry.
	unlocked, err := f.lifecycle.Unlock(ctx, rec, testSecret)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if unlocked.Locked() {
		t.Error("LockedAt still set after unlock")
	}
	if !unlocked.Saved() {
		t.Error("SavedAt must be refreshed on unlock")
	}

	entries, _ = f.ledger.Query(ctx, "2026-03-14", "valletta")
	unlocks := 0
	for _, e := range entries {
		if e.Action == domain.ActionUnlock {
			unlocks++
			if e.Timestamp.IsZero() {
				t.Error("UNLOCK entry has no timestamp")
			}
		}
	}
	if unlocks != 1 {
		t.Errorf("UNLOCK entries = %d, want exactly 1", unlocks)
	}
}

func TestUnlockRequiresLockedState(t *testing.T) {
	f := newFixture()

	rec := validRecord()
	if _, err := f.lifecycle.Unlock(context.Background(), rec, testSecret); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("err = %v, want ErrNotLocked", err)
	}
}

func TestAdminClearWipesEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if _, err := f.lifecycle.Save(ctx, validRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := f.contacts.Put(ctx, domain.Contact{Name: "BOV Desk", Phone: "2131"}); err != nil {
		t.Fatalf("contact: %v", err)
	}

	if err := f.lifecycle.AdminClear(ctx, "valletta", "Carmen Borg"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if _, err := f.records.Get(ctx, "2026-03-14", "valletta"); !errors.Is(err, store.ErrNotFound) {
		t.Error("records survived the wipe")
	}
	contacts, _ := f.contacts.List(ctx)
	if len(contacts) != 0 {
		t.Error("contacts survived the wipe")
	}
	entries, _ := f.ledger.Query(ctx, time.Now().UTC().Format(domain.DateLayout), "valletta")
	if len(entries) != 1 || entries[0].Action != domain.ActionAdminClear {
		t.Errorf("ledger after wipe = %+v, want exactly one ADMIN_CLEAR entry", entries)
	}
}

func TestAdminClearRequiresLocationAndActor(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if _, err := f.lifecycle.Save(ctx, validRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}

	var vErr *ValidationError
	if err := f.lifecycle.AdminClear(ctx, "", "Carmen Borg"); !errors.As(err, &vErr) {
		t.Fatalf("clear without location: err = %v, want ValidationError", err)
	}
	if err := f.lifecycle.AdminClear(ctx, "valletta", ""); !errors.As(err, &vErr) {
		t.Fatalf("clear without actor: err = %v, want ValidationError", err)
	}

	// A rejected wipe must not have touched anything.
	if _, err := f.records.Get(ctx, "2026-03-14", "valletta"); err != nil {
		t.Errorf("record gone after rejected wipe: %v", err)
	}
	entries, _ := f.ledger.Query(ctx, "2026-03-14", "valletta")
	if len(entries) != 1 {
		t.Errorf("ledger entries = %d after rejected wipe, want the original 1", len(entries))
	}
}

// failingBackend wraps a working backend and fails writes on demand.
type failingBackend struct {
	kv.Backend
	failSet bool
}

func (b *failingBackend) Set(ctx context.Context, key, value string) error {
	if b.failSet {
		return errors.New("backend down")
	}
	return b.Backend.Set(ctx, key, value)
}

func TestSaveFailedWriteLeavesDraft(t *testing.T) {
	backend := &failingBackend{Backend: memory.New(), failSet: true}
	records := store.NewRecordStore(backend, nil)
	ledger := store.NewAuditLedger(backend, nil)
	contacts := store.NewContactStore(backend, nil)
	lc := NewLifecycle(records, ledger, contacts, testSecret, nil)

	rec := validRecord()
	if _, err := lc.Save(context.Background(), rec); err == nil {
		t.Fatal("expected the write failure to surface")
	}
	if rec.Saved() {
		t.Error("SavedAt stamped despite failed persist")
	}
	if rec.Version != 0 {
		t.Errorf("version = %d despite failed persist, want 0", rec.Version)
	}
}

func TestAddLineSlotsWhileEditable(t *testing.T) {
	f := newFixture()

	rec := validRecord()
	if err := f.lifecycle.AddChequeLine(rec); err != nil {
		t.Fatalf("add cheque: %v", err)
	}
	if err := f.lifecycle.AddPaidOutLine(rec); err != nil {
		t.Fatalf("add paid-out: %v", err)
	}
	if len(rec.ChequeLines) != 3 || len(rec.PaidOutLines) != 2 {
		t.Errorf("slots = %d/%d, want 3/2", len(rec.ChequeLines), len(rec.PaidOutLines))
	}
}
