package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/johnagius/eikon-eod/internal/calc"
	"github.com/johnagius/eikon-eod/internal/domain"
	"github.com/johnagius/eikon-eod/internal/store"
)

var (
	ErrLocked            = errors.New("record is locked")
	ErrAlreadyLocked     = errors.New("record is already locked")
	ErrNotLocked         = errors.New("record is not locked")
	ErrInvalidCredential = errors.New("unlock credential rejected")
)

// ValidationError names the business rule a record failed before save or lock.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Lifecycle gates every state transition of an EOD record: Draft → Saved →
// Locked → Saved. Each successful transition persists through the record
// store and appends to the audit ledger.
type Lifecycle struct {
	records  *store.RecordStore
	ledger   *store.AuditLedger
	contacts *store.ContactStore
	secret   string
	log      *zap.Logger

	// now is swappable in tests.
	now func() time.Time
}

func NewLifecycle(records *store.RecordStore, ledger *store.AuditLedger, contacts *store.ContactStore, unlockSecret string, log *zap.Logger) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lifecycle{
		records:  records,
		ledger:   ledger,
		contacts: contacts,
		secret:   unlockSecret,
		log:      log,
		now:      time.Now,
	}
}

// LoadOrDefault fetches the record for (date, location), or builds a fresh
// Draft when none is stored yet. A missing record is not an error.
func (c *Lifecycle) LoadOrDefault(ctx context.Context, date, location, createdBy string) (*domain.EodRecord, error) {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, &ValidationError{Field: "date", Reason: fmt.Sprintf("date %q is not in YYYY-MM-DD form", date)}
	}

	rec, err := c.records.Get(ctx, date, location)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NewRecord(date, location, createdBy), nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Save validates and persists the record, stamps SavedAt and appends a SAVE
// entry. Locked records cannot be saved through this path.
func (c *Lifecycle) Save(ctx context.Context, rec *domain.EodRecord) (*domain.EodRecord, error) {
	if rec.Locked() {
		return nil, ErrLocked
	}
	// The lock lives on the stored record. A payload that echoes the current
	// version but drops locked_at must not slip past it.
	stored, err := c.records.Get(ctx, rec.Date, rec.LocationName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if stored != nil && stored.Locked() {
		return nil, ErrLocked
	}
	if err := c.Validate(rec); err != nil {
		return nil, err
	}

	prev := rec.SavedAt
	now := c.now().UTC()
	rec.SavedAt = &now
	if err := c.records.Upsert(ctx, rec); err != nil {
		rec.SavedAt = prev
		return nil, err
	}

	if err := c.audit(ctx, rec, domain.ActionSave, map[string]string{
		"staff":        rec.Staff,
		"float_amount": rec.FloatAmount.StringFixed(2),
	}); err != nil {
		return nil, err
	}

	c.log.Info("record saved",
		zap.String("date", rec.Date),
		zap.String("location", rec.LocationName),
		zap.String("staff", rec.Staff))
	return rec, nil
}

// Lock validates the record, stamps LockedAt (and SavedAt if the record was
// never saved) and appends a LOCK entry. Locking an already-locked record
// reports ErrAlreadyLocked without touching storage.
func (c *Lifecycle) Lock(ctx context.Context, rec *domain.EodRecord) (*domain.EodRecord, error) {
	if rec.Locked() {
		return nil, ErrAlreadyLocked
	}
	stored, err := c.records.Get(ctx, rec.Date, rec.LocationName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if stored != nil && stored.Locked() {
		return nil, ErrAlreadyLocked
	}
	if err := c.Validate(rec); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	if !rec.Saved() {
		rec.SavedAt = &now
	}
	rec.LockedAt = &now
	if err := c.records.Upsert(ctx, rec); err != nil {
		rec.LockedAt = nil
		return nil, err
	}

	if err := c.audit(ctx, rec, domain.ActionLock, map[string]string{"staff": rec.Staff}); err != nil {
		return nil, err
	}

	c.log.Info("record locked",
		zap.String("date", rec.Date),
		zap.String("location", rec.LocationName))
	return rec, nil
}

// Unlock clears the lock after checking the caller's credential against the
// configured unlock secret. The stored record is authoritative for the lock
// state; the caller's copy only names the key. A rejected credential changes
// nothing and leaves no ledger trace.
func (c *Lifecycle) Unlock(ctx context.Context, rec *domain.EodRecord, credential string) (*domain.EodRecord, error) {
	stored, err := c.records.Get(ctx, rec.Date, rec.LocationName)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotLocked
	}
	if err != nil {
		return nil, err
	}
	if !stored.Locked() {
		return nil, ErrNotLocked
	}
	if subtle.ConstantTimeCompare([]byte(credential), []byte(c.secret)) != 1 {
		return nil, ErrInvalidCredential
	}

	now := c.now().UTC()
	stored.LockedAt = nil
	stored.SavedAt = &now
	if err := c.records.Upsert(ctx, stored); err != nil {
		return nil, err
	}

	if err := c.audit(ctx, stored, domain.ActionUnlock, nil); err != nil {
		return nil, err
	}

	c.log.Info("record unlocked",
		zap.String("date", stored.Date),
		zap.String("location", stored.LocationName))
	return stored, nil
}

// AddChequeLine appends an empty cheque slot. Rejected while locked.
func (c *Lifecycle) AddChequeLine(rec *domain.EodRecord) error {
	if rec.Locked() {
		return ErrLocked
	}
	rec.ChequeLines = append(rec.ChequeLines, domain.LineItem{})
	return nil
}

// AddPaidOutLine appends an empty paid-out slot. Rejected while locked.
func (c *Lifecycle) AddPaidOutLine(rec *domain.EodRecord) error {
	if rec.Locked() {
		return ErrLocked
	}
	rec.PaidOutLines = append(rec.PaidOutLines, domain.LineItem{})
	return nil
}

// Validate applies the save/lock business rules. The first failed rule is
// reported; nothing is written.
func (c *Lifecycle) Validate(rec *domain.EodRecord) error {
	if rec.Staff == "" {
		return &ValidationError{Field: "staff", Reason: "staff required"}
	}
	if rec.LocationName == "" {
		return &ValidationError{Field: "location_name", Reason: "location required"}
	}
	if _, err := time.Parse(domain.DateLayout, rec.Date); err != nil {
		return &ValidationError{Field: "date", Reason: fmt.Sprintf("date %q is not in YYYY-MM-DD form", rec.Date)}
	}
	if rec.FloatAmount.IsNegative() {
		return &ValidationError{Field: "float_amount", Reason: "float must not be negative"}
	}
	if rec.CashCount.CoinsTotal.IsNegative() {
		return &ValidationError{Field: "cash_count", Reason: "coins total must not be negative"}
	}

	for field, lines := range map[string][]domain.LineItem{
		"x_readings":     rec.XReadings,
		"epos_lines":     rec.EposLines,
		"cheque_lines":   rec.ChequeLines,
		"paid_out_lines": rec.PaidOutLines,
	} {
		for i, li := range lines {
			if li.Amount.IsNegative() {
				return &ValidationError{Field: field, Reason: fmt.Sprintf("%s[%d] must not be negative", field, i)}
			}
		}
	}

	// A banked deposit and its bag number travel together.
	bov := calc.BovDepositTotal(rec.DepositCount)
	if bov.IsPositive() && rec.BagNumber == "" {
		return &ValidationError{Field: "bag_number", Reason: "bag number required when a bank deposit is recorded"}
	}
	if rec.BagNumber != "" && !bov.IsPositive() {
		return &ValidationError{Field: "deposit_count", Reason: "bank deposit breakdown required when a bag number is set"}
	}

	return nil
}

// AdminClear irreversibly wipes all records, the audit ledger and the
// contacts, then appends a single ADMIN_CLEAR entry so the wipe itself
// leaves a trace. The actor and location are checked up front: the trailing
// ledger entry needs both, and a wipe must never half-succeed.
func (c *Lifecycle) AdminClear(ctx context.Context, location, by string) error {
	if location == "" {
		return &ValidationError{Field: "location_name", Reason: "location required"}
	}
	if by == "" {
		return &ValidationError{Field: "by", Reason: "actor required"}
	}

	if err := c.records.ClearAll(ctx); err != nil {
		return err
	}
	if err := c.ledger.ClearAll(ctx); err != nil {
		return err
	}
	if err := c.contacts.ClearAll(ctx); err != nil {
		return err
	}

	entry := domain.AuditEntry{
		Timestamp:    c.now().UTC(),
		Date:         c.now().UTC().Format(domain.DateLayout),
		LocationName: location,
		By:           by,
		Action:       domain.ActionAdminClear,
	}
	if err := c.ledger.Append(ctx, entry); err != nil {
		return err
	}

	c.log.Warn("local data wiped", zap.String("by", by), zap.String("location", location))
	return nil
}

func (c *Lifecycle) audit(ctx context.Context, rec *domain.EodRecord, action domain.AuditAction, details map[string]string) error {
	actor := rec.CreatedBy
	if actor == "" {
		actor = rec.Staff
	}
	return c.ledger.Append(ctx, domain.AuditEntry{
		Timestamp:    c.now().UTC(),
		Date:         rec.Date,
		LocationName: rec.LocationName,
		By:           actor,
		Action:       action,
		Details:      details,
	})
}
