package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date key format for EOD records.
const DateLayout = "2006-01-02"

// TimeOfDay distinguishes the morning and evening till sessions.
type TimeOfDay string

const (
	TimeAM TimeOfDay = "AM"
	TimePM TimeOfDay = "PM"
)

// LineItem is a single monetary line (X-reading, EPOS, cheque or paid-out).
type LineItem struct {
	Amount decimal.Decimal `json:"amount"`
	Remark string          `json:"remark"`
}

// CashCount is the denomination breakdown of the till count. Notes are counted
// per denomination; coins are entered as a single pre-added total.
type CashCount struct {
	N500       int             `json:"n500"`
	N200       int             `json:"n200"`
	N100       int             `json:"n100"`
	N50        int             `json:"n50"`
	N20        int             `json:"n20"`
	N10        int             `json:"n10"`
	N5         int             `json:"n5"`
	CoinsTotal decimal.Decimal `json:"coins_total"`
}

// DepositCount is the note breakdown of the bank deposit bag. Fives are never
// banked, so the denomination set is one short of CashCount.
type DepositCount struct {
	N500 int `json:"n500"`
	N200 int `json:"n200"`
	N100 int `json:"n100"`
	N50  int `json:"n50"`
	N20  int `json:"n20"`
	N10  int `json:"n10"`
}

// EodRecord is one end-of-day reconciliation sheet, keyed by (Date, LocationName).
type EodRecord struct {
	Date         string          `json:"date"`
	TimeOfDay    TimeOfDay       `json:"time_of_day"`
	Staff        string          `json:"staff"`
	LocationName string          `json:"location_name"`
	CreatedBy    string          `json:"created_by"`
	FloatAmount  decimal.Decimal `json:"float_amount"`
	XReadings    []LineItem      `json:"x_readings"`
	EposLines    []LineItem      `json:"epos_lines"`
	ChequeLines  []LineItem      `json:"cheque_lines"`
	PaidOutLines []LineItem      `json:"paid_out_lines"`
	CashCount    CashCount       `json:"cash_count"`
	BagNumber    string          `json:"bag_number"`
	DepositCount DepositCount    `json:"deposit_count"`
	ContactID    string          `json:"contact_id,omitempty"`
	SavedAt      *time.Time      `json:"saved_at,omitempty"`
	LockedAt     *time.Time      `json:"locked_at,omitempty"`

	// Version guards Upsert against stale writes from a second client.
	// Zero means the record has never been persisted.
	Version int64 `json:"version"`
}

// NewRecord returns a blank record for the given key with the default slot
// counts: 4 X-readings, 4 EPOS lines, 2 cheque slots and 1 paid-out slot.
func NewRecord(date, location, createdBy string) *EodRecord {
	return &EodRecord{
		Date:         date,
		TimeOfDay:    TimePM,
		LocationName: location,
		CreatedBy:    createdBy,
		FloatAmount:  decimal.Zero,
		XReadings:    emptyLines(4),
		EposLines:    emptyLines(4),
		ChequeLines:  emptyLines(2),
		PaidOutLines: emptyLines(1),
		CashCount:    CashCount{CoinsTotal: decimal.Zero},
	}
}

func emptyLines(n int) []LineItem {
	lines := make([]LineItem, n)
	for i := range lines {
		lines[i].Amount = decimal.Zero
	}
	return lines
}

// Locked reports whether the record is under the business-level lock.
func (r *EodRecord) Locked() bool {
	return r.LockedAt != nil && !r.LockedAt.IsZero()
}

// Saved reports whether the record has ever been saved.
func (r *EodRecord) Saved() bool {
	return r.SavedAt != nil && !r.SavedAt.IsZero()
}

// AuditAction enumerates the lifecycle actions recorded in the ledger.
type AuditAction string

const (
	ActionSave       AuditAction = "SAVE"
	ActionLock       AuditAction = "LOCK"
	ActionUnlock     AuditAction = "UNLOCK"
	ActionPrint      AuditAction = "PRINT_SINGLE"
	ActionPrintRange AuditAction = "PRINT_RANGE"
	ActionAdminClear AuditAction = "ADMIN_CLEAR"
)

// AuditEntry is one immutable row in the audit ledger.
type AuditEntry struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Date         string            `json:"date"`
	LocationName string            `json:"location_name"`
	By           string            `json:"by"`
	Action       AuditAction       `json:"action"`
	Details      map[string]string `json:"details,omitempty"`
}

// Contact is a bank or accounts contact referenced by EodRecord.ContactID.
// Contacts are owned by the address-book UI; the engine only stores and lists them.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// MonthSummary is the month-to-date aggregate for one location.
type MonthSummary struct {
	LocationName   string          `json:"location_name"`
	YearMonth      string          `json:"year_month"`
	DayCount       int             `json:"day_count"`
	TotalCashE     decimal.Decimal `json:"total_cash_e"`
	TotalOverUnder decimal.Decimal `json:"total_over_under"`
	TotalCoinsDiff decimal.Decimal `json:"total_coins_diff"`
}

// RangeRow is one day's line in a multi-day report dataset.
type RangeRow struct {
	Date       string          `json:"date"`
	Staff      string          `json:"staff"`
	TotalCashE decimal.Decimal `json:"total_cash_e"`
	OverUnder  decimal.Decimal `json:"over_under"`
	LockedAt   *time.Time      `json:"locked_at,omitempty"`
}
