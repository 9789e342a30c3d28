package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/johnagius/eikon-eod/internal/calc"
	"github.com/johnagius/eikon-eod/internal/domain"
	"github.com/johnagius/eikon-eod/internal/store"
)

var ErrInvalidRange = errors.New("report range end precedes start")

const yearMonthLayout = "2006-01"

// Reporting folds stored records through the calculator to build monthly
// summaries and date-range datasets for the print renderer. Results are
// recomputed on every call; record counts are bounded by days per month, so
// correctness wins over caching.
type Reporting struct {
	records *store.RecordStore
	ledger  *store.AuditLedger
	log     *zap.Logger

	now func() time.Time
}

func NewReporting(records *store.RecordStore, ledger *store.AuditLedger, log *zap.Logger) *Reporting {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporting{records: records, ledger: ledger, log: log, now: time.Now}
}

// PrintDataset is a fully computed record ready for the print renderer, which
// must not redo any arithmetic.
type PrintDataset struct {
	Record    domain.EodRecord `json:"record"`
	Breakdown calc.Breakdown   `json:"breakdown"`
}

// MonthSummary aggregates every record of the location falling in yearMonth
// (YYYY-MM).
func (r *Reporting) MonthSummary(ctx context.Context, location, yearMonth string) (*domain.MonthSummary, error) {
	if _, err := time.Parse(yearMonthLayout, yearMonth); err != nil {
		return nil, fmt.Errorf("month %q is not in YYYY-MM form: %w", yearMonth, err)
	}

	recs, err := r.records.ListByLocation(ctx, location)
	if err != nil {
		return nil, err
	}

	summary := &domain.MonthSummary{
		LocationName:   location,
		YearMonth:      yearMonth,
		TotalCashE:     decimal.Zero,
		TotalOverUnder: decimal.Zero,
		TotalCoinsDiff: decimal.Zero,
	}
	for i := range recs {
		if !strings.HasPrefix(recs[i].Date, yearMonth+"-") {
			continue
		}
		b := calc.Compute(&recs[i])
		summary.DayCount++
		summary.TotalCashE = summary.TotalCashE.Add(b.TotalCashE)
		summary.TotalOverUnder = summary.TotalOverUnder.Add(b.OverUnder)
		summary.TotalCoinsDiff = summary.TotalCoinsDiff.Add(b.CoinsDiff)
	}
	return summary, nil
}

// RangeReport returns one row per stored record in [from, to], oldest first,
// and appends a PRINT_RANGE entry for the actor. The range is rejected before
// any read when to < from.
func (r *Reporting) RangeReport(ctx context.Context, location, from, to, by string) ([]domain.RangeRow, error) {
	for _, d := range []string{from, to} {
		if _, err := time.Parse(domain.DateLayout, d); err != nil {
			return nil, fmt.Errorf("date %q is not in YYYY-MM-DD form: %w", d, err)
		}
	}
	if to < from {
		return nil, ErrInvalidRange
	}

	recs, err := r.records.ListByLocation(ctx, location)
	if err != nil {
		return nil, err
	}

	var rows []domain.RangeRow
	for i := range recs {
		if recs[i].Date < from || recs[i].Date > to {
			continue
		}
		b := calc.Compute(&recs[i])
		rows = append(rows, domain.RangeRow{
			Date:       recs[i].Date,
			Staff:      recs[i].Staff,
			TotalCashE: b.TotalCashE,
			OverUnder:  b.OverUnder,
			LockedAt:   recs[i].LockedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })

	if err := r.ledger.Append(ctx, domain.AuditEntry{
		Timestamp:    r.now().UTC(),
		Date:         from,
		LocationName: location,
		By:           by,
		Action:       domain.ActionPrintRange,
		Details:      map[string]string{"from": from, "to": to},
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

// PrintDataset loads the record for (date, location), computes its breakdown
// and appends a PRINT_SINGLE entry. Printing is allowed regardless of lock
// state.
func (r *Reporting) PrintDataset(ctx context.Context, date, location, by string) (*PrintDataset, error) {
	rec, err := r.records.Get(ctx, date, location)
	if err != nil {
		return nil, err
	}

	if err := r.ledger.Append(ctx, domain.AuditEntry{
		Timestamp:    r.now().UTC(),
		Date:         date,
		LocationName: location,
		By:           by,
		Action:       domain.ActionPrint,
	}); err != nil {
		return nil, err
	}

	return &PrintDataset{Record: *rec, Breakdown: calc.Compute(rec)}, nil
}
