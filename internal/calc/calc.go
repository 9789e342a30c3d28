// Package calc derives every financial quantity on an EOD sheet from its raw
// line items. All functions are pure; Reporting replays them over stored
// records, so they must stay cheap and side-effect free.
package calc

import (
	"github.com/shopspring/decimal"

	"github.com/johnagius/eikon-eod/internal/domain"
)

var five = decimal.NewFromInt(5)

// Breakdown holds every derived quantity for one record. Values are exact
// decimals; callers round to 2dp only when formatting for display.
type Breakdown struct {
	TotalX          decimal.Decimal `json:"total_x"`
	TotalEpos       decimal.Decimal `json:"total_epos"`
	TotalCheques    decimal.Decimal `json:"total_cheques"`
	TotalPaidOuts   decimal.Decimal `json:"total_paid_outs"`
	ExpectedDeposit decimal.Decimal `json:"expected_deposit"`
	NotesTotal      decimal.Decimal `json:"notes_total"`
	CountedTill     decimal.Decimal `json:"counted_till"`
	TotalCashE      decimal.Decimal `json:"total_cash_e"`
	RoundedDepositF decimal.Decimal `json:"rounded_deposit_f"`
	CoinsDiff       decimal.Decimal `json:"coins_diff"`
	OverUnder       decimal.Decimal `json:"over_under"`
	BovDepositTotal decimal.Decimal `json:"bov_deposit_total"`
}

// Compute derives the full breakdown for a record.
func Compute(r *domain.EodRecord) Breakdown {
	b := Breakdown{
		TotalX:        SumLines(r.XReadings),
		TotalEpos:     SumLines(r.EposLines),
		TotalCheques:  SumLines(r.ChequeLines),
		TotalPaidOuts: SumLines(r.PaidOutLines),
	}

	// Expected deposit may legitimately go negative (e.g. a card-heavy day
	// with refunds); it is reported as-is, never clamped.
	b.ExpectedDeposit = b.TotalX.Sub(b.TotalEpos).Sub(b.TotalCheques).Sub(b.TotalPaidOuts)

	b.NotesTotal = notesTotal(r.CashCount)
	b.CountedTill = b.NotesTotal.Add(r.CashCount.CoinsTotal)

	// Cash to deposit: counted till minus float, clamped at zero. A till
	// holding less than the float is an anomaly surfaced through OverUnder,
	// not an error here.
	b.TotalCashE = b.CountedTill.Sub(r.FloatAmount)
	if b.TotalCashE.IsNegative() {
		b.TotalCashE = decimal.Zero
	}

	b.RoundedDepositF = RoundToFive(b.TotalCashE)
	b.CoinsDiff = b.TotalCashE.Sub(b.RoundedDepositF)
	b.OverUnder = b.TotalCashE.Sub(b.ExpectedDeposit)
	b.BovDepositTotal = BovDepositTotal(r.DepositCount)
	return b
}

// SumLines totals the amounts of a line-item list.
func SumLines(lines []domain.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range lines {
		total = total.Add(li.Amount)
	}
	return total
}

// RoundToFive rounds to the nearest multiple of 5 currency units, half away
// from zero. decimal.Round already carries half-away-from-zero semantics.
func RoundToFive(v decimal.Decimal) decimal.Decimal {
	return v.Div(five).Round(0).Mul(five)
}

// BovDepositTotal values the bank-deposit note breakdown.
func BovDepositTotal(d domain.DepositCount) decimal.Decimal {
	return noteSum([]noteCount{
		{500, d.N500}, {200, d.N200}, {100, d.N100},
		{50, d.N50}, {20, d.N20}, {10, d.N10},
	})
}

type noteCount struct {
	value int64
	count int
}

func notesTotal(c domain.CashCount) decimal.Decimal {
	return noteSum([]noteCount{
		{500, c.N500}, {200, c.N200}, {100, c.N100},
		{50, c.N50}, {20, c.N20}, {10, c.N10}, {5, c.N5},
	})
}

func noteSum(counts []noteCount) decimal.Decimal {
	total := decimal.Zero
	for _, nc := range counts {
		total = total.Add(decimal.NewFromInt(nc.value).Mul(decimal.NewFromInt(int64(nc.count))))
	}
	return total
}
