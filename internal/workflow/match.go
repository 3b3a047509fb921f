package workflow

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchInput carries the three documents' figures for one line.
type MatchInput struct {
	OrderedQty    decimal.Decimal
	OrderedPrice  decimal.Decimal
	ReceivedQty   decimal.Decimal
	InvoicedQty   decimal.Decimal
	InvoicedPrice decimal.Decimal
}

// MatchLine runs the three-way match for one invoice line. tolerance is the
// allowed relative price deviation (0.05 = 5%). Quantity strictly greater
// than received, or price beyond tolerance, flags the line; a line with
// nothing received yet cannot be evaluated and stays pending.
func MatchLine(in MatchInput, tolerance decimal.Decimal) (MatchStatus, string) {
	if in.ReceivedQty.IsZero() {
		return MatchPending, "no received quantity to match against"
	}
	if in.InvoicedQty.GreaterThan(in.ReceivedQty) {
		return MatchVariance, fmt.Sprintf("invoiced quantity %s exceeds received %s",
			in.InvoicedQty, in.ReceivedQty)
	}
	if !withinTolerance(in.OrderedPrice, in.InvoicedPrice, tolerance) {
		return MatchVariance, fmt.Sprintf("invoiced price %s deviates from ordered %s beyond tolerance",
			in.InvoicedPrice, in.OrderedPrice)
	}
	return MatchMatched, ""
}

// OverallMatch folds line statuses into the invoice-level matching status:
// variance dominates, then pending, and only an all-matched invoice is
// matched.
func OverallMatch(lines []MatchStatus) MatchStatus {
	if len(lines) == 0 {
		return MatchPending
	}
	overall := MatchMatched
	for _, status := range lines {
		switch status {
		case MatchVariance:
			return MatchVariance
		case MatchPending:
			overall = MatchPending
		}
	}
	return overall
}

func withinTolerance(ordered, invoiced, tolerance decimal.Decimal) bool {
	diff := invoiced.Sub(ordered).Abs()
	if ordered.IsZero() {
		return diff.IsZero()
	}
	return diff.Div(ordered).LessThanOrEqual(tolerance)
}
