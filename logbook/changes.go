package logbook

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RelativeChanges returns, for each entry of series, its percentage change
// against the nearest earlier non-zero entry. Entries up to and including
// the first non-zero one have no prior value and are reported as not
// valid, never as zero.
func RelativeChanges(series []decimal.Decimal) []decimal.NullDecimal {
	out := make([]decimal.NullDecimal, len(series))
	prior := -1
	for i, v := range series {
		if prior >= 0 {
			base := series[prior]
			out[i] = decimal.NullDecimal{
				Decimal: v.Sub(base).Div(base).Mul(hundred).Round(2),
				Valid:   true,
			}
		}
		if !v.IsZero() {
			prior = i
		}
	}
	return out
}
