package exam

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Percentage returns score/possible*100, or zero when nothing was possible.
func Percentage(score, possible decimal.Decimal) decimal.Decimal {
	if !possible.IsPositive() {
		return decimal.Zero
	}
	return score.Div(possible).Mul(hundred)
}

func LetterGrade(percentage decimal.Decimal) string {
	switch {
	case percentage.GreaterThanOrEqual(decimal.NewFromInt(90)):
		return "A"
	case percentage.GreaterThanOrEqual(decimal.NewFromInt(80)):
		return "B"
	case percentage.GreaterThanOrEqual(decimal.NewFromInt(70)):
		return "C"
	case percentage.GreaterThanOrEqual(decimal.NewFromInt(60)):
		return "D"
	default:
		return "F"
	}
}
