// Package record maps a parsed extraction onto the stored result shape.
package record

import (
	"encoding/json"
	"math"
	"strings"

	money "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"fund_extractor/pkg/core/parser"
	"fund_extractor/pkg/models"
)

// none is how an absent amount is rendered.
const none = "None"

// Assemble builds the result for text and ex. It does no I/O and never fails;
// absent fund_info fields render as empty strings and an absent aum as "None".
func Assemble(text string, ex *parser.Extraction) *models.PortfolioResult {
	info, _ := ex.Data["fund_info"].(map[string]any)

	name := stringify(info["name"], "")
	currency := stringify(info["currency"], "")
	amount := stringify(info["aum"], none)

	res := &models.PortfolioResult{
		RawText: text,
		Entities: models.Entities{
			FundNames:  []string{name},
			Amounts:    []string{amount},
			Currencies: []string{currency},
		},
		Holdings: wrap(ex.Holdings),
		Sectors:  wrap(ex.Sectors),
		RawData:  ex.Data,
	}
	if display, ok := FormatAmount(amount, currency); ok {
		res.Entities.FormattedAmounts = []string{display}
	}
	for _, w := range ex.Warnings {
		res.Warnings = append(res.Warnings, w.String())
	}
	return res
}

// Bounds of the minor-unit amount go-money can hold.
var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// FormatAmount renders amount in currency's display format, for example
// "₹1,234.50". It reports false for unknown currencies and non-numeric amounts, and for amounts too large to represent in minor units.
func FormatAmount(amount, currency string) (string, bool) {
	cur := money.GetCurrency(strings.ToUpper(strings.TrimSpace(currency)))
	if cur == nil {
		return "", false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(amount, ",", ""))
	if err != nil {
		return "", false
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return "", false
	}
	return money.New(minor.IntPart(), cur.Code).Display(), true
}

func wrap(items []any) []models.Wrapped {
	out := make([]models.Wrapped, len(items))
	for i, item := range items {
		out[i] = models.Wrapped{Data: item}
	}
	return out
}

// stringify renders a decoded JSON value as text. missing is used for null.
func stringify(v any, missing string) string {
	switch t := v.(type) {
	case nil:
		return missing
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "True"
		}
		return "False"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return missing
		}
		return string(b)
	}
}
