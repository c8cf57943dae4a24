package billing

import (
	"strings"

	"github.com/shopspring/decimal"

	"storebill/internal/common"
)

// ISO 4217 currencies whose minor unit is not the default two decimal places.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true,
	"XPF": true,
}

var threeDecimalCurrencies = map[string]bool{
	"BHD": true, "IQD": true, "JOD": true, "KWD": true, "LYD": true,
	"OMR": true, "TND": true,
}

// MinorUnits returns the number of decimal places of a currency's minor unit.
func MinorUnits(currency string) int32 {
	code := strings.ToUpper(currency)
	switch {
	case zeroDecimalCurrencies[code]:
		return 0
	case threeDecimalCurrencies[code]:
		return 3
	default:
		return 2
	}
}

// InvoiceAmount derives the amount an invoice bills: unit price times
// quantity, rounded to the currency's minor-unit precision. There is no
// proration; quantity or price changes only affect the next drafted invoice.
func InvoiceAmount(unitPrice decimal.Decimal, quantity int, currency string) (decimal.Decimal, error) {
	if quantity < 1 {
		return decimal.Zero, common.NewValidationError("quantity", "must be at least 1")
	}
	if unitPrice.IsNegative() {
		return decimal.Zero, common.NewValidationError("unit_price", "must not be negative")
	}
	if len(currency) != 3 {
		return decimal.Zero, common.NewValidationError("currency", "must be a 3-letter ISO code")
	}

	total := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return total.Round(MinorUnits(currency)), nil
}
