package types

import (
	"regexp"
	"strings"

	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/shopspring/decimal"
)

const DefaultCurrency = "eur"

var currencyCodeRegex = regexp.MustCompile(`^[a-z]{3}$`)

// zeroDecimalCurrencies are charged in whole units by the processor.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

func ValidateCurrencyCode(currency string) error {
	if !currencyCodeRegex.MatchString(strings.ToLower(currency)) {
		return ierr.NewError("invalid currency code").
			WithHint("Currency must be a 3-letter ISO code").
			WithReportableDetails(map[string]any{
				"currency": currency,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// GetCurrencyPrecision returns the number of minor-unit digits for the currency.
func GetCurrencyPrecision(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToLower(currency)]; ok {
		return 0
	}
	return 2
}

// ToMinorUnits converts a major-unit amount (euros) to the processor's smallest unit (cents).
// Amounts are rounded half away from zero to the currency precision first.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	precision := GetCurrencyPrecision(currency)
	return amount.Round(precision).Shift(precision).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -GetCurrencyPrecision(currency))
}

func EurosToCents(euros decimal.Decimal) int64 {
	return ToMinorUnits(euros, DefaultCurrency)
}

func CentsToEuros(cents int64) decimal.Decimal {
	return FromMinorUnits(cents, DefaultCurrency)
}
