package domain

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

var (
	// ErrCurrencyMismatch is returned when two Money values of different currencies are combined.
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	// ErrInvalidCurrency signals a currency code that is not a known ISO 4217 unit.
	ErrInvalidCurrency = errors.New("money: invalid currency code")
	// ErrInvalidPercentage signals a percentage outside the [0, 100] range.
	ErrInvalidPercentage = errors.New("money: percentage out of range")
)

// Money is an amount of a single currency expressed in minor units (cents, yen, ...).
// It is a value type; arithmetic returns new values and never mutates operands.
type Money struct {
	Amount   int64
	Currency string
}

// NewMoney validates the currency code and returns a Money value.
func NewMoney(amount int64, code string) (Money, error) {
	normalized, err := NormalizeCurrency(code)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: normalized}, nil
}

// MustMoney is a convenience constructor for literals in wiring and tests.
// It panics on an invalid currency code.
func MustMoney(amount int64, code string) Money {
	m, err := NewMoney(amount, code)
	if err != nil {
		panic(err)
	}
	return m
}

// NormalizeCurrency upper-cases and validates an ISO 4217 currency code.
func NormalizeCurrency(code string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		return "", ErrInvalidCurrency
	}
	unit, err := currency.ParseISO(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return unit.String(), nil
}

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns m - other, clamped at zero: a discount never produces a negative price.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	result := m.Amount - other.Amount
	if result < 0 {
		result = 0
	}
	return Money{Amount: result, Currency: m.Currency}, nil
}

// PercentageOf computes pct% of m rounded half up to the minor unit.
// pct is expressed in basis points of a percent times 100, i.e. pct = 3550 means 35.50%.
// Round half up, not banker's rounding: 195606.25 minor-unit hundredths round to 195606,
// 195606.50 round to 195607.
func (m Money) PercentageOf(pct Percentage) (Money, error) {
	if pct < 0 || pct > 10000 {
		return Money{}, fmt.Errorf("%w: %d", ErrInvalidPercentage, pct)
	}
	// amount * pct yields hundredths-of-percent of a minor unit; divide by 10000
	// with half-up rounding on the remainder.
	raw := m.Amount * int64(pct)
	quotient := raw / 10000
	remainder := raw % 10000
	if remainder*2 >= 10000 {
		quotient++
	}
	return Money{Amount: quotient, Currency: m.Currency}, nil
}

// Compare returns -1, 0 or 1 ordering m against other.
func (m Money) Compare(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// String renders the minor-unit amount with its currency for logs and errors.
func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

// Percentage is a discount percentage in hundredths of a percent.
// 1500 = 15%, 3550 = 35.5%. Valid range is [0, 10000].
type Percentage int64

// PercentFromBasis builds a Percentage from whole percent and hundredths, e.g. (35, 0) = 35%.
func PercentFromBasis(whole, hundredths int64) Percentage {
	return Percentage(whole*100 + hundredths)
}

// Valid reports whether the percentage lies in [0, 100].
func (p Percentage) Valid() bool { return p >= 0 && p <= 10000 }
