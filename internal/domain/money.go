package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitExp is the number of decimal places between the major and the
// minor currency unit (rupees -> paise).
const minorUnitExp = 2

// Money is an amount in integer minor currency units (paise).
type Money int64

// MoneyFromMajor converts a major-unit decimal into minor units, rounding
// half away from zero.
func MoneyFromMajor(d decimal.Decimal) Money {
	return Money(d.Shift(minorUnitExp).Round(0).IntPart())
}

// FloorMoneyFromMajor converts a major-unit decimal into minor units,
// discarding any fraction of a minor unit.
func FloorMoneyFromMajor(d decimal.Decimal) Money {
	return Money(d.Shift(minorUnitExp).Floor().IntPart())
}

// ParseAmount parses a user-entered major-unit amount such as "50" or "12.5".
// Blank input, anything that is not a number and amounts whose minor-unit
// form does not fit in an int64 are rejected.
func ParseAmount(input string) (decimal.Decimal, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number: %w", input, err)
	}
	minor := d.Shift(minorUnitExp)
	if !minor.Round(0).BigInt().IsInt64() || !minor.Floor().BigInt().IsInt64() {
		return decimal.Zero, fmt.Errorf("amount %q is out of range", input)
	}
	return d, nil
}

// Major returns the amount in major units.
func (m Money) Major() decimal.Decimal {
	return decimal.New(int64(m), -minorUnitExp)
}

// String renders the amount in major units with two decimals ("12.34").
func (m Money) String() string {
	return m.Major().StringFixed(minorUnitExp)
}

// Display renders the amount the way the wallet UI shows it.
func (m Money) Display() string {
	return "₹ " + m.String()
}

// UnmarshalJSON accepts major units either as a JSON string ("12.34") or a
// JSON number (12.34), which is how the wallet backend reports amounts.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}

	d, err := ParseAmount(raw)
	if err != nil {
		return fmt.Errorf("decode money: %w", err)
	}
	*m = MoneyFromMajor(d)
	return nil
}

// MarshalJSON writes the amount as a major-unit string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}
