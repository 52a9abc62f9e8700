package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Money is a signed millisatoshi counter. Unlike decimal currencies, a
// millisatoshi is already the smallest unit in the system, so Money carries
// no fractional minor-unit scaling.
type Money int64

// ParseMoney parses a plain base-10 integer string of millisatoshis.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty value")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid value %q: %w", s, err)
	}
	return Money(v), nil
}

// MustParseMoney parses s and panics if it is not a valid Money value.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MinorUnits returns the value as a raw millisatoshi count.
func (m Money) MinorUnits() int64 {
	return int64(m)
}

// DecimalString renders the canonical base-10 representation.
func (m Money) DecimalString() string {
	return strconv.FormatInt(int64(m), 10)
}

// Add returns the sum of two Money values.
func (m Money) Add(other Money) Money {
	return m + other
}

// Sub returns the difference of two Money values.
func (m Money) Sub(other Money) Money {
	return m - other
}

// Positive reports whether the balance is greater than zero.
func (m Money) Positive() bool {
	return m > 0
}

// String implements fmt.Stringer.
func (m Money) String() string {
	return m.DecimalString()
}

// MarshalJSON implements json.Marshaler, emitting a canonical JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.DecimalString()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Money) UnmarshalJSON(data []byte) error {
	v, err := ParseMoney(string(data))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Value implements driver.Valuer for database storage.
func (m Money) Value() (driver.Value, error) {
	return int64(m), nil
}

// Scan implements sql.Scanner for database retrieval.
func (m *Money) Scan(value any) error {
	if value == nil {
		*m = 0
		return nil
	}
	switch v := value.(type) {
	case int64:
		*m = Money(v)
	case int:
		*m = Money(v)
	case []byte:
		parsed, err := ParseMoney(string(v))
		if err != nil {
			return err
		}
		*m = parsed
	case string:
		parsed, err := ParseMoney(v)
		if err != nil {
			return err
		}
		*m = parsed
	default:
		return fmt.Errorf("money: unsupported scan type %T", value)
	}
	return nil
}
