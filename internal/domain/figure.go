package domain

import (
	"bytes"

	"github.com/shopspring/decimal"
)

// Figure a computed value that may be unavailable.
// Degenerate inputs produce an unavailable figure instead of a zero or an undefined number.
type Figure struct {
	value decimal.Decimal
	ok    bool
}

// Unavailable is the zero Figure.
var Unavailable = Figure{}

// Available wraps a known value.
func Available(d decimal.Decimal) Figure {
	return Figure{value: d, ok: true}
}

// Value returns the wrapped value and whether it is available.
func (f Figure) Value() (decimal.Decimal, bool) {
	return f.value, f.ok
}

// IsAvailable reports whether the figure carries a value.
func (f Figure) IsAvailable() bool {
	return f.ok
}

// Or returns the value or the fallback when unavailable.
func (f Figure) Or(fallback decimal.Decimal) decimal.Decimal {
	if !f.ok {
		return fallback
	}
	return f.value
}

// Equal compares two figures; unavailable figures are equal to each other.
func (f Figure) Equal(other Figure) bool {
	if f.ok != other.ok {
		return false
	}
	return !f.ok || f.value.Equal(other.value)
}

// String returns the decimal string or "n/a".
func (f Figure) String() string {
	if !f.ok {
		return "n/a"
	}
	return f.value.String()
}

// MarshalJSON encodes unavailable figures as null.
func (f Figure) MarshalJSON() ([]byte, error) {
	if !f.ok {
		return []byte("null"), nil
	}
	return []byte(`"` + f.value.String() + `"`), nil
}

// UnmarshalJSON decodes null as unavailable.
func (f *Figure) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*f = Unavailable
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*f = Available(d)
	return nil
}
