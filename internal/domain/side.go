package domain

import "fmt"

// Side direction of an order or a position.
type Side int

const (
	SideLong Side = iota
	SideShort
)

const (
	sideStringLong  = "long"
	sideStringShort = "short"
)

// String returns the string representation of the side.
func (s Side) String() string {
	switch s {
	case SideLong:
		return sideStringLong
	case SideShort:
		return sideStringShort
	default:
		return "unknown"
	}
}

// IsLong reports whether the side is long.
func (s Side) IsLong() bool {
	return s == SideLong
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case sideStringLong:
		*s = SideLong
	case sideStringShort:
		*s = SideShort
	default:
		return fmt.Errorf("unknown side %q", string(b))
	}
	return nil
}

// OrderType market or limit order.
type OrderType int

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
)

const (
	orderTypeStringMarket = "market"
	orderTypeStringLimit  = "limit"
)

// String returns the string representation of the order type.
func (o OrderType) String() string {
	switch o {
	case OrderTypeMarket:
		return orderTypeStringMarket
	case OrderTypeLimit:
		return orderTypeStringLimit
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o OrderType) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OrderType) UnmarshalText(b []byte) error {
	switch string(b) {
	case orderTypeStringMarket, "":
		*o = OrderTypeMarket
	case orderTypeStringLimit:
		*o = OrderTypeLimit
	default:
		return fmt.Errorf("unknown order type %q", string(b))
	}
	return nil
}
