package domain

import "fmt"

// Venue execution venue tag.
type Venue int

const (
	// VenuePrimary fee-cheaper venue with finite, pair-specific liquidity.
	VenuePrimary Venue = iota
	// VenueSecondary overflow venue.
	VenueSecondary
)

const (
	venueStringPrimary   = "primary"
	venueStringSecondary = "secondary"
)

// Venues lists every venue in routing preference order.
var Venues = []Venue{VenuePrimary, VenueSecondary}

// String returns the string representation of the venue.
func (v Venue) String() string {
	switch v {
	case VenuePrimary:
		return venueStringPrimary
	case VenueSecondary:
		return venueStringSecondary
	default:
		return "unknown"
	}
}

// Other returns the opposite venue.
func (v Venue) Other() Venue {
	if v == VenuePrimary {
		return VenueSecondary
	}
	return VenuePrimary
}

// MarshalText implements encoding.TextMarshaler.
func (v Venue) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Venue) UnmarshalText(b []byte) error {
	switch string(b) {
	case venueStringPrimary:
		*v = VenuePrimary
	case venueStringSecondary:
		*v = VenueSecondary
	default:
		return fmt.Errorf("unknown venue %q", string(b))
	}
	return nil
}
