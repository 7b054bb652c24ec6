// Package domain defines core data structures shared by the router, the valuation engine and the venue clients.
package domain

import (
	"fmt"
	"strings"
)

// Pair shared pair identifier used across both venues.
type Pair struct {
	// From base asset symbol.
	From string
	// To quote asset symbol.
	To string
}

// ParsePair parses "BASE/QUOTE". Underscore and dash separators are accepted as well.
func ParsePair(s string) (Pair, error) {
	s = strings.TrimSpace(s)
	for _, sep := range []string{"/", "_", "-"} {
		parts := strings.Split(s, sep)
		if len(parts) != 2 {
			continue
		}
		from := strings.ToUpper(strings.TrimSpace(parts[0]))
		to := strings.ToUpper(strings.TrimSpace(parts[1]))
		if from == "" || to == "" {
			break
		}
		return Pair{From: from, To: to}, nil
	}
	return Pair{}, fmt.Errorf("invalid pair %q, expected BASE/QUOTE", s)
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.From, p.To)
}

// Symbol returns the concatenated symbol representation.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}

// IsZero reports whether the pair is unset.
func (p Pair) IsZero() bool {
	return p.From == "" && p.To == ""
}

// MarshalText implements encoding.TextMarshaler.
func (p Pair) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pair) UnmarshalText(b []byte) error {
	parsed, err := ParsePair(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
