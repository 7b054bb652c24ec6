package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// CallKind role of a call inside a bundle. The numeric order is the required bundle order.
type CallKind int

const (
	CallWithdraw CallKind = iota
	CallApprove
	CallDeposit
	CallPrimaryOrder
	CallSecondaryOrder
)

// String returns the string representation of the call kind.
func (k CallKind) String() string {
	switch k {
	case CallWithdraw:
		return "withdraw"
	case CallApprove:
		return "approve"
	case CallDeposit:
		return "deposit"
	case CallPrimaryOrder:
		return "primary_order"
	case CallSecondaryOrder:
		return "secondary_order"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k CallKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// stage groups approvals and deposits into one ordering slot.
func (k CallKind) stage() int {
	switch k {
	case CallWithdraw:
		return 0
	case CallApprove, CallDeposit:
		return 1
	case CallPrimaryOrder:
		return 2
	default:
		return 3
	}
}

// Precedes reports whether a call of kind k may appear before a call of kind next.
func (k CallKind) Precedes(next CallKind) bool {
	return k.stage() <= next.stage()
}

// TransactionCall unsigned call handed to the execution client.
// Kind and Amount are local metadata and never sent on the wire.
type TransactionCall struct {
	Target  common.Address `json:"to"`
	Payload hexutil.Bytes  `json:"data"`
	Value   *big.Int       `json:"value"`

	Kind   CallKind        `json:"-"`
	Amount decimal.Decimal `json:"-"`
	// Order leg carried by venue order calls.
	Order *CallOrder `json:"-"`
}

// CallOrder leg description attached to a venue order call.
type CallOrder struct {
	Venue Venue
	Pair  Pair
	Side  Side
	Leg   Leg
}

// WireValue returns the value, zero when unset.
func (c TransactionCall) WireValue() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

// CallSummary human-readable view of a bundled call.
type CallSummary struct {
	Kind   CallKind `json:"kind"`
	Target string   `json:"to"`
	Amount string   `json:"amount,omitempty"`
	Value  string   `json:"value"`
}

// Summarize returns the call summaries of a bundle in order.
func Summarize(calls []TransactionCall) []CallSummary {
	out := make([]CallSummary, 0, len(calls))
	for _, c := range calls {
		s := CallSummary{
			Kind:   c.Kind,
			Target: c.Target.Hex(),
			Value:  c.WireValue().String(),
		}
		if !c.Amount.IsZero() {
			s.Amount = c.Amount.String()
		}
		out = append(out, s)
	}
	return out
}
