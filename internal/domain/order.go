package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SizePrecision decimal places kept by size and margin truncation.
const SizePrecision int32 = 6

// Truncate rounds toward zero at SizePrecision.
func Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(SizePrecision)
}

// OrderIntent a single leveraged order as submitted by the trader. Never mutated by the router.
type OrderIntent struct {
	Pair       Pair            `json:"pair"`
	Side       Side            `json:"side"`
	Size       decimal.Decimal `json:"size"`
	Leverage   decimal.Decimal `json:"leverage"`
	Type       OrderType       `json:"type"`
	LimitPrice decimal.Decimal `json:"limitPrice"`
	// TakeProfit and StopLoss are optional; zero means unset.
	TakeProfit decimal.Decimal `json:"takeProfit"`
	StopLoss   decimal.Decimal `json:"stopLoss"`
	Referrer   common.Address  `json:"referrer"`
}

// Margin returns size / leverage without rounding.
func (o OrderIntent) Margin() decimal.Decimal {
	if o.Leverage.IsZero() {
		return decimal.Zero
	}
	return o.Size.Div(o.Leverage)
}

// Validate checks the intent before routing.
func (o OrderIntent) Validate() error {
	switch {
	case o.Pair.IsZero():
		return NewRejection(ErrInvalidOrder, RejectInvalidOrder, "pair is required")
	case !o.Size.IsPositive():
		return NewRejection(ErrInvalidOrder, RejectInvalidOrder, "size must be greater than zero")
	case !o.Leverage.IsPositive():
		return NewRejection(ErrInvalidOrder, RejectInvalidOrder, "leverage must be greater than zero")
	case Truncate(o.Size).IsZero():
		return NewRejection(ErrInvalidOrder, RejectInvalidOrder, "size %s is below precision", o.Size)
	case o.Type == OrderTypeLimit && !o.LimitPrice.IsPositive():
		return NewRejection(ErrInvalidOrder, RejectInvalidOrder, "limit order requires a positive limit price")
	case o.TakeProfit.IsNegative() || o.StopLoss.IsNegative():
		return NewRejection(ErrInvalidOrder, RejectInvalidOrder, "take-profit and stop-loss must not be negative")
	}
	return nil
}
