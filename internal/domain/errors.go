package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNoVenueAvailable neither venue can take the order.
	ErrNoVenueAvailable = errors.New("no venue available")
	// ErrInsufficientCombinedBalance vault and spend wallet together cannot fund the order.
	ErrInsufficientCombinedBalance = errors.New("insufficient combined balance")
	// ErrInvalidOrder the order intent is malformed.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrUnknownMarket the pair is not present in the market registry.
	ErrUnknownMarket = errors.New("unknown market")
	// ErrPreparationFailed a venue or bridging preparation call failed.
	ErrPreparationFailed = errors.New("order preparation failed")
	// ErrNoSession execution requested before a session was established.
	ErrNoSession = errors.New("no active session")
)

// RejectCode category of a routing rejection.
type RejectCode string

const (
	RejectLiquidity       RejectCode = "liquidity"
	RejectMinMargin       RejectCode = "min_margin"
	RejectBalance         RejectCode = "balance"
	RejectPairUnsupported RejectCode = "pair_unsupported"
	RejectInvalidOrder    RejectCode = "invalid_order"
)

// RejectionError a routing rejection raised before any network write.
type RejectionError struct {
	Code    RejectCode
	Message string

	cause error
}

// NewRejection builds a rejection wrapping one of the domain sentinels.
func NewRejection(cause error, code RejectCode, format string, args ...any) *RejectionError {
	return &RejectionError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// Error implements error.
func (e *RejectionError) Error() string {
	if e.cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.cause.Error(), e.Message)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *RejectionError) Unwrap() error {
	return e.cause
}

// rejectionForDecision maps the unavailability reasons of a blocked decision to a rejection.
func rejectionForDecision(d RouteDecision) *RejectionError {
	code := RejectLiquidity
	reasons := []string{
		fmt.Sprintf("primary: %s", d.Primary.Reason),
		fmt.Sprintf("secondary: %s", d.Secondary.Reason),
	}
	switch {
	case strings.Contains(d.Primary.Reason, "minimum") || strings.Contains(d.Secondary.Reason, "minimum"):
		code = RejectMinMargin
	case d.Primary.Reason == ReasonInsufficientLiquidity && d.Secondary.Reason == ReasonPairNotSupported:
		code = RejectPairUnsupported
	}
	return NewRejection(ErrNoVenueAvailable, code, "%s", strings.Join(reasons, "; "))
}

// PreparationError a failed venue or bridging preparation step.
// errors.Is matches both ErrPreparationFailed and the underlying cause.
type PreparationError struct {
	Step string
	Err  error
}

// NewPreparationError wraps the failure of step.
func NewPreparationError(step string, err error) *PreparationError {
	return &PreparationError{Step: step, Err: err}
}

// Error implements error.
func (e *PreparationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrPreparationFailed.Error(), e.Step, e.Err)
}

// Unwrap exposes the sentinel and the cause.
func (e *PreparationError) Unwrap() []error {
	return []error{ErrPreparationFailed, e.Err}
}
