package routing

import (
	"github.com/pkg/errors"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

var (
	// ErrEmptyBundle no order call was added.
	ErrEmptyBundle = errors.New("bundle has no order call")
	// ErrBundleOrder calls violate withdrawal -> approvals/deposit -> primary -> secondary.
	ErrBundleOrder = errors.New("bundle calls out of order")
)

// Bundle collects the calls of one submission and emits them in execution order.
type Bundle struct {
	withdrawal *domain.TransactionCall
	approvals  []domain.TransactionCall
	deposit    *domain.TransactionCall
	primary    *domain.TransactionCall
	secondary  *domain.TransactionCall
}

// Add places the call in the slot of its kind. Each slot except approvals accepts one call.
func (b *Bundle) Add(call domain.TransactionCall) error {
	slot := func(dst **domain.TransactionCall) error {
		if *dst != nil {
			return errors.Errorf("bundle already has a %s call", call.Kind)
		}
		c := call
		*dst = &c
		return nil
	}

	switch call.Kind {
	case domain.CallWithdraw:
		return slot(&b.withdrawal)
	case domain.CallApprove:
		b.approvals = append(b.approvals, call)
		return nil
	case domain.CallDeposit:
		return slot(&b.deposit)
	case domain.CallPrimaryOrder:
		return slot(&b.primary)
	case domain.CallSecondaryOrder:
		return slot(&b.secondary)
	default:
		return errors.Errorf("unknown call kind %d", call.Kind)
	}
}

// Calls returns the ordered bundle.
func (b *Bundle) Calls() ([]domain.TransactionCall, error) {
	if b.primary == nil && b.secondary == nil {
		return nil, ErrEmptyBundle
	}

	calls := make([]domain.TransactionCall, 0, 4+len(b.approvals))
	if b.withdrawal != nil {
		calls = append(calls, *b.withdrawal)
	}
	calls = append(calls, b.approvals...)
	if b.deposit != nil {
		calls = append(calls, *b.deposit)
	}
	if b.primary != nil {
		calls = append(calls, *b.primary)
	}
	if b.secondary != nil {
		calls = append(calls, *b.secondary)
	}

	return calls, ValidateOrder(calls)
}

// ValidateOrder checks the ordering invariant of a bundle.
func ValidateOrder(calls []domain.TransactionCall) error {
	for i := 1; i < len(calls); i++ {
		if !calls[i-1].Kind.Precedes(calls[i].Kind) {
			return errors.Wrapf(ErrBundleOrder, "%s at %d before %s at %d",
				calls[i-1].Kind, i-1, calls[i].Kind, i)
		}
	}
	return nil
}
