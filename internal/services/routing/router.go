package routing

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/clients"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"go.uber.org/zap"
)

// MarketSource resolves the registry snapshot of a pair.
type MarketSource interface {
	Market(pair domain.Pair) (domain.Market, error)
}

// BalanceSource cached balances of the trading account.
type BalanceSource interface {
	Owner() common.Address
	Read() (domain.WalletBalances, bool)
	Refresh(ctx context.Context) (domain.WalletBalances, error)
}

// PriceSource mark price of a pair.
type PriceSource interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// PrimaryPreparer prepares primary-venue order calls.
type PrimaryPreparer interface {
	PrepareOrder(ctx context.Context, req clients.PrimaryOrderRequest) (clients.PrimaryOrderResponse, error)
}

// SecondaryPreparer prepares secondary-venue order calls.
type SecondaryPreparer interface {
	TradingContract() common.Address
	PrepareOpenTrade(ctx context.Context, req clients.SecondaryOrderRequest) (domain.TransactionCall, error)
}

// Bridger prepares vault deposits and withdrawals.
type Bridger interface {
	Prepare(ctx context.Context, req clients.BridgeRequest) (clients.BridgeResponse, error)
}

// Executor submits a bundle as one atomic operation.
type Executor interface {
	Execute(ctx context.Context, session domain.Session, calls []domain.TransactionCall) (string, error)
}

// SessionSource current trading session.
type SessionSource interface {
	Current() (domain.Session, bool)
}

// Journal records submissions around the execution handoff.
type Journal interface {
	Prepare(intent domain.OrderIntent, alloc domain.SplitAllocation, calls []domain.TransactionCall) (domain.Submission, error)
	MarkSubmitted(id, opHash string) (domain.Submission, error)
	MarkFailed(id string, cause error) (domain.Submission, error)
}

// Options routing and settlement parameters.
type Options struct {
	Limits domain.Limits
	// SplitOrders disables splitting when false; the selected route takes the whole order.
	SplitOrders bool
	// SlippagePercent bound applied to market orders, e.g. 1 for 1%.
	SlippagePercent decimal.Decimal
	SpendToken      common.Address
	SpendDecimals   int32
	// CollateralIndex settlement asset index on the secondary venue.
	CollateralIndex uint8
	Referrer        common.Address
}

// Deps collaborators of the router.
type Deps struct {
	Markets   MarketSource
	Balances  BalanceSource
	Prices    PriceSource
	Primary   PrimaryPreparer
	Secondary SecondaryPreparer
	Bridge    Bridger
	Executor  Executor
	Sessions  SessionSource
	Journal   Journal
}

// Prepared bundle ready for execution.
type Prepared struct {
	Quote domain.Quote `json:"quote"`
	// Price used for the order bounds: the limit price or the mark price.
	Price decimal.Decimal          `json:"price"`
	Calls []domain.TransactionCall `json:"calls"`
}

// Router runs the routing pipeline: select, split, rebalance, prepare, bundle, submit.
// Every pass works on its own snapshot of markets and balances.
type Router struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// NewRouter creates a router.
func NewRouter(deps Deps, opts Options, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		deps:   deps,
		opts:   opts,
		logger: logger.With(zap.String("component", "router")),
	}
}

// Quote previews the routing of an intent without calling any venue.
func (r *Router) Quote(ctx context.Context, intent domain.OrderIntent) (domain.Quote, error) {
	q, _, err := r.quote(ctx, intent)
	return q, err
}

// quote returns the quote together with the market snapshot it was computed against.
func (r *Router) quote(ctx context.Context, intent domain.OrderIntent) (domain.Quote, domain.Market, error) {
	if err := intent.Validate(); err != nil {
		return domain.Quote{}, domain.Market{}, err
	}

	market, err := r.deps.Markets.Market(intent.Pair)
	if err != nil {
		return domain.Quote{}, domain.Market{}, err
	}

	decision := Select(intent, market, r.opts.Limits)
	q := domain.Quote{Intent: intent, Decision: decision}
	if err := decision.Err(); err != nil {
		return q, market, err
	}

	var alloc domain.SplitAllocation
	if r.opts.SplitOrders {
		alloc, err = Split(intent, market, r.opts.Limits)
	} else {
		alloc, err = Whole(intent, decision.Selected)
	}
	if err != nil {
		return q, market, err
	}
	q.Allocation = alloc

	balances, err := r.balances(ctx)
	if err != nil {
		return q, market, err
	}

	feeRate := market.FeeRate(intent.Side)
	plan, err := Rebalance(alloc, balances, feeRate)
	if err != nil {
		return q, market, err
	}
	q.Plan = plan
	if alloc.Primary != nil {
		q.PrimaryFee = alloc.Primary.Size.Mul(feeRate)
	}

	return q, market, nil
}

// Prepare quotes the intent and collects the unsigned calls of its bundle.
// Any venue or bridge failure aborts the whole preparation.
func (r *Router) Prepare(ctx context.Context, intent domain.OrderIntent) (Prepared, error) {
	q, market, err := r.quote(ctx, intent)
	if err != nil {
		return Prepared{}, err
	}

	price, err := r.orderPrice(ctx, intent)
	if err != nil {
		return Prepared{}, preparationErr("price", err)
	}

	owner := r.deps.Balances.Owner()
	plan := q.Plan
	var b Bundle

	if plan.NeedsWithdrawal() {
		resp, err := r.deps.Bridge.Prepare(ctx, r.bridgeRequest(clients.BridgeWithdraw, plan.Withdrawal, owner))
		if err != nil {
			return Prepared{}, preparationErr("withdrawal", err)
		}
		if err := b.Add(bridgeCall(domain.CallWithdraw, resp, plan.Withdrawal)); err != nil {
			return Prepared{}, err
		}
	}

	if plan.NeedsDeposit() {
		resp, err := r.deps.Bridge.Prepare(ctx, r.bridgeRequest(clients.BridgeDeposit, plan.Deposit, owner))
		if err != nil {
			return Prepared{}, preparationErr("deposit", err)
		}
		approve, err := clients.ApproveCall(r.opts.SpendToken, resp.VaultAddress, plan.Deposit, r.opts.SpendDecimals)
		if err != nil {
			return Prepared{}, preparationErr("deposit approval", err)
		}
		if err := b.Add(approve); err != nil {
			return Prepared{}, err
		}
		if err := b.Add(bridgeCall(domain.CallDeposit, resp, plan.Deposit)); err != nil {
			return Prepared{}, err
		}
	}

	if q.Allocation.Secondary != nil && plan.SecondaryApproval.IsPositive() {
		approve, err := clients.ApproveCall(r.opts.SpendToken, r.deps.Secondary.TradingContract(), plan.SecondaryApproval, r.opts.SpendDecimals)
		if err != nil {
			return Prepared{}, preparationErr("secondary approval", err)
		}
		if err := b.Add(approve); err != nil {
			return Prepared{}, err
		}
	}

	if leg := q.Allocation.Primary; leg != nil {
		call, err := r.primaryCall(ctx, intent, *leg, price, owner, plan)
		if err != nil {
			return Prepared{}, err
		}
		if err := b.Add(call); err != nil {
			return Prepared{}, err
		}
	}

	if leg := q.Allocation.Secondary; leg != nil {
		call, err := r.secondaryCall(ctx, intent, *leg, market, price, owner)
		if err != nil {
			return Prepared{}, err
		}
		if err := b.Add(call); err != nil {
			return Prepared{}, err
		}
	}

	calls, err := b.Calls()
	if err != nil {
		return Prepared{}, err
	}

	r.logger.Info("bundle prepared",
		zap.String("pair", intent.Pair.String()),
		zap.String("side", intent.Side.String()),
		zap.String("size", intent.Size.String()),
		zap.Bool("split", q.Allocation.IsSplit()),
		zap.String("deposit", plan.Deposit.String()),
		zap.String("withdrawal", plan.Withdrawal.String()),
		zap.Int("calls", len(calls)))

	return Prepared{Quote: q, Price: price, Calls: calls}, nil
}

// Submit prepares the bundle and hands it to the execution client.
// Cancelling ctx only has effect before the handoff; the handoff itself is never cancelled.
func (r *Router) Submit(ctx context.Context, intent domain.OrderIntent) (domain.Submission, error) {
	session, ok := r.deps.Sessions.Current()
	if !ok || !session.Active() {
		return domain.Submission{}, domain.ErrNoSession
	}
	// bundles are sized against the balances of the trading owner
	if owner := r.deps.Balances.Owner(); session.Owner != owner {
		return domain.Submission{}, errors.Wrapf(domain.ErrNoSession, "session is for %s, trading owner is %s",
			session.Owner.Hex(), owner.Hex())
	}

	prepared, err := r.Prepare(ctx, intent)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Submission{}, errors.Wrap(err, "submission cancelled before handoff")
	}

	rec, err := r.deps.Journal.Prepare(intent, prepared.Quote.Allocation, prepared.Calls)
	if err != nil {
		return domain.Submission{}, errors.Wrap(err, "journal submission")
	}

	handoff := context.WithoutCancel(ctx)
	hash, execErr := r.deps.Executor.Execute(handoff, session, prepared.Calls)
	if execErr != nil {
		r.logger.Error("execution failed", zap.String("submission", rec.ID), zap.Error(execErr))
		if _, err := r.deps.Journal.MarkFailed(rec.ID, execErr); err != nil {
			r.logger.Warn("failed to journal failure", zap.String("submission", rec.ID), zap.Error(err))
		}
		return rec, execErr
	}

	rec, err = r.deps.Journal.MarkSubmitted(rec.ID, hash)
	if err != nil {
		r.logger.Warn("failed to journal submission", zap.String("op_hash", hash), zap.Error(err))
	}

	if _, err := r.deps.Balances.Refresh(handoff); err != nil {
		r.logger.Warn("balance refresh after submission failed", zap.Error(err))
	}

	return rec, nil
}

func (r *Router) balances(ctx context.Context) (domain.WalletBalances, error) {
	if b, ok := r.deps.Balances.Read(); ok {
		return b, nil
	}
	return r.deps.Balances.Refresh(ctx)
}

// orderPrice returns the limit price, or the mark price for market orders.
func (r *Router) orderPrice(ctx context.Context, intent domain.OrderIntent) (decimal.Decimal, error) {
	if intent.Type == domain.OrderTypeLimit {
		return intent.LimitPrice, nil
	}
	price, err := r.deps.Prices.GetPrice(ctx, intent.Pair)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Errorf("no mark price for %s", intent.Pair)
	}
	return price, nil
}

// MaxAcceptablePrice bounds a market order by the slippage percent around the price.
// Limit orders use the limit price as is.
func MaxAcceptablePrice(intent domain.OrderIntent, price, slippagePercent decimal.Decimal) decimal.Decimal {
	if intent.Type == domain.OrderTypeLimit {
		return price
	}
	shift := price.Mul(slippagePercent).Div(decimal.NewFromInt(100))
	if intent.Side.IsLong() {
		return price.Add(shift)
	}
	return price.Sub(shift)
}

func (r *Router) primaryCall(ctx context.Context, intent domain.OrderIntent, leg domain.Leg, price decimal.Decimal, owner common.Address, plan domain.RebalancePlan) (domain.TransactionCall, error) {
	req := clients.PrimaryOrderRequest{
		Pair:               intent.Pair.String(),
		IsLong:             intent.Side.IsLong(),
		OrderType:          intent.Type.String(),
		MaxAcceptablePrice: MaxAcceptablePrice(intent, price, r.opts.SlippagePercent).String(),
		SlippagePercent:    r.opts.SlippagePercent.String(),
		Margin:             leg.Margin.String(),
		Size:               leg.Size.String(),
		OwnerAddress:       owner.Hex(),
		// the vault is funded inside the same bundle
		SkipBalanceCheck: plan.NeedsDeposit(),
		Referrer:         r.referrer(intent).Hex(),
		TakeProfit:       optional(intent.TakeProfit),
		StopLoss:         optional(intent.StopLoss),
	}

	resp, err := r.deps.Primary.PrepareOrder(ctx, req)
	if err != nil {
		return domain.TransactionCall{}, preparationErr("primary order", err)
	}
	if resp.InsufficientBalance && !req.SkipBalanceCheck {
		return domain.TransactionCall{}, preparationErr("primary order", errors.New("venue reports insufficient vault balance"))
	}
	if len(resp.Calldata) == 0 || resp.VaultAddress == (common.Address{}) {
		return domain.TransactionCall{}, preparationErr("primary order", errors.New("malformed response"))
	}

	return domain.TransactionCall{
		Target:  resp.VaultAddress,
		Payload: resp.Calldata,
		Value:   resp.GasFee(),
		Kind:    domain.CallPrimaryOrder,
		Amount:  plan.PrimaryRequired,
		Order:   &domain.CallOrder{Venue: domain.VenuePrimary, Pair: intent.Pair, Side: intent.Side, Leg: leg},
	}, nil
}

func (r *Router) secondaryCall(ctx context.Context, intent domain.OrderIntent, leg domain.Leg, market domain.Market, price decimal.Decimal, owner common.Address) (domain.TransactionCall, error) {
	tradeType := uint8(0)
	if intent.Type == domain.OrderTypeLimit {
		tradeType = 1
	}

	call, err := r.deps.Secondary.PrepareOpenTrade(ctx, clients.SecondaryOrderRequest{
		User:            owner,
		PairIndex:       market.SecondaryPairIndex,
		Collateral:      leg.Margin,
		OpenPrice:       price,
		Long:            intent.Side.IsLong(),
		Leverage:        intent.Leverage,
		TakeProfit:      intent.TakeProfit,
		StopLoss:        intent.StopLoss,
		CollateralIndex: r.opts.CollateralIndex,
		TradeType:       tradeType,
		MaxSlippage:     r.opts.SlippagePercent,
		Referrer:        r.referrer(intent),
	})
	if err != nil {
		return domain.TransactionCall{}, preparationErr("secondary order", err)
	}

	call.Kind = domain.CallSecondaryOrder
	call.Order = &domain.CallOrder{Venue: domain.VenueSecondary, Pair: intent.Pair, Side: intent.Side, Leg: leg}
	return call, nil
}

func (r *Router) bridgeRequest(t clients.BridgeType, amount decimal.Decimal, owner common.Address) clients.BridgeRequest {
	return clients.BridgeRequest{
		Type:         t,
		TokenAddress: r.opts.SpendToken.Hex(),
		Amount:       domain.ToUnits(amount, r.opts.SpendDecimals).String(),
		OwnerAddress: owner.Hex(),
	}
}

func (r *Router) referrer(intent domain.OrderIntent) common.Address {
	if intent.Referrer != (common.Address{}) {
		return intent.Referrer
	}
	return r.opts.Referrer
}

func bridgeCall(kind domain.CallKind, resp clients.BridgeResponse, amount decimal.Decimal) domain.TransactionCall {
	return domain.TransactionCall{
		Target:  resp.VaultAddress,
		Payload: resp.Calldata,
		Value:   new(big.Int),
		Kind:    kind,
		Amount:  amount,
	}
}

func optional(d decimal.Decimal) *string {
	if !d.IsPositive() {
		return nil
	}
	s := d.String()
	return &s
}

func preparationErr(step string, err error) error {
	return domain.NewPreparationError(step, err)
}
