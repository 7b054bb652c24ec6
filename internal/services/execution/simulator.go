// Package execution provides the simulated execution backend used when trading is simulated.
package execution

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/clients"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"github.com/vadiminshakov/perpsplit/internal/storage/simstate"
	"go.uber.org/zap"
)

const nativeDecimals int32 = 18

// PriceSource fills simulated orders.
type PriceSource interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// Config simulated account and contract addresses.
type Config struct {
	Vault            common.Address
	SpendToken       common.Address
	SecondaryTrading common.Address
	SpendDecimals    int32
	InitialVault     decimal.Decimal
	InitialSpend     decimal.Decimal
	InitialNative    decimal.Decimal
	// GasFee value attached to primary order calls, in wei.
	GasFee *big.Int
}

type account struct {
	vault      decimal.Decimal
	spend      decimal.Decimal
	native     decimal.Decimal
	allowances map[common.Address]decimal.Decimal
	positions  map[domain.PositionID]domain.Position
	next       map[domain.Venue]uint64
	nonce      uint64
}

func (a account) clone() account {
	c := a
	c.allowances = make(map[common.Address]decimal.Decimal, len(a.allowances))
	for k, v := range a.allowances {
		c.allowances[k] = v
	}
	c.positions = make(map[domain.PositionID]domain.Position, len(a.positions))
	for k, v := range a.positions {
		c.positions[k] = v
	}
	c.next = make(map[domain.Venue]uint64, len(a.next))
	for k, v := range a.next {
		c.next[k] = v
	}
	return c
}

// Simulator executes bundles against an in-memory account, all calls or none.
// It also serves the venue and bridge preparation APIs, the balance read and both position feeds,
// so the whole pipeline runs offline.
type Simulator struct {
	mu     sync.RWMutex
	acct   account
	cfg    Config
	prices PriceSource
	store  *simstate.Store
	logger *zap.Logger
	clock  func() time.Time
}

// NewSimulator creates a simulator. store may be nil to keep state in memory only.
func NewSimulator(cfg Config, prices PriceSource, store *simstate.Store, logger *zap.Logger) (*Simulator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prices == nil {
		return nil, errors.New("pricer is required for the simulator")
	}
	if cfg.GasFee == nil {
		cfg.GasFee = new(big.Int)
	}

	s := &Simulator{
		acct: account{
			vault:      cfg.InitialVault,
			spend:      cfg.InitialSpend,
			native:     cfg.InitialNative,
			allowances: make(map[common.Address]decimal.Decimal),
			positions:  make(map[domain.PositionID]domain.Position),
			next:       make(map[domain.Venue]uint64),
		},
		cfg:    cfg,
		prices: prices,
		store:  store,
		logger: logger.With(zap.String("component", "simulator")),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	if err := s.restoreState(); err != nil {
		s.logger.Warn("failed to restore simulate state", zap.Error(err))
	}

	s.logger.Info("simulate init",
		zap.String("vault", s.acct.vault.String()),
		zap.String("spend", s.acct.spend.String()),
		zap.Int("positions", len(s.acct.positions)))
	return s, nil
}

// Execute implements the execution client: either every call applies or none does.
func (s *Simulator) Execute(ctx context.Context, session domain.Session, calls []domain.TransactionCall) (string, error) {
	if !session.Active() {
		return "", domain.ErrNoSession
	}
	if len(calls) == 0 {
		return "", errors.New("empty batch")
	}

	fills := make(map[domain.Pair]decimal.Decimal)
	for _, c := range calls {
		if c.Order == nil {
			continue
		}
		if _, ok := fills[c.Order.Pair]; ok {
			continue
		}
		price, err := s.prices.GetPrice(ctx, c.Order.Pair)
		if err != nil {
			return "", errors.Wrapf(err, "fill price for %s", c.Order.Pair)
		}
		fills[c.Order.Pair] = price
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.acct.clone()
	for i, c := range calls {
		if err := s.apply(&next, c, fills); err != nil {
			return "", errors.Wrapf(err, "call %d (%s) reverted", i, c.Kind)
		}
	}
	next.nonce++

	s.acct = next
	s.persist()

	hash := opHash(session, calls, next.nonce)
	s.logger.Info("simulated operation executed",
		zap.String("hash", hash),
		zap.Int("calls", len(calls)),
		zap.String("vault", next.vault.String()),
		zap.String("spend", next.spend.String()))
	return hash, nil
}

func (s *Simulator) apply(a *account, c domain.TransactionCall, fills map[domain.Pair]decimal.Decimal) error {
	switch c.Kind {
	case domain.CallWithdraw:
		if err := debit(&a.vault, c.Amount, "vault"); err != nil {
			return err
		}
		a.spend = a.spend.Add(c.Amount)

	case domain.CallApprove:
		if c.Target != s.cfg.SpendToken {
			return errors.Errorf("approve on unknown token %s", c.Target.Hex())
		}
		spender, raw, err := clients.DecodeApprove(c.Payload)
		if err != nil {
			return err
		}
		a.allowances[spender] = domain.FromUnits(raw, s.cfg.SpendDecimals)

	case domain.CallDeposit:
		if c.Target != s.cfg.Vault {
			return errors.Errorf("deposit to unknown vault %s", c.Target.Hex())
		}
		if err := s.pull(a, c.Target, c.Amount); err != nil {
			return err
		}
		a.vault = a.vault.Add(c.Amount)

	case domain.CallPrimaryOrder:
		if c.Target != s.cfg.Vault {
			return errors.Errorf("primary order on unknown vault %s", c.Target.Hex())
		}
		if c.Order == nil {
			return errors.New("order call carries no leg")
		}
		if err := debit(&a.vault, c.Amount, "vault"); err != nil {
			return err
		}
		if err := debit(&a.native, domain.FromUnits(c.WireValue(), nativeDecimals), "native"); err != nil {
			return err
		}
		fee := decimal.Max(c.Amount.Sub(c.Order.Leg.Margin), decimal.Zero)
		s.open(a, *c.Order, fills[c.Order.Pair], domain.PrimaryFees{Paid: domain.FeeSet{Position: fee}})

	case domain.CallSecondaryOrder:
		if c.Target != s.cfg.SecondaryTrading {
			return errors.Errorf("secondary order on unknown contract %s", c.Target.Hex())
		}
		if c.Order == nil {
			return errors.New("order call carries no leg")
		}
		if err := s.pull(a, c.Target, c.Amount); err != nil {
			return err
		}
		s.open(a, *c.Order, fills[c.Order.Pair], domain.SecondaryFees{Cumulative: decimal.Zero})

	default:
		return errors.Errorf("unknown call kind %d", c.Kind)
	}
	return nil
}

// pull moves amount out of the spend wallet on behalf of spender, consuming its allowance.
func (s *Simulator) pull(a *account, spender common.Address, amount decimal.Decimal) error {
	allowance := a.allowances[spender]
	if allowance.LessThan(amount) {
		return errors.Errorf("allowance of %s is %s, need %s", spender.Hex(), allowance, amount)
	}
	if err := debit(&a.spend, amount, "spend"); err != nil {
		return err
	}
	a.allowances[spender] = allowance.Sub(amount)
	return nil
}

func (s *Simulator) open(a *account, order domain.CallOrder, price decimal.Decimal, fees domain.Fees) {
	a.next[order.Venue]++
	id := domain.PositionID{Venue: order.Venue, Index: a.next[order.Venue]}
	a.positions[id] = domain.Position{
		ID:         id,
		Pair:       order.Pair,
		Side:       order.Side,
		Size:       order.Leg.Size,
		EntryPrice: price,
		Margin:     order.Leg.Margin,
		Fees:       fees,
		OpenedAt:   s.clock(),
	}
}

func debit(balance *decimal.Decimal, amount decimal.Decimal, name string) error {
	if amount.IsNegative() {
		return errors.Errorf("negative %s debit %s", name, amount)
	}
	if balance.LessThan(amount) {
		return errors.Errorf("insufficient %s balance: have %s need %s", name, balance, amount)
	}
	*balance = balance.Sub(amount)
	return nil
}

func opHash(session domain.Session, calls []domain.TransactionCall, nonce uint64) string {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	parts := [][]byte{session.ExecutionAccount.Bytes(), n[:]}
	for _, c := range calls {
		parts = append(parts, c.Target.Bytes(), c.Payload)
	}
	return crypto.Keccak256Hash(parts...).Hex()
}

// Balances implements the balance read of the simulated account.
func (s *Simulator) Balances(_ context.Context, _ common.Address) (domain.WalletBalances, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.NewWalletBalances(
		s.acct.vault,
		s.acct.spend,
		s.acct.allowances[s.cfg.SecondaryTrading],
		s.acct.native,
		s.clock(),
	)
}

// PrepareOrder serves the primary preparation API. The calldata is the encoded request.
func (s *Simulator) PrepareOrder(_ context.Context, req clients.PrimaryOrderRequest) (clients.PrimaryOrderResponse, error) {
	margin, err := decimal.NewFromString(req.Margin)
	if err != nil {
		return clients.PrimaryOrderResponse{}, errors.Wrap(err, "decode margin")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return clients.PrimaryOrderResponse{}, errors.Wrap(err, "encode order")
	}

	s.mu.RLock()
	vault := s.acct.vault
	s.mu.RUnlock()

	gas := new(big.Int).Set(s.cfg.GasFee)
	return clients.PrimaryOrderResponse{
		Calldata:            data,
		VaultAddress:        s.cfg.Vault,
		InsufficientBalance: vault.LessThan(margin),
		RequiredGasFee:      (*math.HexOrDecimal256)(gas),
	}, nil
}

// Prepare serves the wallet bridging API.
func (s *Simulator) Prepare(_ context.Context, req clients.BridgeRequest) (clients.BridgeResponse, error) {
	if req.Type != clients.BridgeDeposit && req.Type != clients.BridgeWithdraw {
		return clients.BridgeResponse{}, errors.Errorf("unknown bridge type %q", req.Type)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return clients.BridgeResponse{}, errors.Wrap(err, "encode bridge request")
	}
	return clients.BridgeResponse{Calldata: data, VaultAddress: s.cfg.Vault}, nil
}

// Feed returns the simulated position feed of venue v.
func (s *Simulator) Feed(v domain.Venue) *Feed {
	return &Feed{sim: s, venue: v}
}

// Feed position feed of one simulated venue.
type Feed struct {
	sim   *Simulator
	venue domain.Venue
}

// Venue returns the venue of the feed.
func (f *Feed) Venue() domain.Venue {
	return f.venue
}

// Positions returns the open simulated positions of the venue.
func (f *Feed) Positions(_ context.Context, _ common.Address) (domain.Positions, error) {
	f.sim.mu.RLock()
	defer f.sim.mu.RUnlock()

	out := make(domain.Positions, 0, len(f.sim.acct.positions))
	for id, p := range f.sim.acct.positions {
		if id.Venue == f.venue {
			out = append(out, p)
		}
	}
	return out.Sorted(), nil
}
