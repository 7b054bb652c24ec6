// Package balances reads and caches the vault and spend-wallet balances of the owner.
package balances

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/perpsplit/internal/clients"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"github.com/vadiminshakov/perpsplit/internal/events"
	"go.uber.org/zap"
)

// Reader reads a consistent balance snapshot of owner.
type Reader interface {
	Balances(ctx context.Context, owner common.Address) (domain.WalletBalances, error)
}

// SnapshotSaver persists observed balance changes.
type SnapshotSaver interface {
	Save(snapshot domain.BalanceSnapshot) error
}

// Oracle owns the balance cache. The poller refreshes it, consumers read or subscribe.
type Oracle struct {
	reader    Reader
	owner     common.Address
	store     *events.Store[domain.WalletBalances]
	snapshots SnapshotSaver
	logger    *zap.Logger
}

// NewOracle creates an oracle. snapshots may be nil.
func NewOracle(reader Reader, owner common.Address, snapshots SnapshotSaver, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		reader:    reader,
		owner:     owner,
		store:     events.NewStore(domain.WalletBalances.Equal, 16),
		snapshots: snapshots,
		logger:    logger.With(zap.String("component", "balances")),
	}
}

// Owner returns the address whose balances are tracked.
func (o *Oracle) Owner() common.Address {
	return o.owner
}

// Read returns the cached balances.
func (o *Oracle) Read() (domain.WalletBalances, bool) {
	return o.store.Read()
}

// Refresh reads fresh balances, publishes them if they changed and returns them.
func (o *Oracle) Refresh(ctx context.Context) (domain.WalletBalances, error) {
	b, err := o.reader.Balances(ctx, o.owner)
	if err != nil {
		return domain.WalletBalances{}, errors.Wrap(err, "read balances")
	}

	if o.store.Publish(b) {
		o.logger.Debug("balances changed",
			zap.String("vault", b.Vault.String()),
			zap.String("spend", b.Spend.String()))
		if o.snapshots != nil {
			if err := o.snapshots.Save(domain.NewBalanceSnapshot(o.owner.Hex(), b)); err != nil {
				o.logger.Warn("failed to persist balance snapshot", zap.Error(err))
			}
		}
	}
	return b, nil
}

// Poll is the poller fetch function.
func (o *Oracle) Poll(ctx context.Context) error {
	_, err := o.Refresh(ctx)
	return err
}

// Subscribe returns a channel of balance changes.
func (o *Oracle) Subscribe() chan domain.WalletBalances {
	return o.store.Subscribe()
}

// Unsubscribe stops a subscription.
func (o *Oracle) Unsubscribe(ch chan domain.WalletBalances) {
	o.store.Unsubscribe(ch)
}

// ChainBalances converts on-chain balance reads to decimals.
type ChainBalances struct {
	chain          *clients.ChainReader
	spendDecimals  int32
	vaultDecimals  int32
	nativeDecimals int32
	now            func() time.Time
}

// NewChainBalances creates a reader. Spend balance and allowance use spendDecimals, the vault uses its extended scale.
func NewChainBalances(chain *clients.ChainReader, spendDecimals, vaultDecimals, nativeDecimals int32) *ChainBalances {
	return &ChainBalances{
		chain:          chain,
		spendDecimals:  spendDecimals,
		vaultDecimals:  vaultDecimals,
		nativeDecimals: nativeDecimals,
		now:            time.Now,
	}
}

// Balances implements Reader.
func (c *ChainBalances) Balances(ctx context.Context, owner common.Address) (domain.WalletBalances, error) {
	raw, err := c.chain.UserBalances(ctx, owner)
	if err != nil {
		return domain.WalletBalances{}, err
	}
	return domain.NewWalletBalances(
		domain.FromUnits(raw.VaultBalance, c.vaultDecimals),
		domain.FromUnits(raw.SpendBalance, c.spendDecimals),
		domain.FromUnits(raw.SpendAllowance, c.spendDecimals),
		domain.FromUnits(raw.NativeBalance, c.nativeDecimals),
		c.now().UTC(),
	)
}
