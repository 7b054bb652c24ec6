package execution

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/perpsplit/internal/clients"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"github.com/vadiminshakov/perpsplit/internal/services/routing"
	"github.com/vadiminshakov/perpsplit/internal/storage/simstate"
)

var (
	btc     = domain.Pair{From: "BTC", To: "USD"}
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	vault   = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	token   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	trading = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	session = domain.Session{Owner: owner, ExecutionAccount: owner, SessionKey: common.HexToAddress("0x5e")}
)

type fixedPrice decimal.Decimal

func (p fixedPrice) GetPrice(context.Context, domain.Pair) (decimal.Decimal, error) {
	return decimal.Decimal(p), nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig() Config {
	return Config{
		Vault:            vault,
		SpendToken:       token,
		SecondaryTrading: trading,
		SpendDecimals:    6,
		InitialVault:     d("50"),
		InitialSpend:     d("1000"),
		InitialNative:    d("1"),
		GasFee:           big.NewInt(1e15),
	}
}

func newStore(t *testing.T) *simstate.Store {
	t.Helper()
	t.Setenv("PERPSPLIT_SIMULATE_STATE_DIR", "")
	store, err := simstate.NewStore(t.TempDir(), owner.Hex())
	require.NoError(t, err)
	return store
}

// routeBundle runs the real routing pipeline against the simulator.
func routeBundle(t *testing.T, sim *Simulator) *routing.Router {
	t.Helper()

	registry := staticMarkets{btc: {
		Pair:               btc,
		LongLiquidity:      d("6000"),
		ShortLiquidity:     d("6000"),
		LongFeeRate:        d("0.001"),
		ShortFeeRate:       d("0.001"),
		SecondarySupported: true,
		SecondaryPairIndex: 7,
	}}
	return routing.NewRouter(routing.Deps{
		Markets:   registry,
		Balances:  &simBalances{sim: sim},
		Prices:    fixedPrice(d("50000")),
		Primary:   sim,
		Secondary: clients.NewSecondaryClient(trading, 6, "", 0, nil, nil),
		Bridge:    sim,
		Executor:  sim,
		Sessions:  staticSession{},
		Journal:   nopJournal{},
	}, routing.Options{
		Limits:          domain.Limits{PrimaryMinMargin: d("5"), SecondaryMinMargin: d("10")},
		SplitOrders:     true,
		SlippagePercent: d("1"),
		SpendToken:      token,
		SpendDecimals:   6,
	}, nil)
}

type staticMarkets domain.Markets

func (m staticMarkets) Market(pair domain.Pair) (domain.Market, error) {
	market, ok := m[pair]
	if !ok {
		return domain.Market{}, domain.ErrUnknownMarket
	}
	return market, nil
}

type simBalances struct{ sim *Simulator }

func (b *simBalances) Owner() common.Address { return owner }

func (b *simBalances) Read() (domain.WalletBalances, bool) { return domain.WalletBalances{}, false }

func (b *simBalances) Refresh(ctx context.Context) (domain.WalletBalances, error) {
	return b.sim.Balances(ctx, owner)
}

type staticSession struct{}

func (staticSession) Current() (domain.Session, bool) { return session, true }

type nopJournal struct{}

func (nopJournal) Prepare(intent domain.OrderIntent, alloc domain.SplitAllocation, _ []domain.TransactionCall) (domain.Submission, error) {
	return domain.Submission{ID: "sim", Intent: intent, Allocation: alloc}, nil
}

func (nopJournal) MarkSubmitted(id, hash string) (domain.Submission, error) {
	return domain.Submission{ID: id, OpHash: hash, Status: domain.SubmissionSubmitted}, nil
}

func (nopJournal) MarkFailed(id string, cause error) (domain.Submission, error) {
	return domain.Submission{ID: id, Error: cause.Error(), Status: domain.SubmissionFailed}, nil
}

func TestSimulator_SplitOrderEndToEnd(t *testing.T) {
	store := newStore(t)
	sim, err := NewSimulator(testConfig(), fixedPrice(d("50000")), store, nil)
	require.NoError(t, err)

	router := routeBundle(t, sim)
	rec, err := router.Submit(context.Background(), domain.OrderIntent{
		Pair:     btc,
		Side:     domain.SideLong,
		Size:     d("10000"),
		Leverage: d("10"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.OpHash)

	b, err := sim.Balances(context.Background(), owner)
	require.NoError(t, err)
	// 556 deposited and 606 consumed by the primary leg, 400 pulled by the secondary leg
	assert.Equal(t, "0", b.Vault.String())
	assert.Equal(t, "44", b.Spend.String())
	assert.Equal(t, "0", b.SpendAllowance.String())
	assert.Equal(t, "0.999", b.Native.String())

	primary, err := sim.Feed(domain.VenuePrimary).Positions(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, primary, 1)
	assert.Equal(t, "6000", primary[0].Size.String())
	assert.Equal(t, "50000", primary[0].EntryPrice.String())
	assert.Equal(t, "6", primary[0].Fees.Total().String())

	secondary, err := sim.Feed(domain.VenueSecondary).Positions(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, secondary, 1)
	assert.Equal(t, "400", secondary[0].Margin.String())

	restored, err := NewSimulator(testConfig(), fixedPrice(d("1")), store, nil)
	require.NoError(t, err)
	rb, err := restored.Balances(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, b.Equal(rb))
	again, err := restored.Feed(domain.VenuePrimary).Positions(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, domain.Positions(primary).Equal(again))
}

func TestSimulator_BundleIsAtomic(t *testing.T) {
	sim, err := NewSimulator(testConfig(), fixedPrice(d("100")), nil, nil)
	require.NoError(t, err)

	approve, err := clients.ApproveCall(token, vault, d("500"), 6)
	require.NoError(t, err)
	calls := []domain.TransactionCall{
		approve,
		{Target: vault, Kind: domain.CallDeposit, Amount: d("500")},
		// needs 606 in the vault, only 550 after the deposit
		{
			Target: vault,
			Kind:   domain.CallPrimaryOrder,
			Amount: d("606"),
			Order:  &domain.CallOrder{Venue: domain.VenuePrimary, Pair: btc, Leg: domain.Leg{Size: d("6000"), Margin: d("600")}},
		},
	}

	_, err = sim.Execute(context.Background(), session, calls)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient vault balance")

	b, err := sim.Balances(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, "50", b.Vault.String())
	assert.Equal(t, "1000", b.Spend.String())

	positions, err := sim.Feed(domain.VenuePrimary).Positions(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSimulator_Rejections(t *testing.T) {
	sim, err := NewSimulator(testConfig(), fixedPrice(d("100")), nil, nil)
	require.NoError(t, err)

	_, err = sim.Execute(context.Background(), domain.Session{}, []domain.TransactionCall{{Kind: domain.CallWithdraw}})
	assert.ErrorIs(t, err, domain.ErrNoSession)

	_, err = sim.Execute(context.Background(), session, nil)
	assert.Error(t, err)

	_, err = sim.Execute(context.Background(), session, []domain.TransactionCall{
		{Target: vault, Kind: domain.CallDeposit, Amount: d("10")},
	})
	assert.ErrorContains(t, err, "allowance")

	_, err = sim.Execute(context.Background(), session, []domain.TransactionCall{
		{Target: trading, Kind: domain.CallSecondaryOrder, Amount: d("10")},
	})
	assert.ErrorContains(t, err, "no leg")

	resp, err := sim.PrepareOrder(context.Background(), clients.PrimaryOrderRequest{Margin: "600"})
	require.NoError(t, err)
	assert.True(t, resp.InsufficientBalance)
	assert.Equal(t, vault, resp.VaultAddress)
	assert.Equal(t, int64(1e15), resp.GasFee().Int64())

	_, err = sim.Prepare(context.Background(), clients.BridgeRequest{Type: "teleport"})
	assert.Error(t, err)
}
