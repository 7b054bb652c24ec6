package routing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

var (
	btc    = domain.Pair{From: "BTC", To: "USD"}
	limits = domain.Limits{PrimaryMinMargin: decimal.NewFromInt(5), SecondaryMinMargin: decimal.NewFromInt(10)}
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testMarket(longLiquidity string, supported bool) domain.Market {
	return domain.Market{
		Pair:               btc,
		LongLiquidity:      d(longLiquidity),
		ShortLiquidity:     d("1000000"),
		LongFeeRate:        d("0.001"),
		ShortFeeRate:       d("0.002"),
		SecondarySupported: supported,
		PrimaryPairIndex:   1,
		SecondaryPairIndex: 7,
	}
}

func long(size, leverage string) domain.OrderIntent {
	return domain.OrderIntent{Pair: btc, Side: domain.SideLong, Size: d(size), Leverage: d(leverage)}
}

func assertLeg(t *testing.T, leg *domain.Leg, size, margin string) {
	t.Helper()
	require.NotNil(t, leg)
	assert.True(t, leg.Size.Equal(d(size)), "size: want %s, got %s", size, leg.Size)
	assert.True(t, leg.Margin.Equal(d(margin)), "margin: want %s, got %s", margin, leg.Margin)
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name      string
		intent    domain.OrderIntent
		market    domain.Market
		selected  domain.Route
		primary   string
		secondary string
		code      domain.RejectCode
	}{
		{
			name:      "fits primary",
			intent:    long("5000", "10"),
			market:    testMarket("6000", true),
			selected:  domain.RoutePrimary,
			secondary: domain.ReasonPrimaryLiquiditySuffices,
		},
		{
			name:     "overflow to secondary",
			intent:   long("10000", "10"),
			market:   testMarket("6000", true),
			selected: domain.RouteSecondary,
			primary:  domain.ReasonInsufficientLiquidity,
		},
		{
			name:     "zero primary liquidity",
			intent:   long("1000", "10"),
			market:   testMarket("0", true),
			selected: domain.RouteSecondary,
			primary:  domain.ReasonInsufficientLiquidity,
		},
		{
			name:      "secondary does not list the pair",
			intent:    long("10000", "10"),
			market:    testMarket("6000", false),
			selected:  domain.RouteNone,
			primary:   domain.ReasonInsufficientLiquidity,
			secondary: domain.ReasonPairNotSupported,
			code:      domain.RejectPairUnsupported,
		},
		{
			name:      "margin below both minimums",
			intent:    long("20", "10"),
			market:    testMarket("6000", true),
			selected:  domain.RouteNone,
			primary:   domain.ReasonBelowPrimaryMinMargin,
			secondary: domain.ReasonBelowSecondaryMinMargin,
			code:      domain.RejectMinMargin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Select(tt.intent, tt.market, limits)
			assert.Equal(t, tt.selected, decision.Selected)
			assert.Equal(t, tt.primary, decision.Primary.Reason)
			assert.Equal(t, tt.secondary, decision.Secondary.Reason)

			err := decision.Err()
			if tt.selected != domain.RouteNone {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrNoVenueAvailable)
			var rejection *domain.RejectionError
			require.ErrorAs(t, err, &rejection)
			assert.Equal(t, tt.code, rejection.Code)
		})
	}
}

func TestSplit_Scenarios(t *testing.T) {
	t.Run("overflow split", func(t *testing.T) {
		alloc, err := Split(long("10000", "10"), testMarket("6000", true), limits)
		require.NoError(t, err)
		assertLeg(t, alloc.Primary, "6000", "600")
		assertLeg(t, alloc.Secondary, "4000", "400")
	})

	t.Run("zero liquidity routes everything to secondary", func(t *testing.T) {
		alloc, err := Split(long("1000", "10"), testMarket("0", true), limits)
		require.NoError(t, err)
		assert.Nil(t, alloc.Primary)
		assertLeg(t, alloc.Secondary, "1000", "100")
	})

	t.Run("zero liquidity below secondary minimum rejects", func(t *testing.T) {
		_, err := Split(long("50", "10"), testMarket("0", true), limits)
		require.ErrorIs(t, err, domain.ErrNoVenueAvailable)
	})

	t.Run("primary leg below minimum margin is reassigned", func(t *testing.T) {
		alloc, err := Split(long("1000", "10"), testMarket("30", true), limits)
		require.NoError(t, err)
		assert.Nil(t, alloc.Primary)
		assertLeg(t, alloc.Secondary, "1000", "100")
	})

	t.Run("overflow with unsupported secondary rejects", func(t *testing.T) {
		_, err := Split(long("10000", "10"), testMarket("6000", false), limits)
		require.ErrorIs(t, err, domain.ErrNoVenueAvailable)
	})

	t.Run("truncation is absorbed by the secondary leg", func(t *testing.T) {
		alloc, err := Split(long("1000.1234567", "3"), testMarket("600.0000009", true), limits)
		require.NoError(t, err)
		assertLeg(t, alloc.Primary, "600", "200")
		assertLeg(t, alloc.Secondary, "400.123456", "133.374485")
	})
}

func TestSplit_SumInvariant(t *testing.T) {
	sizes := []string{"100", "999.9999999", "6000", "6000.0000001", "12345.678912345", "250000"}
	liquidities := []string{"0", "1", "5999.999999", "6000", "100000"}

	for _, size := range sizes {
		for _, liquidity := range liquidities {
			intent := long(size, "7")
			alloc, err := Split(intent, testMarket(liquidity, true), limits)
			if err != nil {
				continue
			}
			assert.True(t, alloc.Total().Equal(domain.Truncate(intent.Size)),
				"size %s liquidity %s: total %s", size, liquidity, alloc.Total())
			for _, v := range domain.Venues {
				if leg := alloc.Leg(v); leg != nil {
					assert.True(t, leg.Margin.GreaterThanOrEqual(limits.MinMargin(v)))
				}
			}
		}
	}
}

func TestWhole(t *testing.T) {
	alloc, err := Whole(long("5000.1234567", "10"), domain.RoutePrimary)
	require.NoError(t, err)
	assertLeg(t, alloc.Primary, "5000.123456", "500.012345")
	assert.Nil(t, alloc.Secondary)

	alloc, err = Whole(long("5000", "10"), domain.RouteSecondary)
	require.NoError(t, err)
	assert.Nil(t, alloc.Primary)
	assertLeg(t, alloc.Secondary, "5000", "500")

	_, err = Whole(long("5000", "10"), domain.RouteNone)
	assert.ErrorIs(t, err, domain.ErrNoVenueAvailable)
}

func balances(vault, spend, allowance string) domain.WalletBalances {
	return domain.WalletBalances{Vault: d(vault), Spend: d(spend), SpendAllowance: d(allowance)}
}

func TestRebalance(t *testing.T) {
	split := domain.SplitAllocation{
		Primary:   &domain.Leg{Size: d("6000"), Margin: d("600")},
		Secondary: &domain.Leg{Size: d("4000"), Margin: d("400")},
	}

	tests := []struct {
		name       string
		alloc      domain.SplitAllocation
		balances   domain.WalletBalances
		feeRate    string
		deposit    string
		withdrawal string
		approval   string
		spendLeft  string
		wantErr    bool
	}{
		{
			name:      "deposit funds the primary leg and reduces spend for the secondary",
			alloc:     split,
			balances:  balances("50", "1000", "0"),
			feeRate:   "0.001",
			deposit:   "556",
			approval:  "400",
			spendLeft: "444",
		},
		{
			name: "vault surplus covers the secondary shortfall",
			alloc: domain.SplitAllocation{
				Primary:   &domain.Leg{Size: d("1000"), Margin: d("100")},
				Secondary: &domain.Leg{Size: d("3000"), Margin: d("300")},
			},
			balances:   balances("500", "200", "1000"),
			feeRate:    "0.001",
			withdrawal: "100",
			spendLeft:  "200",
		},
		{
			name: "vault surplus too small",
			alloc: domain.SplitAllocation{
				Primary:   &domain.Leg{Size: d("1000"), Margin: d("100")},
				Secondary: &domain.Leg{Size: d("3000"), Margin: d("300")},
			},
			balances: balances("150", "200", "0"),
			feeRate:  "0.001",
			wantErr:  true,
		},
		{
			name:     "spend wallet cannot cover the deposit",
			alloc:    split,
			balances: balances("50", "500", "0"),
			feeRate:  "0.001",
			wantErr:  true,
		},
		{
			name:     "deposit leaves too little for the secondary leg",
			alloc:    split,
			balances: balances("50", "900", "0"),
			feeRate:  "0.001",
			wantErr:  true,
		},
		{
			name:      "secondary only within allowance",
			alloc:     domain.SplitAllocation{Secondary: &domain.Leg{Size: d("1000"), Margin: d("100")}},
			balances:  balances("0", "100", "100"),
			feeRate:   "0.001",
			spendLeft: "100",
		},
		{
			name:      "deposit rounds up to settlement precision",
			alloc:     domain.SplitAllocation{Primary: &domain.Leg{Size: d("1000.000001"), Margin: d("100")}},
			balances:  balances("1", "500", "0"),
			feeRate:   "0.0015",
			deposit:   "100.500001",
			spendLeft: "399.499999",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Rebalance(tt.alloc, tt.balances, d(tt.feeRate))
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInsufficientCombinedBalance)
				var rejection *domain.RejectionError
				require.ErrorAs(t, err, &rejection)
				assert.Equal(t, domain.RejectBalance, rejection.Code)
				return
			}
			require.NoError(t, err)

			want := func(s string) decimal.Decimal {
				if s == "" {
					return decimal.Zero
				}
				return d(s)
			}
			assert.True(t, plan.Deposit.Equal(want(tt.deposit)), "deposit %s", plan.Deposit)
			assert.True(t, plan.Withdrawal.Equal(want(tt.withdrawal)), "withdrawal %s", plan.Withdrawal)
			assert.True(t, plan.SecondaryApproval.Equal(want(tt.approval)), "approval %s", plan.SecondaryApproval)
			assert.True(t, plan.SpendAvailable.Equal(want(tt.spendLeft)), "spend left %s", plan.SpendAvailable)
		})
	}
}

func TestRebalance_PrimaryRequirementIncludesFee(t *testing.T) {
	plan, err := Rebalance(domain.SplitAllocation{
		Primary: &domain.Leg{Size: d("6000"), Margin: d("600")},
	}, balances("50", "1000", "0"), d("0.001"))
	require.NoError(t, err)
	assert.True(t, plan.PrimaryRequired.Equal(d("606")))
	assert.True(t, plan.NeedsDeposit())
	assert.False(t, plan.NeedsWithdrawal())
}

func TestBundle_Order(t *testing.T) {
	var b Bundle
	for _, kind := range []domain.CallKind{
		domain.CallSecondaryOrder,
		domain.CallPrimaryOrder,
		domain.CallDeposit,
		domain.CallApprove,
		domain.CallWithdraw,
		domain.CallApprove,
	} {
		require.NoError(t, b.Add(domain.TransactionCall{Kind: kind}))
	}

	calls, err := b.Calls()
	require.NoError(t, err)

	kinds := make([]domain.CallKind, 0, len(calls))
	for _, c := range calls {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []domain.CallKind{
		domain.CallWithdraw,
		domain.CallApprove,
		domain.CallApprove,
		domain.CallDeposit,
		domain.CallPrimaryOrder,
		domain.CallSecondaryOrder,
	}, kinds)
}

func TestBundle_Errors(t *testing.T) {
	var b Bundle
	require.NoError(t, b.Add(domain.TransactionCall{Kind: domain.CallDeposit}))
	assert.Error(t, b.Add(domain.TransactionCall{Kind: domain.CallDeposit}), "one deposit per bundle")
	assert.Error(t, b.Add(domain.TransactionCall{Kind: domain.CallKind(42)}))

	_, err := b.Calls()
	assert.ErrorIs(t, err, ErrEmptyBundle)

	var empty Bundle
	_, err = empty.Calls()
	assert.ErrorIs(t, err, ErrEmptyBundle)
}

func TestValidateOrder(t *testing.T) {
	call := func(k domain.CallKind) domain.TransactionCall { return domain.TransactionCall{Kind: k} }

	assert.NoError(t, ValidateOrder([]domain.TransactionCall{
		call(domain.CallWithdraw), call(domain.CallDeposit), call(domain.CallApprove), call(domain.CallPrimaryOrder),
	}))
	assert.ErrorIs(t, ValidateOrder([]domain.TransactionCall{
		call(domain.CallDeposit), call(domain.CallWithdraw),
	}), ErrBundleOrder)
	assert.ErrorIs(t, ValidateOrder([]domain.TransactionCall{
		call(domain.CallSecondaryOrder), call(domain.CallPrimaryOrder),
	}), ErrBundleOrder)
}

func TestMaxAcceptablePrice(t *testing.T) {
	market := long("1000", "10")
	assert.True(t, MaxAcceptablePrice(market, d("100"), d("1")).Equal(d("101")))

	short := market
	short.Side = domain.SideShort
	assert.True(t, MaxAcceptablePrice(short, d("100"), d("1")).Equal(d("99")))

	limit := market
	limit.Type = domain.OrderTypeLimit
	assert.True(t, MaxAcceptablePrice(limit, d("95"), d("1")).Equal(d("95")))
}
