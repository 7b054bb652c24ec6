package clients

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

func TestSecondaryClient_PrepareOpenTrade(t *testing.T) {
	trading := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	c := NewSecondaryClient(trading, 6, "http://unused", 0, nil, nil)

	user := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	call, err := c.PrepareOpenTrade(context.Background(), SecondaryOrderRequest{
		User:        user,
		PairIndex:   4,
		Collateral:  decimal.NewFromInt(400),
		OpenPrice:   decimal.RequireFromString("65000.5"),
		Long:        true,
		Leverage:    decimal.NewFromInt(10),
		StopLoss:    decimal.NewFromInt(60000),
		MaxSlippage: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	assert.Equal(t, trading, call.Target)
	assert.Equal(t, domain.CallSecondaryOrder, call.Kind)
	assert.True(t, call.Amount.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, 0, call.WireValue().Sign())

	method := secondaryTradingABI.Methods["openTrade"]
	assert.Equal(t, method.ID, []byte(call.Payload[:4]))

	args, err := method.Inputs.Unpack(call.Payload[4:])
	require.NoError(t, err)
	require.Len(t, args, 3)

	trade := *abi.ConvertType(args[0], new(openTradeTuple)).(*openTradeTuple)
	assert.Equal(t, user, trade.User)
	assert.Equal(t, uint16(4), trade.PairIndex)
	assert.Equal(t, int64(10_000), trade.Leverage.Int64())
	assert.True(t, trade.Long)
	assert.True(t, trade.IsOpen)
	assert.Equal(t, int64(400_000_000), trade.CollateralAmount.Int64())
	assert.Equal(t, uint64(650_005_000_000_000), trade.OpenPrice)
	assert.Equal(t, uint64(0), trade.Tp)
	assert.Equal(t, uint64(600_000_000_000_000), trade.Sl)
	assert.Equal(t, uint16(1000), args[1])
}

func TestSecondaryClient_PrepareOpenTrade_Invalid(t *testing.T) {
	c := NewSecondaryClient(common.Address{}, 6, "http://unused", 0, nil, nil)
	valid := SecondaryOrderRequest{
		Collateral:  decimal.NewFromInt(10),
		OpenPrice:   decimal.NewFromInt(100),
		Leverage:    decimal.NewFromInt(5),
		MaxSlippage: decimal.NewFromInt(1),
	}

	tests := []struct {
		name   string
		mutate func(r *SecondaryOrderRequest)
	}{
		{"zero collateral", func(r *SecondaryOrderRequest) { r.Collateral = decimal.Zero }},
		{"zero price", func(r *SecondaryOrderRequest) { r.OpenPrice = decimal.Zero }},
		{"leverage overflow", func(r *SecondaryOrderRequest) { r.Leverage = decimal.NewFromInt(100_000) }},
		{"negative stop", func(r *SecondaryOrderRequest) { r.StopLoss = decimal.NewFromInt(-1) }},
		{"slippage overflow", func(r *SecondaryOrderRequest) { r.MaxSlippage = decimal.NewFromInt(100) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := c.PrepareOpenTrade(context.Background(), req)
			assert.Error(t, err)
		})
	}
}

func TestSecondaryClient_Trades(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/trades/"+owner.Hex(), r.URL.Path)
		_, _ = w.Write([]byte(`[{"index":2,"pairIndex":4,"long":false,"isOpen":true,"leverage":"10000","collateralAmount":"400000000","openPrice":"650000000000000","totalFees":"1200000"}]`))
	}))
	defer srv.Close()

	c := NewSecondaryClient(common.Address{}, 6, srv.URL, 0, srv.Client(), nil)
	trades, err := c.Trades(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(2), trades[0].Index)
	assert.False(t, trades[0].Long)
	assert.Equal(t, "1200000", trades[0].TotalFees)
}

func TestApproveCall_RoundTrip(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	spender := common.HexToAddress("0x00000000000000000000000000000000000000d2")

	call, err := ApproveCall(token, spender, decimal.NewFromInt(556), 6)
	require.NoError(t, err)
	assert.Equal(t, token, call.Target)
	assert.Equal(t, domain.CallApprove, call.Kind)

	gotSpender, amount, err := DecodeApprove(call.Payload)
	require.NoError(t, err)
	assert.Equal(t, spender, gotSpender)
	assert.Equal(t, big.NewInt(556_000_000), amount)

	_, _, err = DecodeApprove([]byte{1, 2, 3, 4, 5})
	assert.Error(t, err)
}
