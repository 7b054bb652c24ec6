package clients

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	calls  []ethereum.CallMsg
	result func(method string) ([]byte, error)
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	method, err := lensABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	return f.result(method.Name)
}

func TestChainReader_UserBalances(t *testing.T) {
	owner := common.HexToAddress("0x1")
	lens := common.HexToAddress("0x2")
	caller := &fakeCaller{result: func(method string) ([]byte, error) {
		require.Equal(t, "getUserBalances", method)
		return lensABI.Methods[method].Outputs.Pack(
			big.NewInt(7), big.NewInt(1_000_000_000), big.NewInt(0), new(big.Int).Mul(big.NewInt(50), big.NewInt(1e18)))
	}}

	r := NewChainReader(caller, lens, nil)
	got, err := r.UserBalances(context.Background(), owner)
	require.NoError(t, err)

	assert.Equal(t, int64(7), got.NativeBalance.Int64())
	assert.Equal(t, int64(1_000_000_000), got.SpendBalance.Int64())
	assert.Equal(t, "50000000000000000000", got.VaultBalance.String())

	require.Len(t, caller.calls, 1)
	assert.Equal(t, lens, *caller.calls[0].To)
	args, err := lensABI.Methods["getUserBalances"].Inputs.Unpack(caller.calls[0].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, owner, args[0])
}

func TestChainReader_PrimaryPositions(t *testing.T) {
	caller := &fakeCaller{result: func(method string) ([]byte, error) {
		return lensABI.Methods[method].Outputs.Pack(
			[]*big.Int{big.NewInt(3)},
			[]RawPrimaryPosition{{
				PairIndex:  1,
				IsLong:     true,
				Collateral: big.NewInt(600_000_000),
				Notional:   big.NewInt(6_000_000_000),
				OpenPrice:  new(big.Int).Mul(big.NewInt(65000), big.NewInt(1e10)),
				OpenedAt:   1700000000,
			}},
			[]RawFees{{PositionFee: big.NewInt(6_000_000), BorrowFee: big.NewInt(100), FundingFee: big.NewInt(-50)}},
			[]RawFees{{PositionFee: big.NewInt(0), BorrowFee: big.NewInt(10), FundingFee: big.NewInt(5)}},
		)
	}}

	got, err := NewChainReader(caller, common.HexToAddress("0x2"), nil).PrimaryPositions(context.Background(), common.HexToAddress("0x1"))
	require.NoError(t, err)
	require.Len(t, got.Ids, 1)
	assert.Equal(t, uint64(3), got.Ids[0].Uint64())
	assert.Equal(t, uint16(1), got.Positions[0].PairIndex)
	assert.True(t, got.Positions[0].IsLong)
	assert.Equal(t, uint64(1700000000), got.Positions[0].OpenedAt)
	assert.Equal(t, int64(-50), got.PaidFees[0].FundingFee.Int64())
	assert.Equal(t, int64(10), got.AccruedFees[0].BorrowFee.Int64())
}

func TestChainReader_Errors(t *testing.T) {
	t.Run("rpc failure", func(t *testing.T) {
		caller := &fakeCaller{result: func(string) ([]byte, error) { return nil, errors.New("connection refused") }}
		_, err := NewChainReader(caller, common.HexToAddress("0x2"), nil).UserBalances(context.Background(), common.Address{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("empty result", func(t *testing.T) {
		caller := &fakeCaller{result: func(string) ([]byte, error) { return nil, nil }}
		_, err := NewChainReader(caller, common.HexToAddress("0x2"), nil).UserBalances(context.Background(), common.Address{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no data")
	})

	t.Run("mismatched arrays", func(t *testing.T) {
		caller := &fakeCaller{result: func(method string) ([]byte, error) {
			return lensABI.Methods[method].Outputs.Pack(
				[]*big.Int{big.NewInt(1), big.NewInt(2)},
				[]RawPrimaryPosition{},
				[]RawFees{},
				[]RawFees{},
			)
		}}
		_, err := NewChainReader(caller, common.HexToAddress("0x2"), nil).PrimaryPositions(context.Background(), common.Address{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatched")
	})
}
