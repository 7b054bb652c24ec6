package clients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const lensABIJSON = `[
  {"type":"function","name":"getUserBalances","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[
     {"name":"nativeBalance","type":"uint256"},
     {"name":"spendBalance","type":"uint256"},
     {"name":"spendAllowance","type":"uint256"},
     {"name":"vaultBalance","type":"uint256"}]},
  {"type":"function","name":"getPositions","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[
     {"name":"ids","type":"uint256[]"},
     {"name":"positions","type":"tuple[]","components":[
       {"name":"pairIndex","type":"uint16"},
       {"name":"isLong","type":"bool"},
       {"name":"collateral","type":"uint256"},
       {"name":"notional","type":"uint256"},
       {"name":"openPrice","type":"uint256"},
       {"name":"openedAt","type":"uint64"}]},
     {"name":"paidFees","type":"tuple[]","components":[
       {"name":"positionFee","type":"int256"},
       {"name":"borrowFee","type":"int256"},
       {"name":"fundingFee","type":"int256"}]},
     {"name":"accruedFees","type":"tuple[]","components":[
       {"name":"positionFee","type":"int256"},
       {"name":"borrowFee","type":"int256"},
       {"name":"fundingFee","type":"int256"}]}]}
]`

var lensABI = mustParseABI(lensABIJSON)

// RawBalances getUserBalances result, fixed-point integers.
type RawBalances struct {
	NativeBalance  *big.Int
	SpendBalance   *big.Int
	SpendAllowance *big.Int
	VaultBalance   *big.Int
}

// RawPrimaryPosition position struct of the primary venue. Field order follows the contract tuple.
type RawPrimaryPosition struct {
	PairIndex  uint16
	IsLong     bool
	Collateral *big.Int
	Notional   *big.Int
	OpenPrice  *big.Int
	OpenedAt   uint64
}

// RawFees fee struct of the primary venue, signed fixed-point integers.
type RawFees struct {
	PositionFee *big.Int
	BorrowFee   *big.Int
	FundingFee  *big.Int
}

// RawPrimaryPositions getPositions result: parallel arrays indexed alike.
type RawPrimaryPositions struct {
	Ids         []*big.Int
	Positions   []RawPrimaryPosition
	PaidFees    []RawFees
	AccruedFees []RawFees
}

// ChainReader issues view calls against the lens contract.
type ChainReader struct {
	caller ethereum.ContractCaller
	lens   common.Address
	logger *zap.Logger
}

// NewChainReader creates a reader. caller is usually an *ethclient.Client.
func NewChainReader(caller ethereum.ContractCaller, lens common.Address, logger *zap.Logger) *ChainReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainReader{caller: caller, lens: lens, logger: logger.With(zap.String("client", "chain"))}
}

// UserBalances reads the four balances of owner at the latest block.
func (r *ChainReader) UserBalances(ctx context.Context, owner common.Address) (RawBalances, error) {
	var out RawBalances
	if err := r.call(ctx, "getUserBalances", &out, owner); err != nil {
		return RawBalances{}, err
	}
	return out, nil
}

// PrimaryPositions reads the open primary-venue positions of owner.
func (r *ChainReader) PrimaryPositions(ctx context.Context, owner common.Address) (RawPrimaryPositions, error) {
	var out RawPrimaryPositions
	if err := r.call(ctx, "getPositions", &out, owner); err != nil {
		return RawPrimaryPositions{}, err
	}
	n := len(out.Ids)
	if len(out.Positions) != n || len(out.PaidFees) != n || len(out.AccruedFees) != n {
		return RawPrimaryPositions{}, errors.Errorf("getPositions returned mismatched arrays: ids=%d positions=%d paid=%d accrued=%d",
			n, len(out.Positions), len(out.PaidFees), len(out.AccruedFees))
	}
	return out, nil
}

func (r *ChainReader) call(ctx context.Context, method string, out any, args ...any) error {
	data, err := lensABI.Pack(method, args...)
	if err != nil {
		return errors.Wrapf(err, "pack %s", method)
	}

	msg := ethereum.CallMsg{To: &r.lens, Data: data}
	res, err := r.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return errors.Wrapf(err, "call %s", method)
	}
	if len(res) == 0 {
		return errors.Errorf("%s returned no data, is %s a lens contract?", method, r.lens.Hex())
	}

	if err := lensABI.UnpackIntoInterface(out, method, res); err != nil {
		return errors.Wrapf(err, "unpack %s", method)
	}
	return nil
}
