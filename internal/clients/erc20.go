package clients

import (
	"bytes"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

const erc20ABIJSON = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ApproveCall builds an ERC20 approve call on token granting amount (settlement units) to spender.
func ApproveCall(token, spender common.Address, amount decimal.Decimal, decimals int32) (domain.TransactionCall, error) {
	data, err := erc20ABI.Pack("approve", spender, domain.ToUnits(amount, decimals))
	if err != nil {
		return domain.TransactionCall{}, errors.Wrap(err, "pack approve")
	}
	return domain.TransactionCall{
		Target:  token,
		Payload: data,
		Value:   new(big.Int),
		Kind:    domain.CallApprove,
		Amount:  amount,
	}, nil
}

// DecodeApprove extracts spender and raw amount from approve call data.
func DecodeApprove(data []byte) (common.Address, *big.Int, error) {
	method := erc20ABI.Methods["approve"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return common.Address{}, nil, errors.New("not an approve call")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, errors.Wrap(err, "unpack approve")
	}
	spender, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, nil, errors.New("approve spender has unexpected type")
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, errors.New("approve amount has unexpected type")
	}
	return spender, amount, nil
}
