package clients

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"go.uber.org/zap"
)

const accountABIJSON = `[
  {"type":"function","name":"executeBatch","stateMutability":"nonpayable",
   "inputs":[{"name":"calls","type":"tuple[]","components":[
     {"name":"target","type":"address"},
     {"name":"value","type":"uint256"},
     {"name":"data","type":"bytes"}]}],
   "outputs":[]}
]`

var accountABI = mustParseABI(accountABIJSON)

// batchCall element of executeBatch, fields named after the ABI components.
type batchCall struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

// UserOperation batch submitted to the bundler; gas fields are filled by the bundler.
type UserOperation struct {
	Sender    common.Address `json:"sender"`
	CallData  hexutil.Bytes  `json:"callData"`
	Signature hexutil.Bytes  `json:"signature"`
}

// BundlerClient account-abstraction execution client.
// The ordered calls become one executeBatch operation of the execution account, signed with the session key.
type BundlerClient struct {
	rpc        *rpc.Client
	entryPoint common.Address
	key        *ecdsa.PrivateKey
	logger     *zap.Logger
}

// NewBundlerClient dials the bundler RPC endpoint.
func NewBundlerClient(ctx context.Context, url string, entryPoint common.Address, sessionKey *ecdsa.PrivateKey, logger *zap.Logger) (*BundlerClient, error) {
	if sessionKey == nil {
		return nil, errors.New("session key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "dial bundler")
	}
	return &BundlerClient{
		rpc:        client,
		entryPoint: entryPoint,
		key:        sessionKey,
		logger:     logger.With(zap.String("client", "bundler")),
	}, nil
}

// BatchCallData packs the calls into executeBatch call data preserving their order.
func BatchCallData(calls []domain.TransactionCall) ([]byte, error) {
	batch := make([]batchCall, 0, len(calls))
	for _, c := range calls {
		batch = append(batch, batchCall{Target: c.Target, Value: c.WireValue(), Data: c.Payload})
	}
	data, err := accountABI.Pack("executeBatch", batch)
	if err != nil {
		return nil, errors.Wrap(err, "pack executeBatch")
	}
	return data, nil
}

// Execute submits the calls as one atomic operation and returns the operation hash.
// Errors from the bundler are returned verbatim.
func (c *BundlerClient) Execute(ctx context.Context, session domain.Session, calls []domain.TransactionCall) (string, error) {
	if len(calls) == 0 {
		return "", errors.New("empty batch")
	}
	if crypto.PubkeyToAddress(c.key.PublicKey) != session.SessionKey {
		return "", errors.Errorf("session key %s does not match the signer", session.SessionKey.Hex())
	}

	data, err := BatchCallData(calls)
	if err != nil {
		return "", err
	}

	sig, err := crypto.Sign(crypto.Keccak256(data), c.key)
	if err != nil {
		return "", errors.Wrap(err, "sign operation")
	}

	op := UserOperation{Sender: session.ExecutionAccount, CallData: data, Signature: sig}

	var hash string
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendUserOperation", op, c.entryPoint); err != nil {
		return "", err
	}

	c.logger.Info("operation submitted",
		zap.String("hash", hash),
		zap.String("sender", session.ExecutionAccount.Hex()),
		zap.Int("calls", len(calls)))

	return hash, nil
}

// Close closes the RPC connection.
func (c *BundlerClient) Close() {
	c.rpc.Close()
}
