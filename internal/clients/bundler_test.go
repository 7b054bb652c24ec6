package clients

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func TestBundlerClient_Execute(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	entryPoint := common.HexToAddress("0x0000000000000000000000000000000000000e00")
	account := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	var op UserOperation
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "eth_sendUserOperation", req.Method)
		require.Len(t, req.Params, 2)
		require.NoError(t, json.Unmarshal(req.Params[0], &op))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":"0xabc"}`))
	}))
	defer srv.Close()

	c, err := NewBundlerClient(context.Background(), srv.URL, entryPoint, key, nil)
	require.NoError(t, err)
	defer c.Close()

	session := domain.Session{
		Owner:            common.HexToAddress("0x1"),
		ExecutionAccount: account,
		SessionKey:       crypto.PubkeyToAddress(key.PublicKey),
	}
	calls := []domain.TransactionCall{
		{Target: common.HexToAddress("0x10"), Payload: hexutil.Bytes{1}, Kind: domain.CallDeposit},
		{Target: common.HexToAddress("0x20"), Payload: hexutil.Bytes{2}, Value: big.NewInt(5), Kind: domain.CallPrimaryOrder},
	}

	hash, err := c.Execute(context.Background(), session, calls)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)
	assert.Equal(t, account, op.Sender)

	want, err := BatchCallData(calls)
	require.NoError(t, err)
	assert.Equal(t, want, []byte(op.CallData))

	pub, err := crypto.SigToPub(crypto.Keccak256(op.CallData), op.Signature)
	require.NoError(t, err)
	assert.Equal(t, session.SessionKey, crypto.PubkeyToAddress(*pub))

	args, err := accountABI.Methods["executeBatch"].Inputs.Unpack(op.CallData[4:])
	require.NoError(t, err)
	batch := *abi.ConvertType(args[0], new([]batchCall)).(*[]batchCall)
	require.Len(t, batch, 2)
	assert.Equal(t, calls[0].Target, batch[0].Target)
	assert.Equal(t, int64(5), batch[1].Value.Int64())
}

func TestBundlerClient_ExecuteErrors(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32500,"message":"AA23 reverted"}}`))
	}))
	defer srv.Close()

	c, err := NewBundlerClient(context.Background(), srv.URL, common.Address{}, key, nil)
	require.NoError(t, err)
	defer c.Close()

	session := domain.Session{SessionKey: crypto.PubkeyToAddress(key.PublicKey)}
	call := domain.TransactionCall{Target: common.HexToAddress("0x10"), Kind: domain.CallPrimaryOrder}

	_, err = c.Execute(context.Background(), session, []domain.TransactionCall{call})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AA23 reverted")

	_, err = c.Execute(context.Background(), session, nil)
	assert.Error(t, err)

	_, err = c.Execute(context.Background(), domain.Session{SessionKey: common.HexToAddress("0x99")}, []domain.TransactionCall{call})
	assert.Error(t, err)
}
