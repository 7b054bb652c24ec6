package clients

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const bridgePreparePath = "/v1/bridge/prepare"

// BridgeType direction of a wallet bridging move.
type BridgeType string

const (
	// BridgeDeposit spend wallet -> vault.
	BridgeDeposit BridgeType = "deposit"
	// BridgeWithdraw vault -> spend wallet.
	BridgeWithdraw BridgeType = "withdraw"
)

// BridgeRequest wallet bridging preparation request. Amount is an integer string in token units.
type BridgeRequest struct {
	Type         BridgeType `json:"type"`
	TokenAddress string     `json:"tokenAddress"`
	Amount       string     `json:"amount"`
	OwnerAddress string     `json:"ownerAddress"`
}

// BridgeResponse unsigned bridging call.
type BridgeResponse struct {
	Calldata     hexutil.Bytes  `json:"calldata"`
	VaultAddress common.Address `json:"vaultAddress"`
}

// BridgeClient HTTP client of the wallet bridging service.
type BridgeClient struct {
	api *apiClient
}

// NewBridgeClient creates a bridging client.
func NewBridgeClient(baseURL string, rps float64, httpClient *http.Client, logger *zap.Logger) *BridgeClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BridgeClient{api: newAPIClient(baseURL, rps, httpClient, logger.With(zap.String("client", "bridge")))}
}

// Prepare returns unsigned call data for the bridging move.
func (c *BridgeClient) Prepare(ctx context.Context, req BridgeRequest) (BridgeResponse, error) {
	if req.Type != BridgeDeposit && req.Type != BridgeWithdraw {
		return BridgeResponse{}, errors.Errorf("unknown bridge type %q", req.Type)
	}

	var resp BridgeResponse
	if err := c.api.do(ctx, http.MethodPost, bridgePreparePath, req, &resp); err != nil {
		return BridgeResponse{}, err
	}
	if len(resp.Calldata) == 0 {
		return BridgeResponse{}, errors.Errorf("bridge returned empty calldata for %s", req.Type)
	}
	return resp, nil
}
