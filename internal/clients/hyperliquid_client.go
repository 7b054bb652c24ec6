package clients

import (
	"context"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// HyperliquidClient read-only access to the Hyperliquid info API, used for mark prices.
type HyperliquidClient struct {
	exchange *hyperliquid.Exchange
}

// NewHyperliquidReadOnlyClient builds a client with an ephemeral key. The key never signs anything.
func NewHyperliquidReadOnlyClient(ctx context.Context, baseURL string) (*HyperliquidClient, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generate ephemeral key")
	}
	account := crypto.PubkeyToAddress(key.PublicKey).Hex()
	ex := hyperliquid.NewExchange(ctx, key, baseURL, nil, "", account, nil)
	return &HyperliquidClient{exchange: ex}, nil
}

// Info returns the public info API.
func (c *HyperliquidClient) Info() *hyperliquid.Info { return c.exchange.Info() }
