package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"crossid/internal/config"
	"crossid/internal/domain"
)

// Gateway adapts one ledger: its RPC endpoint, signing key, and deployed
// identity-registry contract. One Gateway is constructed per configured chain
// and injected explicitly; there is no process-wide singleton.
type Gateway struct {
	name         string
	registryAddr string
	signerKey    string
	rpc          *rpcClient
	timeout      time.Duration
}

func NewGateway(cfg config.ChainConfig, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{
		name:         cfg.Name,
		registryAddr: cfg.RegistryAddr,
		signerKey:    cfg.SignerKey,
		rpc:          newRPCClient(cfg.RPCURL),
		timeout:      timeout,
	}
}

func (g *Gateway) ChainName() string {
	return g.name
}

type mintResult struct {
	TxHash  string `json:"tx_hash"`
	TokenID int64  `json:"token_id"`
}

type txResult struct {
	TxHash string `json:"tx_hash"`
}

// MintIdentity mints the soulbound identity token binding did to wallet and
// returns the ledger-confirmed token id.
func (g *Gateway) MintIdentity(ctx context.Context, walletAddress, did string) (domain.MintReceipt, error) {
	var result mintResult
	err := g.submit(ctx, "identity_mint", map[string]any{
		"registry": g.registryAddr,
		"wallet":   walletAddress,
		"did":      did,
	}, &result)
	if err != nil {
		return domain.MintReceipt{}, err
	}
	return domain.MintReceipt{TokenID: result.TokenID, TxHash: result.TxHash}, nil
}

func (g *Gateway) AddChainBinding(ctx context.Context, did, address string) (string, error) {
	var result txResult
	err := g.submit(ctx, "identity_addBinding", map[string]any{
		"registry": g.registryAddr,
		"did":      did,
		"address":  address,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.TxHash, nil
}

func (g *Gateway) UpdateCredentialStatus(ctx context.Context, tokenID int64, credentialHash string, active bool) (string, error) {
	var result txResult
	err := g.submit(ctx, "credential_updateStatus", map[string]any{
		"registry":        g.registryAddr,
		"token_id":        tokenID,
		"credential_hash": credentialHash,
		"active":          active,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.TxHash, nil
}

func (g *Gateway) RequestVerification(ctx context.Context, did string, payload map[string]any) (string, error) {
	var result txResult
	err := g.submit(ctx, "identity_requestVerification", map[string]any{
		"registry": g.registryAddr,
		"did":      did,
		"payload":  payload,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.TxHash, nil
}

func (g *Gateway) GetTokenIDForDID(ctx context.Context, did string) (int64, error) {
	var result struct {
		TokenID int64 `json:"token_id"`
	}
	err := g.read(ctx, "identity_getTokenId", map[string]any{
		"registry": g.registryAddr,
		"did":      did,
	}, &result)
	if err != nil {
		return 0, err
	}
	return result.TokenID, nil
}

// AnchorRoot commits one Merkle root covering a batch of credential status
// changes in a single transaction.
func (g *Gateway) AnchorRoot(ctx context.Context, root []byte) (string, error) {
	var result txResult
	err := g.submit(ctx, "credential_anchorRoot", map[string]any{
		"registry": g.registryAddr,
		"root":     hex.EncodeToString(root),
	}, &result)
	if err != nil {
		return "", err
	}
	return result.TxHash, nil
}

func (g *Gateway) GetStatus(ctx context.Context) error {
	return g.read(ctx, "chain_status", nil, nil)
}

func (g *Gateway) submit(ctx context.Context, method string, params map[string]any, out any) error {
	if params != nil && g.signerKey != "" {
		params["signer"] = g.signerKey
	}
	return g.bounded(ctx, method, params, out)
}

func (g *Gateway) read(ctx context.Context, method string, params map[string]any, out any) error {
	return g.bounded(ctx, method, params, out)
}

func (g *Gateway) bounded(ctx context.Context, method string, params any, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.rpc.call(callCtx, method, params, out); err != nil {
		// The chain id travels in the message so operators can tell which
		// ledger is degraded.
		return fmt.Errorf("chain %s: %s: %v: %w", g.name, method, err, domain.ErrChain)
	}
	return nil
}
