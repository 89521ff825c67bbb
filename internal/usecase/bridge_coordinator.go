package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"

	"crossid/internal/domain"
)

// BridgeHandler executes one bridge route and returns the transaction hash of
// the finalizing ledger operation.
type BridgeHandler func(ctx context.Context, req *domain.BridgeRequest) (string, error)

// BridgeCoordinator accepts cross-chain requests, persists them as pending,
// and dispatches them asynchronously. All status transitions go through the
// repository's conditional updates, so a request is processed at most once
// and terminal states never change.
type BridgeCoordinator struct {
	Requests   BridgeRequestRepository
	Identities IdentityRepository
	Bindings   BindingRepository
	Chains     GatewayRegistry
	Policy     PolicyEngine
	Notifier   BridgeNotifier
	Handlers   map[domain.Route]BridgeHandler
	NewID      func() string
	// Detach starts the asynchronous dispatch for a freshly accepted request.
	// nil means a plain goroutine with a fresh context.
	Detach func(id string)
}

type SubmitBridgeInput struct {
	DID           string
	SourceChain   string
	TargetChain   string
	TargetAddress string
	RequestType   string
	Metadata      map[string]any
	CallerWallet  string
}

// Submit validates and persists the request, then hands it to the dispatcher.
// The response carries only the id and the pending status; completion is
// observed through GetStatus.
func (c *BridgeCoordinator) Submit(ctx context.Context, input SubmitBridgeInput) (*domain.BridgeRequest, error) {
	if input.DID == "" || input.SourceChain == "" || input.TargetChain == "" {
		return nil, fmt.Errorf("%w: did, source chain, and target chain are required", domain.ErrValidation)
	}
	if input.SourceChain == input.TargetChain {
		return nil, fmt.Errorf("%w: source and target chain must differ", domain.ErrValidation)
	}
	requestType := input.RequestType
	if requestType == "" {
		requestType = domain.BridgeTypeIdentity
	}
	if requestType != domain.BridgeTypeIdentity && requestType != domain.BridgeTypeAsset {
		return nil, fmt.Errorf("%w: unknown request type %q", domain.ErrValidation, requestType)
	}
	if _, ok := c.Chains.Gateway(input.SourceChain); !ok {
		return nil, fmt.Errorf("%w: unknown chain %q", domain.ErrValidation, input.SourceChain)
	}
	if _, ok := c.Chains.Gateway(input.TargetChain); !ok {
		return nil, fmt.Errorf("%w: unknown chain %q", domain.ErrValidation, input.TargetChain)
	}

	record, err := c.Identities.GetByDID(ctx, input.DID)
	if err != nil {
		return nil, err
	}
	if record.IdentityTokenID == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoIdentityToken, input.DID)
	}

	route := domain.Route{
		SourceChain: input.SourceChain,
		TargetChain: input.TargetChain,
		RequestType: requestType,
	}
	if c.Policy != nil {
		evaluation, err := c.Policy.Evaluate(ctx, domain.PolicyInput{
			Action: "bridge.submit",
			Wallet: input.CallerWallet,
			Route:  &route,
		})
		if err != nil {
			return nil, err
		}
		if !evaluation.Result.Allow {
			return nil, fmt.Errorf("%w: %s", domain.ErrPolicyDenied, denyReasons(evaluation.Result.Deny))
		}
	}

	sourceAddress, err := c.sourceAddress(ctx, record, input.SourceChain)
	if err != nil {
		return nil, err
	}
	targetAddress := input.TargetAddress
	if targetAddress == "" {
		targetAddress = sourceAddress
	}

	req := domain.BridgeRequest{
		ID:            c.newID(),
		UserID:        normalizeWallet(input.CallerWallet),
		DID:           input.DID,
		SourceChain:   input.SourceChain,
		TargetChain:   input.TargetChain,
		SourceAddress: sourceAddress,
		TargetAddress: normalizeWallet(targetAddress),
		RequestType:   requestType,
		Status:        domain.BridgeStatusPending,
		Metadata:      input.Metadata,
	}
	if err := c.Requests.Create(ctx, req); err != nil {
		return nil, err
	}

	c.detach(req.ID)
	return &req, nil
}

// Dispatch claims the request and runs its route handler. Safe to call any
// number of times for the same id: only the caller that wins the pending ->
// processing claim does work, everyone else no-ops.
func (c *BridgeCoordinator) Dispatch(ctx context.Context, id string) error {
	req, err := c.Requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req.Terminal() {
		return nil
	}
	claimed, err := c.Requests.Claim(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	route := domain.Route{
		SourceChain: req.SourceChain,
		TargetChain: req.TargetChain,
		RequestType: req.RequestType,
	}
	handler, ok := c.Handlers[route]
	if !ok {
		message := fmt.Sprintf("unsupported route %s -> %s (%s)", req.SourceChain, req.TargetChain, req.RequestType)
		if err := c.Requests.Fail(ctx, id, message); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedRoute, message)
	}

	txHash, err := handler(ctx, req)
	if err != nil {
		if failErr := c.Requests.Fail(ctx, id, err.Error()); failErr != nil {
			return failErr
		}
		return err
	}
	if err := c.Requests.Complete(ctx, id, txHash); err != nil {
		return err
	}

	if c.Notifier != nil {
		req.Status = domain.BridgeStatusCompleted
		req.TransactionHash = txHash
		if err := c.Notifier.NotifyCompleted(ctx, *req); err != nil {
			log.Printf("bridge %s: completion notify: %v", id, err)
		}
	}
	return nil
}

// GetStatus returns the request if the caller owns it or isAdmin is set.
func (c *BridgeCoordinator) GetStatus(ctx context.Context, id, callerWallet string, isAdmin bool) (*domain.BridgeRequest, error) {
	req, err := c.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && req.UserID != normalizeWallet(callerWallet) {
		return nil, fmt.Errorf("%w: request belongs to another wallet", domain.ErrUnauthorized)
	}
	return req, nil
}

// List returns requests filtered by status; empty status means pending.
func (c *BridgeCoordinator) List(ctx context.Context, status string, limit int) ([]domain.BridgeRequest, error) {
	if status == "" {
		return c.Requests.ListPending(ctx, limit)
	}
	switch status {
	case domain.BridgeStatusPending, domain.BridgeStatusProcessing,
		domain.BridgeStatusCompleted, domain.BridgeStatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}
	return c.Requests.ListByStatus(ctx, status, limit)
}

// RecoverPending re-dispatches requests still pending, typically after a
// restart that lost their goroutines. The claim makes re-dispatch of an
// already-running request harmless.
func (c *BridgeCoordinator) RecoverPending(ctx context.Context, limit int) (int, error) {
	pending, err := c.Requests.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, req := range pending {
		if err := c.Dispatch(ctx, req.ID); err != nil {
			log.Printf("recover %s: %v", req.ID, err)
			continue
		}
		recovered++
	}
	return recovered, nil
}

func (c *BridgeCoordinator) sourceAddress(ctx context.Context, record *domain.IdentityRecord, sourceChain string) (string, error) {
	if record.ChainID == sourceChain {
		return normalizeWallet(record.WalletAddress), nil
	}
	binding, err := c.Bindings.GetActive(ctx, record.DID, sourceChain)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s has no address on chain %q", domain.ErrNotFound, record.DID, sourceChain)
		}
		return "", err
	}
	return normalizeWallet(binding.Address), nil
}

func (c *BridgeCoordinator) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	buf[6] = (buf[6] & 0x0f) | 0x40
	buf[8] = (buf[8] & 0x3f) | 0x80
	return fmt.Sprintf("%s-%s-%s-%s-%s",
		hex.EncodeToString(buf[0:4]),
		hex.EncodeToString(buf[4:6]),
		hex.EncodeToString(buf[6:8]),
		hex.EncodeToString(buf[8:10]),
		hex.EncodeToString(buf[10:16]))
}

func (c *BridgeCoordinator) detach(id string) {
	if c.Detach != nil {
		c.Detach(id)
		return
	}
	go func() {
		if err := c.Dispatch(context.Background(), id); err != nil {
			log.Printf("bridge %s: dispatch: %v", id, err)
		}
	}()
}

// DefaultHandlers wires the identity routes: read the token on the source
// chain, then record the binding on the target chain.
func DefaultHandlers(chains GatewayRegistry, provisioner *IdentityProvisioner) map[domain.Route]BridgeHandler {
	handlers := make(map[domain.Route]BridgeHandler)
	names := chains.Names()
	for _, source := range names {
		for _, target := range names {
			if source == target {
				continue
			}
			route := domain.Route{
				SourceChain: source,
				TargetChain: target,
				RequestType: domain.BridgeTypeIdentity,
			}
			handlers[route] = identityBridgeHandler(chains, provisioner)
		}
	}
	return handlers
}

func identityBridgeHandler(chains GatewayRegistry, provisioner *IdentityProvisioner) BridgeHandler {
	return func(ctx context.Context, req *domain.BridgeRequest) (string, error) {
		source, ok := chains.Gateway(req.SourceChain)
		if !ok {
			return "", fmt.Errorf("%w: no gateway for chain %q", domain.ErrValidation, req.SourceChain)
		}
		target, ok := chains.Gateway(req.TargetChain)
		if !ok {
			return "", fmt.Errorf("%w: no gateway for chain %q", domain.ErrValidation, req.TargetChain)
		}

		// The source chain must confirm the token before anything is written
		// on the target.
		if _, err := source.GetTokenIDForDID(ctx, req.DID); err != nil {
			return "", err
		}
		txHash, err := target.AddChainBinding(ctx, req.DID, req.TargetAddress)
		if err != nil {
			return "", err
		}

		if err := provisioner.Bindings.Upsert(ctx, domain.ChainBinding{
			DID:     req.DID,
			ChainID: req.TargetChain,
			Address: req.TargetAddress,
		}); err != nil {
			log.Printf("bridge %s: binding recorded on-chain but not in store: %v", req.ID, err)
		}
		if provisioner.Cache != nil {
			if err := provisioner.Cache.Invalidate(ctx, req.DID); err != nil {
				log.Printf("bridge %s: cache invalidate: %v", req.ID, err)
			}
		}
		return txHash, nil
	}
}
