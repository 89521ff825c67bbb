package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"crossid/internal/domain"
)

// IdentityProvisioner owns DID minting and the DID-to-identity-token binding.
// The relational store is the source of truth for bindings; the ledger is the
// source of truth for the token id.
type IdentityProvisioner struct {
	Store      IdentityTxStore
	Identities IdentityRepository
	Bindings   BindingRepository
	Documents  DidDocumentRepository
	Content    ContentStore
	Chains     GatewayRegistry
	Cache      DocumentCache
	CacheTTL   time.Duration
	Now        func() time.Time
}

func (p *IdentityProvisioner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// ProvisionDID derives a DID for the wallet, records it together with the
// initial DID document in one transaction, then mints the identity token
// outside that transaction. The DB row is written first and compensated away
// on mint failure, so two processes can never mint two tokens for one DID.
// Calling it again for the same wallet returns the existing DID and mints
// nothing.
func (p *IdentityProvisioner) ProvisionDID(ctx context.Context, walletAddress, chainID string) (*domain.ProvisionResult, error) {
	walletAddress = normalizeWallet(walletAddress)
	if walletAddress == "" || chainID == "" {
		return nil, fmt.Errorf("%w: wallet address and chain are required", domain.ErrValidation)
	}
	gateway, ok := p.Chains.Gateway(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown chain %q", domain.ErrValidation, chainID)
	}

	existing, err := p.Identities.GetByWallet(ctx, walletAddress)
	if err == nil {
		result := &domain.ProvisionResult{DID: existing.DID, Existing: true}
		if existing.IdentityTokenID != nil {
			result.IdentityTokenID = *existing.IdentityTokenID
		}
		return result, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	did, err := deriveDID(walletAddress)
	if err != nil {
		return nil, err
	}
	doc := initialDocument(did, walletAddress, chainID)
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	contentAddress, err := p.Content.Put(ctx, body)
	if err != nil {
		return nil, err
	}
	doc.ContentAddress = contentAddress

	record := domain.IdentityRecord{
		DID:           did,
		WalletAddress: walletAddress,
		ChainID:       chainID,
		CreatedAt:     p.now(),
	}
	err = p.Store.WithTx(ctx, func(identities IdentityRepository, documents DidDocumentRepository) error {
		if err := identities.Create(ctx, record); err != nil {
			return err
		}
		version, err := documents.AppendVersion(ctx, doc)
		if err != nil {
			return err
		}
		doc.Version = version
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The mint is not transactional with the database. On failure the row is
	// compensated away so no DID survives without a token.
	receipt, err := gateway.MintIdentity(ctx, walletAddress, did)
	if err != nil {
		if cleanupErr := p.Identities.Delete(ctx, did); cleanupErr != nil {
			log.Printf("provision %s: cleanup after failed mint: %v", did, cleanupErr)
			return nil, fmt.Errorf("mint failed and cleanup failed: %v: %w", err, domain.ErrConsistency)
		}
		return nil, err
	}
	if err := p.Identities.SetTokenID(ctx, did, receipt.TokenID); err != nil {
		// Token exists on-chain but the row lost it; the reconciliation sweep
		// reads it back via getTokenIdForDID.
		log.Printf("provision %s: token %d minted but not recorded: %v", did, receipt.TokenID, err)
		return nil, fmt.Errorf("token minted but not recorded: %v: %w", err, domain.ErrConsistency)
	}

	if p.Cache != nil {
		if err := p.Cache.Put(ctx, did, doc, p.CacheTTL); err != nil {
			log.Printf("provision %s: cache put: %v", did, err)
		}
	}
	return &domain.ProvisionResult{
		DID:             did,
		IdentityTokenID: receipt.TokenID,
		TransactionHash: receipt.TxHash,
	}, nil
}

// ResolveDID is a cache-then-store lookup for the current document version.
func (p *IdentityProvisioner) ResolveDID(ctx context.Context, did string) (*domain.DidDocument, error) {
	if did == "" {
		return nil, fmt.Errorf("%w: did is required", domain.ErrValidation)
	}
	if p.Cache != nil {
		doc, hit, err := p.Cache.Get(ctx, did)
		if err != nil {
			log.Printf("resolve %s: cache get: %v", did, err)
		} else if hit {
			return doc, nil
		}
	}
	doc, err := p.Documents.GetLatest(ctx, did)
	if err != nil {
		return nil, err
	}
	if p.Cache != nil {
		if err := p.Cache.Put(ctx, did, *doc, p.CacheTTL); err != nil {
			log.Printf("resolve %s: cache put: %v", did, err)
		}
	}
	return doc, nil
}

// AddChainBinding binds an additional ledger address to the DID. The database
// is authoritative; the on-chain mirror is best-effort and eventually
// consistent.
func (p *IdentityProvisioner) AddChainBinding(ctx context.Context, did, chainID, address, requesterWallet string) error {
	address = normalizeWallet(address)
	if did == "" || chainID == "" || address == "" {
		return fmt.Errorf("%w: did, chain, and address are required", domain.ErrValidation)
	}
	allowed, err := p.VerifyController(ctx, did, normalizeWallet(requesterWallet))
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: wallet does not control %s", domain.ErrUnauthorized, did)
	}

	if err := p.Bindings.Upsert(ctx, domain.ChainBinding{
		DID:     did,
		ChainID: chainID,
		Address: address,
	}); err != nil {
		return err
	}

	if err := p.appendBindingMethod(ctx, did, chainID, address); err != nil {
		return err
	}
	if p.Cache != nil {
		if err := p.Cache.Invalidate(ctx, did); err != nil {
			log.Printf("bind %s: cache invalidate: %v", did, err)
		}
	}

	if gateway, ok := p.Chains.Gateway(chainID); ok {
		if _, err := gateway.AddChainBinding(ctx, did, address); err != nil {
			log.Printf("bind %s: on-chain mirror on %s failed, store remains authoritative: %v", did, chainID, err)
		}
	}
	return nil
}

// VerifyController reports whether the wallet controls the DID: it owns the
// DID directly, is listed as a document controller, or holds an active chain
// binding with that address. Pure predicate, no side effects.
func (p *IdentityProvisioner) VerifyController(ctx context.Context, did, walletAddress string) (bool, error) {
	walletAddress = normalizeWallet(walletAddress)
	if did == "" || walletAddress == "" {
		return false, nil
	}
	record, err := p.Identities.GetByDID(ctx, did)
	if err != nil {
		return false, err
	}
	if normalizeWallet(record.WalletAddress) == walletAddress {
		return true, nil
	}
	doc, err := p.Documents.GetLatest(ctx, did)
	if err == nil && doc.Controls(walletAddress) {
		return true, nil
	}
	if err != nil && !isNotFound(err) {
		return false, err
	}
	return p.Bindings.HasActiveAddress(ctx, did, walletAddress)
}

// ResolveIdentity returns the stored identity record for the DID.
func (p *IdentityProvisioner) ResolveIdentity(ctx context.Context, did string) (*domain.IdentityRecord, error) {
	if did == "" {
		return nil, fmt.Errorf("%w: did is required", domain.ErrValidation)
	}
	return p.Identities.GetByDID(ctx, did)
}

// ListBindings returns the active chain bindings for the DID.
func (p *IdentityProvisioner) ListBindings(ctx context.Context, did string) ([]domain.ChainBinding, error) {
	if did == "" {
		return nil, fmt.Errorf("%w: did is required", domain.ErrValidation)
	}
	if _, err := p.Identities.GetByDID(ctx, did); err != nil {
		return nil, err
	}
	return p.Bindings.ListActiveByDID(ctx, did)
}

// RequestVerification forwards a verification request for the DID to its
// minting chain.
func (p *IdentityProvisioner) RequestVerification(ctx context.Context, did string, payload map[string]any) (string, error) {
	record, err := p.Identities.GetByDID(ctx, did)
	if err != nil {
		return "", err
	}
	gateway, ok := p.Chains.Gateway(record.ChainID)
	if !ok {
		return "", fmt.Errorf("%w: no gateway for chain %q", domain.ErrValidation, record.ChainID)
	}
	return gateway.RequestVerification(ctx, did, payload)
}

func (p *IdentityProvisioner) appendBindingMethod(ctx context.Context, did, chainID, address string) error {
	doc, err := p.Documents.GetLatest(ctx, did)
	if err != nil {
		return err
	}
	next := *doc
	methodID := fmt.Sprintf("%s#binding-%s", did, chainID)
	methods := make([]domain.VerificationMethod, 0, len(doc.VerificationMethod)+1)
	for _, method := range doc.VerificationMethod {
		if method.ID != methodID {
			methods = append(methods, method)
		}
	}
	methods = append(methods, domain.VerificationMethod{
		ID:         methodID,
		Type:       "BlockchainVerificationMethod2021",
		Controller: did,
		ChainID:    chainID,
		Address:    address,
	})
	next.VerificationMethod = methods

	body, err := json.Marshal(next)
	if err != nil {
		return err
	}
	contentAddress, err := p.Content.Put(ctx, body)
	if err != nil {
		return err
	}
	next.ContentAddress = contentAddress
	_, err = p.Documents.AppendVersion(ctx, next)
	return err
}

func initialDocument(did, walletAddress, chainID string) domain.DidDocument {
	keyID := did + "#key-1"
	return domain.DidDocument{
		DID:        did,
		ID:         did,
		Controller: []string{walletAddress},
		VerificationMethod: []domain.VerificationMethod{{
			ID:         keyID,
			Type:       "BlockchainVerificationMethod2021",
			Controller: did,
			ChainID:    chainID,
			Address:    walletAddress,
		}},
		Authentication: []string{keyID},
	}
}

// deriveDID hashes the normalized wallet plus randomness. Uniqueness is still
// enforced by the store's primary key; the randomness only makes collisions
// negligible.
func deriveDID(walletAddress string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	hasher := sha256.New()
	hasher.Write([]byte(walletAddress))
	hasher.Write(nonce)
	return "did:crossid:" + hex.EncodeToString(hasher.Sum(nil))[:40], nil
}

func normalizeWallet(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

var _ ControllerVerifier = (*IdentityProvisioner)(nil)
