package usecase

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"crossid/internal/domain"
)

// CredentialLedger issues, revokes, verifies, and anchors credentials. The
// relational store is authoritative for credential status; the on-chain
// anchor is an eventually consistent mirror tracked by the anchored flag.
type CredentialLedger struct {
	Credentials CredentialRepository
	Anchors     AnchorBatchRepository
	Content     ContentStore
	Controller  ControllerVerifier
	Chains      GatewayRegistry
	Merkle      MerkleService
	Policy      PolicyEngine
	Validity    time.Duration
	Now         func() time.Time
}

type IssueCredentialInput struct {
	IssuerDID      string
	SubjectDID     string
	CredentialType string
	SchemaRef      string
	Claims         map[string]any
	Proof          json.RawMessage
	ExpirationDate *time.Time
	CallerWallet   string
}

type IssueCredentialResult struct {
	CredentialHash string
	ContentAddress string
	Credential     domain.CredentialBody
	Anchored       bool
}

func (l *CredentialLedger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

// Issue validates the issuer and subject, persists the credential, then
// anchors its hash on the subject's minting chain. The policy gate and both
// token checks run before any write, so a rejected issuance leaves no trace.
func (l *CredentialLedger) Issue(ctx context.Context, input IssueCredentialInput) (*IssueCredentialResult, error) {
	if input.IssuerDID == "" || input.SubjectDID == "" {
		return nil, fmt.Errorf("%w: issuer and subject are required", domain.ErrValidation)
	}
	if input.CredentialType == "" {
		return nil, fmt.Errorf("%w: credential type is required", domain.ErrValidation)
	}

	if l.Policy != nil {
		evaluation, err := l.Policy.Evaluate(ctx, domain.PolicyInput{
			Action:  "credential.issue",
			Wallet:  input.CallerWallet,
			Issuer:  input.IssuerDID,
			Subject: input.SubjectDID,
			Claims:  input.Claims,
		})
		if err != nil {
			return nil, err
		}
		if !evaluation.Result.Allow {
			return nil, fmt.Errorf("%w: %s", domain.ErrPolicyDenied, denyReasons(evaluation.Result.Deny))
		}
	}

	allowed, err := l.Controller.VerifyController(ctx, input.IssuerDID, input.CallerWallet)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("%w: wallet does not control issuer %s", domain.ErrUnauthorized, input.IssuerDID)
	}

	// Both parties must hold an identity token before anything is written.
	if _, _, err := l.requireToken(ctx, input.IssuerDID); err != nil {
		return nil, err
	}
	subject, subjectToken, err := l.requireToken(ctx, input.SubjectDID)
	if err != nil {
		return nil, err
	}

	issuedAt := l.now()
	expiresAt := input.ExpirationDate
	if expiresAt == nil && l.Validity > 0 {
		e := issuedAt.Add(l.Validity)
		expiresAt = &e
	}
	if expiresAt != nil && !expiresAt.After(issuedAt) {
		return nil, fmt.Errorf("%w: expiration must be in the future", domain.ErrValidation)
	}

	body := domain.CredentialBody{
		Context: []string{"https://www.w3.org/2018/credentials/v1"},
		Type:    []string{"VerifiableCredential", input.CredentialType},
		Issuer:  input.IssuerDID,
		Subject: domain.CredentialClaim{
			ID:     input.SubjectDID,
			Claims: input.Claims,
		},
		IssuanceDate: issuedAt.Format(time.RFC3339),
		SchemaRef:    input.SchemaRef,
		Proof:        input.Proof,
	}
	if expiresAt != nil {
		body.ExpirationDate = expiresAt.UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	hash, err := l.Content.Hash(raw)
	if err != nil {
		return nil, err
	}
	contentAddress, err := l.Content.Put(ctx, raw)
	if err != nil {
		return nil, err
	}

	credential := domain.Credential{
		CredentialHash:  hash,
		IssuerDID:       input.IssuerDID,
		SubjectDID:      input.SubjectDID,
		Type:            input.CredentialType,
		SchemaRef:       input.SchemaRef,
		IssuanceDate:    issuedAt,
		ExpirationDate:  expiresAt,
		Status:          domain.CredentialStatusActive,
		ContentAddress:  contentAddress,
		Proof:           input.Proof,
		IdentityTokenID: subjectToken,
	}
	if err := l.Credentials.Create(ctx, credential); err != nil {
		return nil, err
	}

	// The anchor runs after the commit. On failure the credential stays
	// active with anchored=false and the reconciliation sweep retries it.
	anchored := false
	if gateway, ok := l.Chains.Gateway(subject.ChainID); ok {
		if _, err := gateway.UpdateCredentialStatus(ctx, subjectToken, hash, true); err != nil {
			log.Printf("issue %s: anchor on %s failed, sweep will retry: %v", hash, subject.ChainID, err)
		} else if err := l.Credentials.SetAnchored(ctx, hash, true); err != nil {
			log.Printf("issue %s: anchored on-chain but flag not recorded: %v", hash, err)
		} else {
			anchored = true
		}
	} else {
		log.Printf("issue %s: no gateway for chain %q, credential stays unanchored", hash, subject.ChainID)
	}

	return &IssueCredentialResult{
		CredentialHash: hash,
		ContentAddress: contentAddress,
		Credential:     body,
		Anchored:       anchored,
	}, nil
}

// Revoke marks the credential revoked exactly once. Revocation is terminal:
// a second call reports ErrAlreadyRevoked and the stored revocation metadata
// never changes.
func (l *CredentialLedger) Revoke(ctx context.Context, credentialHash, reason, callerWallet string) error {
	if credentialHash == "" {
		return fmt.Errorf("%w: credential hash is required", domain.ErrValidation)
	}
	credential, err := l.Credentials.GetByHash(ctx, credentialHash)
	if err != nil {
		return err
	}
	allowed, err := l.Controller.VerifyController(ctx, credential.IssuerDID, callerWallet)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: only the issuer may revoke", domain.ErrUnauthorized)
	}

	revoked, err := l.Credentials.MarkRevoked(ctx, credentialHash, l.now(), reason)
	if err != nil {
		return err
	}
	if !revoked {
		return domain.ErrAlreadyRevoked
	}

	if subject, token, err := l.requireToken(ctx, credential.SubjectDID); err == nil {
		if gateway, ok := l.Chains.Gateway(subject.ChainID); ok {
			if _, err := gateway.UpdateCredentialStatus(ctx, token, credentialHash, false); err != nil {
				log.Printf("revoke %s: on-chain mirror failed, store remains authoritative: %v", credentialHash, err)
			}
		}
	}
	return nil
}

// Verify checks a credential against the stored record. The caller supplies
// the body, a content address to fetch it by, or neither for a status-only
// check. Fetched or presented bytes are rehashed and a mismatch surfaces
// ErrContentMismatch.
func (l *CredentialLedger) Verify(ctx context.Context, credentialHash, contentAddress string, presented []byte) (*domain.VerificationOutcome, error) {
	if credentialHash == "" {
		return nil, fmt.Errorf("%w: credential hash is required", domain.ErrValidation)
	}
	credential, err := l.Credentials.GetByHash(ctx, credentialHash)
	if err != nil {
		if isNotFound(err) {
			return &domain.VerificationOutcome{
				Status: domain.CredentialStatusNotFound,
				Reason: "credential not found",
			}, nil
		}
		return nil, err
	}

	if len(presented) == 0 && contentAddress != "" {
		presented, err = l.Content.Get(ctx, contentAddress)
		if err != nil {
			return nil, err
		}
	}
	if len(presented) > 0 {
		recomputed, err := l.Content.Hash(presented)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		if recomputed != credentialHash {
			return nil, fmt.Errorf("%w: content does not match credential %s", domain.ErrContentMismatch, credentialHash)
		}
	}

	status := credential.EffectiveStatus(l.now())
	outcome := &domain.VerificationOutcome{Status: status}
	switch status {
	case domain.CredentialStatusActive:
		outcome.Valid = true
	case domain.CredentialStatusRevoked:
		outcome.Reason = credential.RevocationReason
		if outcome.Reason == "" {
			outcome.Reason = "credential revoked"
		}
	case domain.CredentialStatusExpired:
		outcome.Reason = "credential expired"
	default:
		outcome.Reason = "credential suspended"
	}
	return outcome, nil
}

// AnchorBatch builds a Merkle tree over unanchored credential hashes and
// anchors the single root on-chain, then stores the per-leaf proofs so each
// credential stays individually provable against the root.
func (l *CredentialLedger) AnchorBatch(ctx context.Context, chainID string, limit int) (*domain.AnchorBatch, error) {
	gateway, ok := l.Chains.Gateway(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown chain %q", domain.ErrValidation, chainID)
	}
	credentials, err := l.Credentials.ListUnanchored(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(credentials) == 0 {
		return nil, fmt.Errorf("%w: no credentials awaiting anchor", domain.ErrNotFound)
	}

	leaves := make([][]byte, 0, len(credentials))
	for _, credential := range credentials {
		leaf, err := leafFromHash(credential.CredentialHash)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	batch, err := l.Merkle.BuildBatch(leaves)
	if err != nil {
		return nil, err
	}

	txHash, err := gateway.AnchorRoot(ctx, batch.Root)
	if err != nil {
		return nil, err
	}

	proofsJSON, err := json.Marshal(batch.Proofs)
	if err != nil {
		return nil, err
	}
	record := domain.AnchorBatch{
		RootHex:         hex.EncodeToString(batch.Root),
		ChainID:         chainID,
		LeafCount:       len(leaves),
		TransactionHash: txHash,
		ProofsJSON:      proofsJSON,
		CreatedAt:       l.now(),
	}
	if err := l.Anchors.Create(ctx, record); err != nil {
		return nil, err
	}
	for _, credential := range credentials {
		if err := l.Credentials.SetAnchored(ctx, credential.CredentialHash, true); err != nil {
			log.Printf("anchor batch %s: flag %s: %v", record.RootHex, credential.CredentialHash, err)
		}
	}
	return &record, nil
}

// GetAnchorBatch returns a recorded root submission with its per-leaf proofs,
// so an anchored credential stays provable against the on-chain root.
func (l *CredentialLedger) GetAnchorBatch(ctx context.Context, rootHex string) (*domain.AnchorBatch, error) {
	if rootHex == "" {
		return nil, fmt.Errorf("%w: root is required", domain.ErrValidation)
	}
	return l.Anchors.GetByRoot(ctx, rootHex)
}

func (l *CredentialLedger) requireToken(ctx context.Context, did string) (*domain.IdentityRecord, int64, error) {
	record, err := l.Controller.ResolveIdentity(ctx, did)
	if err != nil {
		if isNotFound(err) {
			return nil, 0, fmt.Errorf("%w: %s", domain.ErrNoIdentityToken, did)
		}
		return nil, 0, err
	}
	if record.IdentityTokenID == nil {
		return nil, 0, fmt.Errorf("%w: %s", domain.ErrNoIdentityToken, did)
	}
	return record, *record.IdentityTokenID, nil
}

func leafFromHash(credentialHash string) ([]byte, error) {
	leaf, err := hex.DecodeString(credentialHash)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed credential hash %q", domain.ErrValidation, credentialHash)
	}
	return leaf, nil
}

func denyReasons(denials []domain.PolicyDeny) string {
	if len(denials) == 0 {
		return "denied by policy"
	}
	if denials[0].Message != "" {
		return denials[0].Message
	}
	return denials[0].Code
}
