package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"crossid/internal/domain"
	"crossid/internal/infra/merkle"
)

type stubController struct {
	identities *stubIdentityRepo
	controller string
}

func (c *stubController) VerifyController(ctx context.Context, did, wallet string) (bool, error) {
	if _, err := c.identities.GetByDID(ctx, did); err != nil {
		return false, err
	}
	return wallet == c.controller, nil
}

func (c *stubController) ResolveIdentity(ctx context.Context, did string) (*domain.IdentityRecord, error) {
	return c.identities.GetByDID(ctx, did)
}

func token(id int64) *int64 { return &id }

func newTestLedger(gateway *stubGateway) (*CredentialLedger, *stubCredentialRepo, *stubIdentityRepo, *stubAnchorRepo) {
	identities := newStubIdentityRepo()
	identities.add(domain.IdentityRecord{DID: "did:crossid:issuer", WalletAddress: "0xissuer", ChainID: "ethereum", IdentityTokenID: token(1)})
	identities.add(domain.IdentityRecord{DID: "did:crossid:subject", WalletAddress: "0xsubject", ChainID: "ethereum", IdentityTokenID: token(2)})

	credentials := newStubCredentialRepo()
	anchors := &stubAnchorRepo{}
	ledger := &CredentialLedger{
		Credentials: credentials,
		Anchors:     anchors,
		Content:     newStubContentStore(),
		Controller:  &stubController{identities: identities, controller: "0xissuer"},
		Chains:      &stubRegistry{gateways: map[string]*stubGateway{"ethereum": gateway}},
		Merkle:      merkle.Service{},
		Validity:    24 * time.Hour,
	}
	return ledger, credentials, identities, anchors
}

func TestIssuePersistsAndAnchors(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", statusTx: "0xanchor"}
	ledger, credentials, _, _ := newTestLedger(gateway)

	result, err := ledger.Issue(context.Background(), IssueCredentialInput{
		IssuerDID:      "did:crossid:issuer",
		SubjectDID:     "did:crossid:subject",
		CredentialType: "KYCCredential",
		Claims:         map[string]any{"level": "full"},
		CallerWallet:   "0xissuer",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !result.Anchored {
		t.Fatalf("expected anchored result")
	}
	if gateway.statusCalls != 1 {
		t.Fatalf("expected one anchor call, got %d", gateway.statusCalls)
	}

	stored, err := credentials.GetByHash(context.Background(), result.CredentialHash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.CredentialStatusActive || !stored.Anchored {
		t.Fatalf("unexpected stored credential %+v", stored)
	}
	if stored.IdentityTokenID != 2 {
		t.Fatalf("expected subject token on row, got %d", stored.IdentityTokenID)
	}
	if stored.ExpirationDate == nil {
		t.Fatalf("expected default expiration")
	}
	if result.Credential.Subject.ID != "did:crossid:subject" {
		t.Fatalf("unexpected body %+v", result.Credential)
	}
}

func TestIssueSurvivesAnchorFailure(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", statusErr: domain.ErrChain}
	ledger, credentials, _, _ := newTestLedger(gateway)

	result, err := ledger.Issue(context.Background(), IssueCredentialInput{
		IssuerDID:      "did:crossid:issuer",
		SubjectDID:     "did:crossid:subject",
		CredentialType: "KYCCredential",
		CallerWallet:   "0xissuer",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if result.Anchored {
		t.Fatalf("expected unanchored result")
	}
	stored, err := credentials.GetByHash(context.Background(), result.CredentialHash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.CredentialStatusActive || stored.Anchored {
		t.Fatalf("expected active unanchored credential, got %+v", stored)
	}
}

func TestIssueRequiresSubjectToken(t *testing.T) {
	gateway := &stubGateway{name: "ethereum"}
	ledger, credentials, identities, _ := newTestLedger(gateway)
	identities.add(domain.IdentityRecord{DID: "did:crossid:tokenless", WalletAddress: "0xtokenless", ChainID: "ethereum"})

	_, err := ledger.Issue(context.Background(), IssueCredentialInput{
		IssuerDID:      "did:crossid:issuer",
		SubjectDID:     "did:crossid:tokenless",
		CredentialType: "KYCCredential",
		CallerWallet:   "0xissuer",
	})
	if !errors.Is(err, domain.ErrNoIdentityToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
	if got, _ := credentials.ListUnanchored(context.Background(), 0); len(got) != 0 {
		t.Fatalf("rejected issuance must write nothing")
	}
}

func TestIssueRejectsNonController(t *testing.T) {
	gateway := &stubGateway{name: "ethereum"}
	ledger, _, _, _ := newTestLedger(gateway)

	_, err := ledger.Issue(context.Background(), IssueCredentialInput{
		IssuerDID:      "did:crossid:issuer",
		SubjectDID:     "did:crossid:subject",
		CredentialType: "KYCCredential",
		CallerWallet:   "0xstranger",
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestIssuePolicyDenied(t *testing.T) {
	gateway := &stubGateway{name: "ethereum"}
	ledger, _, _, _ := newTestLedger(gateway)
	ledger.Policy = &stubPolicy{allow: false, reason: "issuer not accredited"}

	_, err := ledger.Issue(context.Background(), IssueCredentialInput{
		IssuerDID:      "did:crossid:issuer",
		SubjectDID:     "did:crossid:subject",
		CredentialType: "KYCCredential",
		CallerWallet:   "0xissuer",
	})
	if !errors.Is(err, domain.ErrPolicyDenied) {
		t.Fatalf("expected policy denial, got %v", err)
	}
	if !strings.Contains(err.Error(), "issuer not accredited") {
		t.Fatalf("expected deny reason in error, got %v", err)
	}
}

func TestRevokeIsTerminal(t *testing.T) {
	gateway := &stubGateway{name: "ethereum"}
	ledger, credentials, _, _ := newTestLedger(gateway)
	credentials.add(domain.Credential{
		CredentialHash: "aabb",
		IssuerDID:      "did:crossid:issuer",
		SubjectDID:     "did:crossid:subject",
		Status:         domain.CredentialStatusActive,
	})

	if err := ledger.Revoke(context.Background(), "aabb", "compromised", "0xissuer"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	err := ledger.Revoke(context.Background(), "aabb", "second reason", "0xissuer")
	if !errors.Is(err, domain.ErrAlreadyRevoked) {
		t.Fatalf("expected already revoked, got %v", err)
	}

	stored, _ := credentials.GetByHash(context.Background(), "aabb")
	if stored.RevocationReason != "compromised" {
		t.Fatalf("revocation metadata must not change, got %q", stored.RevocationReason)
	}
}

func TestRevokeRequiresIssuer(t *testing.T) {
	gateway := &stubGateway{name: "ethereum"}
	ledger, credentials, _, _ := newTestLedger(gateway)
	credentials.add(domain.Credential{
		CredentialHash: "aabb",
		IssuerDID:      "did:crossid:issuer",
		SubjectDID:     "did:crossid:subject",
		Status:         domain.CredentialStatusActive,
	})

	err := ledger.Revoke(context.Background(), "aabb", "nope", "0xsubject")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyDerivesExpired(t *testing.T) {
	gateway := &stubGateway{name: "ethereum"}
	ledger, credentials, _, _ := newTestLedger(gateway)
	past := time.Now().UTC().Add(-time.Hour)
	credentials.add(domain.Credential{
		CredentialHash: "aabb",
		IssuerDID:      "did:crossid:issuer",
		SubjectDID:     "did:crossid:subject",
		Status:         domain.CredentialStatusActive,
		ExpirationDate: &past,
	})

	outcome, err := ledger.Verify(context.Background(), "aabb", "", nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if outcome.Valid || outcome.Status != domain.CredentialStatusExpired {
		t.Fatalf("expected expired outcome, got %+v", outcome)
	}
}

func TestVerifyDetectsTamperedContent(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", statusTx: "0xanchor"}
	ledger, _, _, _ := newTestLedger(gateway)

	result, err := ledger.Issue(context.Background(), IssueCredentialInput{
		IssuerDID:      "did:crossid:issuer",
		SubjectDID:     "did:crossid:subject",
		CredentialType: "KYCCredential",
		CallerWallet:   "0xissuer",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tampered, _ := json.Marshal(map[string]any{"forged": true, "pad": strings.Repeat("x", 512)})
	_, err = ledger.Verify(context.Background(), result.CredentialHash, "", tampered)
	if !errors.Is(err, domain.ErrContentMismatch) {
		t.Fatalf("expected content mismatch, got %v", err)
	}
}

func TestVerifyFetchesByContentAddress(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", statusTx: "0xanchor"}
	ledger, _, _, _ := newTestLedger(gateway)

	result, err := ledger.Issue(context.Background(), IssueCredentialInput{
		IssuerDID:      "did:crossid:issuer",
		SubjectDID:     "did:crossid:subject",
		CredentialType: "KYCCredential",
		CallerWallet:   "0xissuer",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if result.ContentAddress == "" {
		t.Fatalf("expected a content address")
	}

	outcome, err := ledger.Verify(context.Background(), result.CredentialHash, result.ContentAddress, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !outcome.Valid || outcome.Status != domain.CredentialStatusActive {
		t.Fatalf("expected valid outcome, got %+v", outcome)
	}

	_, err = ledger.Verify(context.Background(), result.CredentialHash, "cid:sha256:missing", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown address, got %v", err)
	}
}

func TestIssuedContentRoundTrip(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", statusTx: "0xanchor"}
	ledger, credentials, _, _ := newTestLedger(gateway)

	result, err := ledger.Issue(context.Background(), IssueCredentialInput{
		IssuerDID:      "did:crossid:issuer",
		SubjectDID:     "did:crossid:subject",
		CredentialType: "KYCCredential",
		Claims:         map[string]any{"level": "full"},
		CallerWallet:   "0xissuer",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	stored, err := credentials.GetByHash(context.Background(), result.CredentialHash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ContentAddress != result.ContentAddress {
		t.Fatalf("address mismatch: %q vs %q", stored.ContentAddress, result.ContentAddress)
	}
	fetched, err := ledger.Content.Get(context.Background(), stored.ContentAddress)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	rehashed, err := ledger.Content.Hash(fetched)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if rehashed != result.CredentialHash {
		t.Fatalf("refetched content hashes to %q, want %q", rehashed, result.CredentialHash)
	}
}

func TestVerifyUnknownCredential(t *testing.T) {
	gateway := &stubGateway{name: "ethereum"}
	ledger, _, _, _ := newTestLedger(gateway)

	outcome, err := ledger.Verify(context.Background(), "ffff", "", nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if outcome.Valid || outcome.Status != domain.CredentialStatusNotFound {
		t.Fatalf("expected not-found outcome, got %+v", outcome)
	}
}

func TestAnchorBatchAnchorsRootAndFlagsLeaves(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", anchorTx: "0xroot"}
	ledger, credentials, _, anchors := newTestLedger(gateway)
	for _, hash := range []string{"aa11", "bb22", "cc33"} {
		credentials.add(domain.Credential{
			CredentialHash: strings.Repeat(hash, 16),
			IssuerDID:      "did:crossid:issuer",
			SubjectDID:     "did:crossid:subject",
			Status:         domain.CredentialStatusActive,
		})
	}

	batch, err := ledger.AnchorBatch(context.Background(), "ethereum", 10)
	if err != nil {
		t.Fatalf("anchor batch: %v", err)
	}
	if batch.LeafCount != 3 || batch.TransactionHash != "0xroot" {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if len(gateway.anchoredRoots) != 1 {
		t.Fatalf("expected one root anchored")
	}
	if len(anchors.batches) != 1 {
		t.Fatalf("expected batch recorded")
	}
	if remaining, _ := credentials.ListUnanchored(context.Background(), 0); len(remaining) != 0 {
		t.Fatalf("expected all leaves flagged, %d remain", len(remaining))
	}

	var proofs map[string][][]byte
	if err := json.Unmarshal(batch.ProofsJSON, &proofs); err != nil {
		t.Fatalf("proofs: %v", err)
	}
	if len(proofs) != 3 {
		t.Fatalf("expected a proof per leaf, got %d", len(proofs))
	}
}

func TestGetAnchorBatchReturnsProofs(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", anchorTx: "0xroot"}
	ledger, credentials, _, _ := newTestLedger(gateway)
	for _, hash := range []string{"aa11", "bb22"} {
		credentials.add(domain.Credential{
			CredentialHash: strings.Repeat(hash, 16),
			IssuerDID:      "did:crossid:issuer",
			SubjectDID:     "did:crossid:subject",
			Status:         domain.CredentialStatusActive,
		})
	}
	batch, err := ledger.AnchorBatch(context.Background(), "ethereum", 10)
	if err != nil {
		t.Fatalf("anchor batch: %v", err)
	}

	got, err := ledger.GetAnchorBatch(context.Background(), batch.RootHex)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got.LeafCount != 2 || got.TransactionHash != "0xroot" {
		t.Fatalf("unexpected batch %+v", got)
	}
	var proofs map[string][][]byte
	if err := json.Unmarshal(got.ProofsJSON, &proofs); err != nil {
		t.Fatalf("proofs: %v", err)
	}
	if len(proofs) != 2 {
		t.Fatalf("expected a proof per leaf, got %d", len(proofs))
	}

	if _, err := ledger.GetAnchorBatch(context.Background(), "ffff"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAnchorBatchNothingToAnchor(t *testing.T) {
	gateway := &stubGateway{name: "ethereum"}
	ledger, _, _, _ := newTestLedger(gateway)

	_, err := ledger.AnchorBatch(context.Background(), "ethereum", 10)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
