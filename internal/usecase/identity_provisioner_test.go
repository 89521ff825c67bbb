package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"crossid/internal/domain"
)

func newTestProvisioner(gateways map[string]*stubGateway) (*IdentityProvisioner, *stubIdentityRepo, *stubBindingRepo, *stubDocumentRepo, *stubCache) {
	identities := newStubIdentityRepo()
	bindings := &stubBindingRepo{}
	documents := newStubDocumentRepo()
	cache := newStubCache()
	provisioner := &IdentityProvisioner{
		Store:      &stubTxStore{identities: identities, documents: documents},
		Identities: identities,
		Bindings:   bindings,
		Documents:  documents,
		Content:    newStubContentStore(),
		Chains:     &stubRegistry{gateways: gateways},
		Cache:      cache,
	}
	return provisioner, identities, bindings, documents, cache
}

func TestProvisionDIDMintsAndRecordsToken(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", mintReceipt: domain.MintReceipt{TokenID: 42, TxHash: "0xabc"}}
	provisioner, identities, _, documents, _ := newTestProvisioner(map[string]*stubGateway{"ethereum": gateway})

	result, err := provisioner.ProvisionDID(context.Background(), "0xWallet", "ethereum")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if result.Existing {
		t.Fatalf("expected a fresh DID")
	}
	if !strings.HasPrefix(result.DID, "did:crossid:") {
		t.Fatalf("unexpected DID %q", result.DID)
	}
	if result.IdentityTokenID != 42 || result.TransactionHash != "0xabc" {
		t.Fatalf("unexpected result %+v", result)
	}
	if gateway.mintCalls != 1 {
		t.Fatalf("expected one mint, got %d", gateway.mintCalls)
	}

	record, err := identities.GetByDID(context.Background(), result.DID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.IdentityTokenID == nil || *record.IdentityTokenID != 42 {
		t.Fatalf("token id not recorded: %+v", record)
	}
	if record.WalletAddress != "0xwallet" {
		t.Fatalf("wallet not normalized: %q", record.WalletAddress)
	}

	doc, err := documents.GetLatest(context.Background(), result.DID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if len(doc.Authentication) != 1 || doc.Authentication[0] != result.DID+"#key-1" {
		t.Fatalf("unexpected authentication %v", doc.Authentication)
	}
}

func TestProvisionDIDIsIdempotentPerWallet(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", mintReceipt: domain.MintReceipt{TokenID: 7}}
	provisioner, _, _, _, _ := newTestProvisioner(map[string]*stubGateway{"ethereum": gateway})

	first, err := provisioner.ProvisionDID(context.Background(), "0xwallet", "ethereum")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	second, err := provisioner.ProvisionDID(context.Background(), "0xWALLET", "ethereum")
	if err != nil {
		t.Fatalf("provision again: %v", err)
	}
	if !second.Existing {
		t.Fatalf("expected existing result")
	}
	if second.DID != first.DID {
		t.Fatalf("expected same DID, got %q and %q", first.DID, second.DID)
	}
	if gateway.mintCalls != 1 {
		t.Fatalf("expected one mint, got %d", gateway.mintCalls)
	}
}

func TestProvisionDIDCompensatesFailedMint(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", mintErr: domain.ErrChain}
	provisioner, identities, _, _, _ := newTestProvisioner(map[string]*stubGateway{"ethereum": gateway})

	_, err := provisioner.ProvisionDID(context.Background(), "0xwallet", "ethereum")
	if !errors.Is(err, domain.ErrChain) {
		t.Fatalf("expected chain error, got %v", err)
	}
	if len(identities.deleted) != 1 {
		t.Fatalf("expected the row to be compensated away")
	}
	if _, err := identities.GetByWallet(context.Background(), "0xwallet"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no surviving record, got %v", err)
	}
}

func TestProvisionDIDRejectsUnknownChain(t *testing.T) {
	provisioner, _, _, _, _ := newTestProvisioner(map[string]*stubGateway{})
	_, err := provisioner.ProvisionDID(context.Background(), "0xwallet", "nochain")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAddChainBindingRequiresController(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", mintReceipt: domain.MintReceipt{TokenID: 1}}
	polygon := &stubGateway{name: "polygon"}
	provisioner, _, _, _, _ := newTestProvisioner(map[string]*stubGateway{"ethereum": gateway, "polygon": polygon})

	result, err := provisioner.ProvisionDID(context.Background(), "0xowner", "ethereum")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	err = provisioner.AddChainBinding(context.Background(), result.DID, "polygon", "0xother", "0xstranger")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestAddChainBindingAppendsDocumentVersion(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", mintReceipt: domain.MintReceipt{TokenID: 1}}
	polygon := &stubGateway{name: "polygon", bindTx: "0xbind"}
	provisioner, _, bindings, documents, cache := newTestProvisioner(map[string]*stubGateway{"ethereum": gateway, "polygon": polygon})

	result, err := provisioner.ProvisionDID(context.Background(), "0xowner", "ethereum")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if err := provisioner.AddChainBinding(context.Background(), result.DID, "polygon", "0xPolyAddr", "0xowner"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	ok, err := bindings.HasActiveAddress(context.Background(), result.DID, "0xpolyaddr")
	if err != nil || !ok {
		t.Fatalf("expected active binding, ok=%v err=%v", ok, err)
	}
	doc, err := documents.GetLatest(context.Background(), result.DID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Version != 2 {
		t.Fatalf("expected document version 2, got %d", doc.Version)
	}
	found := false
	for _, method := range doc.VerificationMethod {
		if method.ChainID == "polygon" && method.Address == "0xpolyaddr" {
			found = true
		}
	}
	if !found {
		t.Fatalf("binding method missing from document: %+v", doc.VerificationMethod)
	}
	if len(cache.invalidated) == 0 {
		t.Fatalf("expected cache invalidation")
	}

	listed, err := provisioner.ListBindings(context.Background(), result.DID)
	if err != nil {
		t.Fatalf("list bindings: %v", err)
	}
	if len(listed) != 1 || listed[0].ChainID != "polygon" || listed[0].Address != "0xpolyaddr" {
		t.Fatalf("unexpected bindings %+v", listed)
	}
	if _, err := provisioner.ListBindings(context.Background(), "did:crossid:nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVerifyControllerAcceptsBoundAddress(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", mintReceipt: domain.MintReceipt{TokenID: 1}}
	polygon := &stubGateway{name: "polygon"}
	provisioner, _, _, _, _ := newTestProvisioner(map[string]*stubGateway{"ethereum": gateway, "polygon": polygon})

	result, err := provisioner.ProvisionDID(context.Background(), "0xowner", "ethereum")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := provisioner.AddChainBinding(context.Background(), result.DID, "polygon", "0xbound", "0xowner"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	ok, err := provisioner.VerifyController(context.Background(), result.DID, "0xbound")
	if err != nil || !ok {
		t.Fatalf("expected bound address to control, ok=%v err=%v", ok, err)
	}
	ok, err = provisioner.VerifyController(context.Background(), result.DID, "0xstranger")
	if err != nil || ok {
		t.Fatalf("expected stranger rejected, ok=%v err=%v", ok, err)
	}
}

func TestResolveDIDUsesCache(t *testing.T) {
	gateway := &stubGateway{name: "ethereum", mintReceipt: domain.MintReceipt{TokenID: 1}}
	provisioner, _, _, documents, _ := newTestProvisioner(map[string]*stubGateway{"ethereum": gateway})

	result, err := provisioner.ProvisionDID(context.Background(), "0xowner", "ethereum")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	// Drop the store copy; a cache hit must still resolve.
	delete(documents.docs, result.DID)
	doc, err := provisioner.ResolveDID(context.Background(), result.DID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if doc.ID != result.DID {
		t.Fatalf("unexpected document %+v", doc)
	}
}
