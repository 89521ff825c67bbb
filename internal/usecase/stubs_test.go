package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crossid/internal/domain"
)

type stubIdentityRepo struct {
	mu       sync.Mutex
	byDID    map[string]*domain.IdentityRecord
	byWallet map[string]*domain.IdentityRecord
	deleted  []string
}

func newStubIdentityRepo() *stubIdentityRepo {
	return &stubIdentityRepo{
		byDID:    make(map[string]*domain.IdentityRecord),
		byWallet: make(map[string]*domain.IdentityRecord),
	}
}

func (r *stubIdentityRepo) add(record domain.IdentityRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := record
	r.byDID[record.DID] = &copied
	r.byWallet[record.WalletAddress] = &copied
}

func (r *stubIdentityRepo) GetByWallet(ctx context.Context, wallet string) (*domain.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.byWallet[wallet]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

func (r *stubIdentityRepo) GetByDID(ctx context.Context, did string) (*domain.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.byDID[did]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

func (r *stubIdentityRepo) Create(ctx context.Context, record domain.IdentityRecord) error {
	r.add(record)
	return nil
}

func (r *stubIdentityRepo) SetTokenID(ctx context.Context, did string, tokenID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.byDID[did]
	if !ok {
		return domain.ErrNotFound
	}
	record.IdentityTokenID = &tokenID
	return nil
}

func (r *stubIdentityRepo) Delete(ctx context.Context, did string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.byDID[did]
	if !ok {
		return domain.ErrNotFound
	}
	delete(r.byDID, did)
	delete(r.byWallet, record.WalletAddress)
	r.deleted = append(r.deleted, did)
	return nil
}

func (r *stubIdentityRepo) ListMissingToken(ctx context.Context) ([]domain.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.IdentityRecord
	for _, record := range r.byDID {
		if record.IdentityTokenID == nil {
			out = append(out, *record)
		}
	}
	return out, nil
}

type stubBindingRepo struct {
	bindings []domain.ChainBinding
}

func (r *stubBindingRepo) GetActive(ctx context.Context, did, chainID string) (*domain.ChainBinding, error) {
	for i := range r.bindings {
		b := r.bindings[i]
		if b.DID == did && b.ChainID == chainID && b.IsActive {
			return &b, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *stubBindingRepo) ListActiveByDID(ctx context.Context, did string) ([]domain.ChainBinding, error) {
	var out []domain.ChainBinding
	for _, b := range r.bindings {
		if b.DID == did && b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *stubBindingRepo) Upsert(ctx context.Context, binding domain.ChainBinding) error {
	for i := range r.bindings {
		if r.bindings[i].DID == binding.DID && r.bindings[i].ChainID == binding.ChainID {
			r.bindings[i].IsActive = false
		}
	}
	binding.IsActive = true
	r.bindings = append(r.bindings, binding)
	return nil
}

func (r *stubBindingRepo) HasActiveAddress(ctx context.Context, did, address string) (bool, error) {
	for _, b := range r.bindings {
		if b.DID == did && b.Address == address && b.IsActive {
			return true, nil
		}
	}
	return false, nil
}

type stubDocumentRepo struct {
	docs map[string][]domain.DidDocument
}

func newStubDocumentRepo() *stubDocumentRepo {
	return &stubDocumentRepo{docs: make(map[string][]domain.DidDocument)}
}

func (r *stubDocumentRepo) GetLatest(ctx context.Context, did string) (*domain.DidDocument, error) {
	versions := r.docs[did]
	if len(versions) == 0 {
		return nil, domain.ErrNotFound
	}
	doc := versions[len(versions)-1]
	return &doc, nil
}

func (r *stubDocumentRepo) AppendVersion(ctx context.Context, doc domain.DidDocument) (int64, error) {
	doc.Version = int64(len(r.docs[doc.DID]) + 1)
	r.docs[doc.DID] = append(r.docs[doc.DID], doc)
	return doc.Version, nil
}

type stubTxStore struct {
	identities IdentityRepository
	documents  DidDocumentRepository
}

func (s *stubTxStore) WithTx(ctx context.Context, fn func(IdentityRepository, DidDocumentRepository) error) error {
	return fn(s.identities, s.documents)
}

type stubContentStore struct {
	objects map[string][]byte
}

func newStubContentStore() *stubContentStore {
	return &stubContentStore{objects: make(map[string][]byte)}
}

func (s *stubContentStore) Hash(doc []byte) (string, error) {
	return fmt.Sprintf("%064x", len(doc)), nil
}

func (s *stubContentStore) Put(ctx context.Context, doc []byte) (string, error) {
	hash, _ := s.Hash(doc)
	address := "cid:sha256:" + hash
	s.objects[address] = doc
	return address, nil
}

func (s *stubContentStore) Get(ctx context.Context, address string) ([]byte, error) {
	doc, ok := s.objects[address]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

type stubGateway struct {
	name           string
	mintReceipt    domain.MintReceipt
	mintErr        error
	mintCalls      int
	bindTx         string
	bindErr        error
	bindCalls      int
	statusTx       string
	statusErr      error
	statusCalls    int
	tokenID        int64
	tokenErr       error
	anchorTx       string
	anchorErr      error
	anchoredRoots  [][]byte
	verificationID string
}

func (g *stubGateway) ChainName() string { return g.name }

func (g *stubGateway) MintIdentity(ctx context.Context, wallet, did string) (domain.MintReceipt, error) {
	g.mintCalls++
	if g.mintErr != nil {
		return domain.MintReceipt{}, g.mintErr
	}
	return g.mintReceipt, nil
}

func (g *stubGateway) AddChainBinding(ctx context.Context, did, address string) (string, error) {
	g.bindCalls++
	return g.bindTx, g.bindErr
}

func (g *stubGateway) UpdateCredentialStatus(ctx context.Context, tokenID int64, hash string, active bool) (string, error) {
	g.statusCalls++
	return g.statusTx, g.statusErr
}

func (g *stubGateway) RequestVerification(ctx context.Context, did string, payload map[string]any) (string, error) {
	return g.verificationID, nil
}

func (g *stubGateway) GetTokenIDForDID(ctx context.Context, did string) (int64, error) {
	return g.tokenID, g.tokenErr
}

func (g *stubGateway) AnchorRoot(ctx context.Context, root []byte) (string, error) {
	if g.anchorErr != nil {
		return "", g.anchorErr
	}
	g.anchoredRoots = append(g.anchoredRoots, root)
	return g.anchorTx, nil
}

func (g *stubGateway) GetStatus(ctx context.Context) error { return nil }

type stubRegistry struct {
	gateways map[string]*stubGateway
}

func (r *stubRegistry) Gateway(chainID string) (ChainGateway, bool) {
	gateway, ok := r.gateways[chainID]
	if !ok {
		return nil, false
	}
	return gateway, true
}

func (r *stubRegistry) Names() []string {
	var names []string
	for name := range r.gateways {
		names = append(names, name)
	}
	return names
}

type stubCache struct {
	docs        map[string]domain.DidDocument
	invalidated []string
}

func newStubCache() *stubCache {
	return &stubCache{docs: make(map[string]domain.DidDocument)}
}

func (c *stubCache) Get(ctx context.Context, did string) (*domain.DidDocument, bool, error) {
	doc, ok := c.docs[did]
	if !ok {
		return nil, false, nil
	}
	return &doc, true, nil
}

func (c *stubCache) Put(ctx context.Context, did string, doc domain.DidDocument, ttl time.Duration) error {
	c.docs[did] = doc
	return nil
}

func (c *stubCache) Invalidate(ctx context.Context, did string) error {
	delete(c.docs, did)
	c.invalidated = append(c.invalidated, did)
	return nil
}

type stubPolicy struct {
	allow  bool
	reason string
	inputs []domain.PolicyInput
}

func (p *stubPolicy) Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error) {
	p.inputs = append(p.inputs, input)
	result := domain.PolicyResult{Allow: p.allow}
	if !p.allow {
		result.Deny = []domain.PolicyDeny{{Code: "denied", Message: p.reason}}
	}
	return domain.PolicyEvaluation{Result: result}, nil
}

type stubCredentialRepo struct {
	mu          sync.Mutex
	credentials map[string]*domain.Credential
}

func newStubCredentialRepo() *stubCredentialRepo {
	return &stubCredentialRepo{credentials: make(map[string]*domain.Credential)}
}

func (r *stubCredentialRepo) add(cred domain.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := cred
	r.credentials[cred.CredentialHash] = &copied
}

func (r *stubCredentialRepo) GetByHash(ctx context.Context, hash string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.credentials[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *cred
	return &copied, nil
}

func (r *stubCredentialRepo) Create(ctx context.Context, cred domain.Credential) error {
	r.add(cred)
	return nil
}

func (r *stubCredentialRepo) MarkRevoked(ctx context.Context, hash string, revokedAt time.Time, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.credentials[hash]
	if !ok {
		return false, domain.ErrNotFound
	}
	if cred.Status == domain.CredentialStatusRevoked {
		return false, nil
	}
	cred.Status = domain.CredentialStatusRevoked
	cred.RevocationDate = &revokedAt
	cred.RevocationReason = reason
	cred.Anchored = false
	return true, nil
}

func (r *stubCredentialRepo) SetAnchored(ctx context.Context, hash string, anchored bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.credentials[hash]
	if !ok {
		return domain.ErrNotFound
	}
	cred.Anchored = anchored
	return nil
}

func (r *stubCredentialRepo) ListUnanchored(ctx context.Context, limit int) ([]domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Credential
	for _, cred := range r.credentials {
		if !cred.Anchored {
			out = append(out, *cred)
		}
	}
	return out, nil
}

type stubAnchorRepo struct {
	batches []domain.AnchorBatch
}

func (r *stubAnchorRepo) Create(ctx context.Context, batch domain.AnchorBatch) error {
	r.batches = append(r.batches, batch)
	return nil
}

func (r *stubAnchorRepo) GetByRoot(ctx context.Context, rootHex string) (*domain.AnchorBatch, error) {
	for i := range r.batches {
		if r.batches[i].RootHex == rootHex {
			return &r.batches[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

type stubBridgeRepo struct {
	mu       sync.Mutex
	requests map[string]*domain.BridgeRequest
}

func newStubBridgeRepo() *stubBridgeRepo {
	return &stubBridgeRepo{requests: make(map[string]*domain.BridgeRequest)}
}

func (r *stubBridgeRepo) Create(ctx context.Context, req domain.BridgeRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := req
	r.requests[req.ID] = &copied
	return nil
}

func (r *stubBridgeRepo) GetByID(ctx context.Context, id string) (*domain.BridgeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *req
	return &copied, nil
}

func (r *stubBridgeRepo) Claim(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != domain.BridgeStatusPending {
		return false, nil
	}
	req.Status = domain.BridgeStatusProcessing
	return true, nil
}

func (r *stubBridgeRepo) Complete(ctx context.Context, id, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != domain.BridgeStatusProcessing {
		return nil
	}
	req.Status = domain.BridgeStatusCompleted
	req.TransactionHash = txHash
	return nil
}

func (r *stubBridgeRepo) Fail(ctx context.Context, id, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != domain.BridgeStatusProcessing {
		return nil
	}
	req.Status = domain.BridgeStatusFailed
	req.ErrorMessage = message
	return nil
}

func (r *stubBridgeRepo) ListPending(ctx context.Context, limit int) ([]domain.BridgeRequest, error) {
	return r.listByStatus(domain.BridgeStatusPending), nil
}

func (r *stubBridgeRepo) ListByStatus(ctx context.Context, status string, limit int) ([]domain.BridgeRequest, error) {
	return r.listByStatus(status), nil
}

func (r *stubBridgeRepo) listByStatus(status string) []domain.BridgeRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.BridgeRequest
	for _, req := range r.requests {
		if req.Status == status {
			out = append(out, *req)
		}
	}
	return out
}

type stubNotifier struct {
	completed []domain.BridgeRequest
}

func (n *stubNotifier) NotifyCompleted(ctx context.Context, req domain.BridgeRequest) error {
	n.completed = append(n.completed, req)
	return nil
}
