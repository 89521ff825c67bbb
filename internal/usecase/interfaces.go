package usecase

import (
	"context"
	"time"

	"crossid/internal/domain"
)

type IdentityRepository interface {
	GetByWallet(ctx context.Context, walletAddress string) (*domain.IdentityRecord, error)
	GetByDID(ctx context.Context, did string) (*domain.IdentityRecord, error)
	Create(ctx context.Context, record domain.IdentityRecord) error
	SetTokenID(ctx context.Context, did string, tokenID int64) error
	Delete(ctx context.Context, did string) error
	ListMissingToken(ctx context.Context) ([]domain.IdentityRecord, error)
}

type BindingRepository interface {
	GetActive(ctx context.Context, did, chainID string) (*domain.ChainBinding, error)
	ListActiveByDID(ctx context.Context, did string) ([]domain.ChainBinding, error)
	// Upsert deactivates any previous active binding for (did, chain) and
	// inserts the new row; the old row stays for audit.
	Upsert(ctx context.Context, binding domain.ChainBinding) error
	HasActiveAddress(ctx context.Context, did, address string) (bool, error)
}

type DidDocumentRepository interface {
	GetLatest(ctx context.Context, did string) (*domain.DidDocument, error)
	// AppendVersion writes the next version for the DID and returns it; history
	// is append-only.
	AppendVersion(ctx context.Context, doc domain.DidDocument) (int64, error)
}

// IdentityTxStore runs identity-record and DID-document writes that must land
// together inside one relational transaction.
type IdentityTxStore interface {
	WithTx(ctx context.Context, fn func(identities IdentityRepository, documents DidDocumentRepository) error) error
}

type CredentialRepository interface {
	GetByHash(ctx context.Context, credentialHash string) (*domain.Credential, error)
	Create(ctx context.Context, cred domain.Credential) error
	// MarkRevoked transitions ACTIVE/SUSPENDED to REVOKED; it reports whether a
	// row was transitioned so revocation stays terminal under races.
	MarkRevoked(ctx context.Context, credentialHash string, revokedAt time.Time, reason string) (bool, error)
	SetAnchored(ctx context.Context, credentialHash string, anchored bool) error
	ListUnanchored(ctx context.Context, limit int) ([]domain.Credential, error)
}

type BridgeRequestRepository interface {
	Create(ctx context.Context, req domain.BridgeRequest) error
	GetByID(ctx context.Context, id string) (*domain.BridgeRequest, error)
	// Claim atomically moves pending -> processing and reports whether this
	// caller won the claim. Anything not pending is a no-op.
	Claim(ctx context.Context, id string) (bool, error)
	Complete(ctx context.Context, id, transactionHash string) error
	Fail(ctx context.Context, id, errorMessage string) error
	ListPending(ctx context.Context, limit int) ([]domain.BridgeRequest, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]domain.BridgeRequest, error)
}

// ContentStore is a content-addressed document store: put returns the address
// derived from the document bytes, get retrieves them integrity-checked.
type ContentStore interface {
	Put(ctx context.Context, doc []byte) (string, error)
	Get(ctx context.Context, address string) ([]byte, error)
	// Hash is the deterministic content hash of the normalized document.
	Hash(doc []byte) (string, error)
}

// ControllerVerifier is the authorization predicate the credential ledger
// borrows from the identity provisioner.
type ControllerVerifier interface {
	VerifyController(ctx context.Context, did, walletAddress string) (bool, error)
	ResolveIdentity(ctx context.Context, did string) (*domain.IdentityRecord, error)
}

type ChainGateway interface {
	ChainName() string
	MintIdentity(ctx context.Context, walletAddress, did string) (domain.MintReceipt, error)
	AddChainBinding(ctx context.Context, did, address string) (string, error)
	UpdateCredentialStatus(ctx context.Context, tokenID int64, credentialHash string, active bool) (string, error)
	RequestVerification(ctx context.Context, did string, payload map[string]any) (string, error)
	GetTokenIDForDID(ctx context.Context, did string) (int64, error)
	AnchorRoot(ctx context.Context, root []byte) (string, error)
	GetStatus(ctx context.Context) error
}

type GatewayRegistry interface {
	Gateway(chainID string) (ChainGateway, bool)
	Names() []string
}

type MerkleService interface {
	BuildBatch(leafHashes [][]byte) (domain.MerkleBatch, error)
	VerifyProof(leafHash []byte, path [][]byte, root []byte) (bool, error)
}

type DocumentCache interface {
	Get(ctx context.Context, did string) (*domain.DidDocument, bool, error)
	Put(ctx context.Context, did string, doc domain.DidDocument, ttl time.Duration) error
	Invalidate(ctx context.Context, did string) error
}

type PolicyEngine interface {
	Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error)
}

// BridgeNotifier tells the identity collaborator a bridge request completed.
// Implementations are best-effort; failures are logged by the caller, never
// propagated.
type BridgeNotifier interface {
	NotifyCompleted(ctx context.Context, req domain.BridgeRequest) error
}

type AnchorBatchRepository interface {
	Create(ctx context.Context, batch domain.AnchorBatch) error
	GetByRoot(ctx context.Context, rootHex string) (*domain.AnchorBatch, error)
}
