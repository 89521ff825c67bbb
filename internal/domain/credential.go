package domain

import (
	"encoding/json"
	"time"
)

const (
	CredentialStatusActive    = "ACTIVE"
	CredentialStatusSuspended = "SUSPENDED"
	CredentialStatusRevoked   = "REVOKED"
	CredentialStatusExpired   = "EXPIRED"
	CredentialStatusNotFound  = "NOT_FOUND"
)

// Credential is the persisted record of an issued verifiable credential. The
// signed body itself lives in the content store under ContentAddress; the row
// keys on the deterministic hash of the normalized body.
type Credential struct {
	CredentialHash   string
	IssuerDID        string
	SubjectDID       string
	Type             string
	SchemaRef        string
	IssuanceDate     time.Time
	ExpirationDate   *time.Time
	RevocationDate   *time.Time
	RevocationReason string
	Status           string
	ContentAddress   string
	Proof            json.RawMessage
	IdentityTokenID  int64
	Anchored         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EffectiveStatus derives EXPIRED at read time; expiry is never written back.
func (c *Credential) EffectiveStatus(now time.Time) string {
	if c == nil {
		return CredentialStatusNotFound
	}
	if c.Status == CredentialStatusActive && c.ExpirationDate != nil && c.ExpirationDate.Before(now) {
		return CredentialStatusExpired
	}
	return c.Status
}

// CredentialBody is the signed credential document stored off-chain.
type CredentialBody struct {
	Context        []string        `json:"@context"`
	Type           []string        `json:"type"`
	Issuer         string          `json:"issuer"`
	IssuanceDate   string          `json:"issuanceDate"`
	ExpirationDate string          `json:"expirationDate,omitempty"`
	Subject        CredentialClaim `json:"credentialSubject"`
	SchemaRef      string          `json:"credentialSchema,omitempty"`
	Proof          json.RawMessage `json:"proof,omitempty"`
}

type CredentialClaim struct {
	ID     string         `json:"id"`
	Claims map[string]any `json:"claims"`
}

type VerificationOutcome struct {
	Valid  bool
	Status string
	Reason string
}

// MerkleBatch is built on demand for batched on-chain status updates; it is
// never persisted as-is.
type MerkleBatch struct {
	Root   []byte
	Proofs map[string][][]byte
}

// AnchorBatch records one Merkle root submission: the root, what it covered,
// and the per-leaf proofs needed to verify against it later.
type AnchorBatch struct {
	RootHex         string
	ChainID         string
	LeafCount       int
	TransactionHash string
	ProofsJSON      json.RawMessage
	CreatedAt       time.Time
}
