package domain

import "time"

// IdentityRecord maps a wallet credential to a DID and its soulbound identity
// token on the minting chain. IdentityTokenID is nil until the mint transaction
// is confirmed on-chain.
type IdentityRecord struct {
	DID             string
	WalletAddress   string
	ChainID         string
	IdentityTokenID *int64
	CreatedAt       time.Time
}

// ChainBinding is an additional ledger address controlled by a DID. At most one
// binding is active per (did, chain); re-binding deactivates the previous row.
type ChainBinding struct {
	DID       string
	ChainID   string
	Address   string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type VerificationMethod struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Controller string `json:"controller"`
	ChainID    string `json:"chainId,omitempty"`
	Address    string `json:"blockchainAccountId,omitempty"`
}

// DidDocument is the versioned, content-addressed document for a DID. Versions
// are append-only; the current document is the row with the highest version.
type DidDocument struct {
	DID                string               `json:"-"`
	Version            int64                `json:"-"`
	ID                 string               `json:"id"`
	Controller         []string             `json:"controller"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	ContentAddress     string               `json:"-"`
	CreatedAt          time.Time            `json:"-"`
}

// Controls reports whether the given wallet appears as the document subject's
// controller.
func (d *DidDocument) Controls(wallet string) bool {
	if d == nil {
		return false
	}
	for _, c := range d.Controller {
		if c == wallet {
			return true
		}
	}
	return false
}

// MintReceipt is the ledger-confirmed result of an identity-token mint. The
// token id is read back from the chain, never invented client-side.
type MintReceipt struct {
	TokenID int64
	TxHash  string
}

type ProvisionResult struct {
	DID             string
	IdentityTokenID int64
	TransactionHash string
	Existing        bool
}
