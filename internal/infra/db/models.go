package db

import "time"

type IdentityRecordModel struct {
	DID             string `gorm:"primaryKey"`
	WalletAddress   string `gorm:"uniqueIndex;not null"`
	ChainID         string `gorm:"not null"`
	IdentityTokenID *int64
	CreatedAt       time.Time `gorm:"not null"`
}

func (IdentityRecordModel) TableName() string { return "identity_records" }

type ChainBindingModel struct {
	ID        int64     `gorm:"primaryKey"`
	DID       string    `gorm:"index:idx_bindings_did_chain;not null"`
	ChainID   string    `gorm:"index:idx_bindings_did_chain;not null"`
	Address   string    `gorm:"index;not null"`
	IsActive  bool      `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (ChainBindingModel) TableName() string { return "chain_bindings" }

type DidDocumentModel struct {
	ID             int64     `gorm:"primaryKey"`
	DID            string    `gorm:"uniqueIndex:ux_did_documents_did_version;not null"`
	Version        int64     `gorm:"uniqueIndex:ux_did_documents_did_version;not null"`
	DocumentJSON   []byte    `gorm:"type:jsonb;not null"`
	ContentAddress string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (DidDocumentModel) TableName() string { return "did_documents" }

type CredentialModel struct {
	CredentialHash   string `gorm:"primaryKey"`
	IssuerDID        string `gorm:"index;not null"`
	SubjectDID       string `gorm:"index;not null"`
	Type             string `gorm:"not null"`
	SchemaRef        string
	IssuanceDate     time.Time `gorm:"not null"`
	ExpirationDate   *time.Time
	RevocationDate   *time.Time
	RevocationReason string
	Status           string    `gorm:"index;not null"`
	ContentAddress   string    `gorm:"not null"`
	Proof            []byte    `gorm:"type:jsonb"`
	IdentityTokenID  int64     `gorm:"not null"`
	Anchored         bool      `gorm:"index;not null"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (CredentialModel) TableName() string { return "credentials" }

type BridgeRequestModel struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	UserID          string `gorm:"index"`
	DID             string `gorm:"index;not null"`
	SourceChain     string `gorm:"not null"`
	TargetChain     string `gorm:"not null"`
	SourceAddress   string `gorm:"not null"`
	TargetAddress   string `gorm:"not null"`
	RequestType     string `gorm:"not null"`
	Status          string `gorm:"index;not null"`
	TransactionHash string
	ErrorMessage    string
	Metadata        []byte    `gorm:"type:jsonb"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (BridgeRequestModel) TableName() string { return "bridge_requests" }

type ContentObjectModel struct {
	Address   string    `gorm:"primaryKey"`
	Body      []byte    `gorm:"type:bytea;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ContentObjectModel) TableName() string { return "content_objects" }

type AnchorBatchModel struct {
	RootHex         string `gorm:"primaryKey"`
	ChainID         string `gorm:"not null"`
	LeafCount       int    `gorm:"not null"`
	TransactionHash string `gorm:"not null"`
	ProofsJSON      []byte `gorm:"type:jsonb;not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (AnchorBatchModel) TableName() string { return "anchor_batches" }
