package domain

import "time"

const (
	BridgeStatusPending    = "pending"
	BridgeStatusProcessing = "processing"
	BridgeStatusCompleted  = "completed"
	BridgeStatusFailed     = "failed"
)

const (
	BridgeTypeIdentity = "identity"
	BridgeTypeAsset    = "asset"
)

// BridgeRequest is one asynchronous cross-chain operation. Status only moves
// forward pending -> processing -> completed|failed; terminal states are
// immutable and TransactionHash is set only together with completed.
type BridgeRequest struct {
	ID              string
	UserID          string
	DID             string
	SourceChain     string
	TargetChain     string
	SourceAddress   string
	TargetAddress   string
	RequestType     string
	Status          string
	TransactionHash string
	ErrorMessage    string
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether the request reached a state no dispatcher may leave.
func (r *BridgeRequest) Terminal() bool {
	return r != nil && (r.Status == BridgeStatusCompleted || r.Status == BridgeStatusFailed)
}

// Route identifies a bridge handler: one (source, target, type) tuple.
type Route struct {
	SourceChain string `json:"source_chain"`
	TargetChain string `json:"target_chain"`
	RequestType string `json:"request_type"`
}
