package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnsupportedRoute = errors.New("unsupported route")
	ErrChain            = errors.New("chain call failed")
	ErrConsistency      = errors.New("store and chain state diverged")
	ErrContentMismatch  = errors.New("content hash mismatch")
	ErrAlreadyRevoked   = errors.New("credential already revoked")
	ErrNoIdentityToken  = errors.New("subject has no identity token")
	ErrPolicyDenied     = errors.New("denied by policy")
)
