package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crossid/internal/domain"
	"crossid/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type provisionRequest struct {
	WalletAddress string `json:"wallet_address"`
	ChainID       string `json:"chain_id"`
}

type provisionResponse struct {
	DID             string `json:"did"`
	IdentityTokenID int64  `json:"identity_token_id"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	Existing        bool   `json:"existing"`
}

type bindingRequest struct {
	DID     string `json:"did"`
	ChainID string `json:"chain_id"`
	Address string `json:"address"`
}

type verifyIdentityRequest struct {
	DID     string         `json:"did"`
	Payload map[string]any `json:"payload,omitempty"`
}

type issueRequest struct {
	IssuerDID      string          `json:"issuer_did"`
	SubjectDID     string          `json:"subject_did"`
	CredentialType string          `json:"credential_type"`
	SchemaRef      string          `json:"schema_ref,omitempty"`
	Claims         map[string]any  `json:"claims"`
	Proof          json.RawMessage `json:"proof,omitempty"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
}

type issueResponse struct {
	CredentialHash string                `json:"credential_hash"`
	ContentAddress string                `json:"content_address"`
	Credential     domain.CredentialBody `json:"credential"`
	Anchored       bool                  `json:"anchored"`
}

type revokeRequest struct {
	CredentialHash string `json:"credential_hash"`
	Reason         string `json:"reason,omitempty"`
}

type verifyCredentialRequest struct {
	CredentialHash string          `json:"credential_hash"`
	Credential     json.RawMessage `json:"credential,omitempty"`
	ContentAddress string          `json:"content_address,omitempty"`
}

type verifyCredentialResponse struct {
	Valid  bool   `json:"valid"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type anchorBatchRequest struct {
	ChainID string `json:"chain_id"`
	Limit   int    `json:"limit,omitempty"`
}

type anchorBatchResponse struct {
	Root            string `json:"root"`
	ChainID         string `json:"chain_id"`
	LeafCount       int    `json:"leaf_count"`
	TransactionHash string `json:"transaction_hash"`
}

type anchorBatchDetailResponse struct {
	Root            string          `json:"root"`
	ChainID         string          `json:"chain_id"`
	LeafCount       int             `json:"leaf_count"`
	TransactionHash string          `json:"transaction_hash"`
	Proofs          json.RawMessage `json:"proofs"`
	CreatedAt       string          `json:"created_at"`
}

type chainBindingView struct {
	ChainID string `json:"chain_id"`
	Address string `json:"address"`
}

type bridgeSubmitRequest struct {
	DID           string         `json:"did"`
	SourceChain   string         `json:"source_chain"`
	TargetChain   string         `json:"target_chain"`
	TargetAddress string         `json:"target_address,omitempty"`
	RequestType   string         `json:"request_type,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type bridgeSubmitResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type bridgeStatusResponse struct {
	RequestID       string `json:"request_id"`
	DID             string `json:"did"`
	SourceChain     string `json:"source_chain"`
	TargetChain     string `json:"target_chain"`
	RequestType     string `json:"request_type"`
	Status          string `json:"status"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type didDocumentResponse struct {
	Document       domain.DidDocument `json:"document"`
	Version        int64              `json:"version"`
	ContentAddress string             `json:"content_address"`
	Bindings       []chainBindingView `json:"bindings"`
}

func (s *Server) handleHealthz(c *gin.Context) {
	dbMode := "no-db"
	if s.store != nil && s.store.DB != nil {
		dbMode = "db"
	}
	chains := gin.H{}
	if s.chains != nil {
		for _, name := range s.chains.Names() {
			gateway, ok := s.chains.Gateway(name)
			if !ok {
				continue
			}
			if err := gateway.GetStatus(c.Request.Context()); err != nil {
				chains[name] = "unreachable"
				continue
			}
			chains[name] = "ok"
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode, "chains": chains})
}

func (s *Server) handleProvisionDID(c *gin.Context) {
	wallet, ok := s.requireWallet(c)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeIdentityWrite, wallet) {
		return
	}
	var req provisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.WalletAddress == "" {
		req.WalletAddress = wallet
	}
	result, err := s.provisioner.ProvisionDID(c.Request.Context(), req.WalletAddress, req.ChainID)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	c.JSON(status, provisionResponse{
		DID:             result.DID,
		IdentityTokenID: result.IdentityTokenID,
		TransactionHash: result.TransactionHash,
		Existing:        result.Existing,
	})
}

func (s *Server) handleResolveDID(c *gin.Context) {
	did := strings.TrimPrefix(c.Param("did"), "/")
	doc, err := s.provisioner.ResolveDID(c.Request.Context(), did)
	if err != nil {
		writeError(c, err)
		return
	}
	bindings, err := s.provisioner.ListBindings(c.Request.Context(), did)
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]chainBindingView, 0, len(bindings))
	for _, binding := range bindings {
		views = append(views, chainBindingView{ChainID: binding.ChainID, Address: binding.Address})
	}
	c.JSON(http.StatusOK, didDocumentResponse{
		Document:       *doc,
		Version:        doc.Version,
		ContentAddress: doc.ContentAddress,
		Bindings:       views,
	})
}

func (s *Server) handleAddBinding(c *gin.Context) {
	wallet, ok := s.requireWallet(c)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeIdentityWrite, wallet) {
		return
	}
	var req bindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := s.provisioner.AddChainBinding(c.Request.Context(), req.DID, req.ChainID, req.Address, wallet); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"did": req.DID, "chain_id": req.ChainID, "address": strings.ToLower(req.Address)})
}

func (s *Server) handleVerifyRequest(c *gin.Context) {
	wallet, ok := s.requireWallet(c)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeIdentityWrite, wallet) {
		return
	}
	var req verifyIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	verificationID, err := s.provisioner.RequestVerification(c.Request.Context(), req.DID, req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"did": req.DID, "verification_id": verificationID})
}

func (s *Server) handleIssueCredential(c *gin.Context) {
	wallet, ok := s.requireWallet(c)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeCredentialWrite, wallet) {
		return
	}
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	result, err := s.ledger.Issue(c.Request.Context(), usecase.IssueCredentialInput{
		IssuerDID:      req.IssuerDID,
		SubjectDID:     req.SubjectDID,
		CredentialType: req.CredentialType,
		SchemaRef:      req.SchemaRef,
		Claims:         req.Claims,
		Proof:          req.Proof,
		ExpirationDate: req.ExpirationDate,
		CallerWallet:   wallet,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, issueResponse{
		CredentialHash: result.CredentialHash,
		ContentAddress: result.ContentAddress,
		Credential:     result.Credential,
		Anchored:       result.Anchored,
	})
}

func (s *Server) handleRevokeCredential(c *gin.Context) {
	wallet, ok := s.requireWallet(c)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeCredentialWrite, wallet) {
		return
	}
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := s.ledger.Revoke(c.Request.Context(), req.CredentialHash, req.Reason, wallet); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credential_hash": req.CredentialHash, "status": domain.CredentialStatusRevoked})
}

func (s *Server) handleVerifyCredential(c *gin.Context) {
	var req verifyCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	outcome, err := s.ledger.Verify(c.Request.Context(), req.CredentialHash, req.ContentAddress, req.Credential)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, verifyCredentialResponse{
		Valid:  outcome.Valid,
		Status: outcome.Status,
		Reason: outcome.Reason,
	})
}

func (s *Server) handleAnchorBatch(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var req anchorBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	batch, err := s.ledger.AnchorBatch(c.Request.Context(), req.ChainID, req.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, anchorBatchResponse{
		Root:            batch.RootHex,
		ChainID:         batch.ChainID,
		LeafCount:       batch.LeafCount,
		TransactionHash: batch.TransactionHash,
	})
}

func (s *Server) handleGetAnchorBatch(c *gin.Context) {
	batch, err := s.ledger.GetAnchorBatch(c.Request.Context(), c.Param("root"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, anchorBatchDetailResponse{
		Root:            batch.RootHex,
		ChainID:         batch.ChainID,
		LeafCount:       batch.LeafCount,
		TransactionHash: batch.TransactionHash,
		Proofs:          batch.ProofsJSON,
		CreatedAt:       batch.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSubmitBridge(c *gin.Context) {
	wallet, ok := s.requireWallet(c)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeBridgeSubmit, wallet) {
		return
	}
	var req bridgeSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	result, err := s.bridge.Submit(c.Request.Context(), usecase.SubmitBridgeInput{
		DID:           req.DID,
		SourceChain:   req.SourceChain,
		TargetChain:   req.TargetChain,
		TargetAddress: req.TargetAddress,
		RequestType:   req.RequestType,
		Metadata:      req.Metadata,
		CallerWallet:  wallet,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bridgeSubmitResponse{RequestID: result.ID, Status: result.Status})
}

func (s *Server) handleBridgeStatus(c *gin.Context) {
	wallet, ok := s.requireWallet(c)
	if !ok {
		return
	}
	req, err := s.bridge.GetStatus(c.Request.Context(), c.Param("request_id"), wallet, s.isAdmin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bridgeStatusFromDomain(req))
}

func (s *Server) handleListBridgeRequests(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	requests, err := s.bridge.List(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]bridgeStatusResponse, 0, len(requests))
	for i := range requests {
		out = append(out, bridgeStatusFromDomain(&requests[i]))
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

func (s *Server) handleReconcileIdentities(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	report, err := s.reconciler.ReconcileIdentities(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleReconcileCredentials(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	report, err := s.reconciler.ReconcileCredentials(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func bridgeStatusFromDomain(req *domain.BridgeRequest) bridgeStatusResponse {
	return bridgeStatusResponse{
		RequestID:       req.ID,
		DID:             req.DID,
		SourceChain:     req.SourceChain,
		TargetChain:     req.TargetChain,
		RequestType:     req.RequestType,
		Status:          req.Status,
		TransactionHash: req.TransactionHash,
		ErrorMessage:    req.ErrorMessage,
		CreatedAt:       req.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       req.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrContentMismatch):
		status, code = http.StatusBadRequest, "CONTENT_MISMATCH"
	case errors.Is(err, domain.ErrUnsupportedRoute):
		status, code = http.StatusBadRequest, "UNSUPPORTED_ROUTE"
	case errors.Is(err, domain.ErrNoIdentityToken):
		status, code = http.StatusConflict, "NO_IDENTITY_TOKEN"
	case errors.Is(err, domain.ErrAlreadyRevoked):
		status, code = http.StatusConflict, "ALREADY_REVOKED"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrPolicyDenied):
		status, code = http.StatusForbidden, "POLICY_DENIED"
	case errors.Is(err, domain.ErrChain):
		status, code = http.StatusBadGateway, "CHAIN_UNAVAILABLE"
	case errors.Is(err, domain.ErrConsistency):
		status, code = http.StatusInternalServerError, "CONSISTENCY"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
