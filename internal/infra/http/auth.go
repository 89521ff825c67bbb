package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const walletHeader = "X-Wallet-Address"
const adminKeyHeader = "X-Admin-Key"

// requireWallet reads the caller's wallet address from the request header.
// Address ownership is proven on-chain by the registry contracts, not here.
func (s *Server) requireWallet(c *gin.Context) (string, bool) {
	wallet := strings.ToLower(strings.TrimSpace(c.GetHeader(walletHeader)))
	if wallet == "" {
		writeErrorCode(c, http.StatusUnauthorized, "WALLET_REQUIRED", "X-Wallet-Address header is required")
		return "", false
	}
	return wallet, true
}

func (s *Server) isAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		return false
	}
	key := strings.TrimSpace(c.GetHeader(adminKeyHeader))
	if key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) == 1
}

func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "admin API is disabled")
		return false
	}
	if !s.isAdmin(c) {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
		return false
	}
	return true
}
