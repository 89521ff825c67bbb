package http

import (
	"context"
	"log"
	"time"

	"crossid/internal/config"
	"crossid/internal/domain"
	"crossid/internal/infra/cachemem"
	"crossid/internal/infra/cacheredis"
	"crossid/internal/infra/chain"
	"crossid/internal/infra/content"
	"crossid/internal/infra/db"
	"crossid/internal/infra/merkle"
	"crossid/internal/infra/policyopa"
	"crossid/internal/infra/ratelimit"
	"crossid/internal/usecase"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	provisioner *usecase.IdentityProvisioner
	ledger      *usecase.CredentialLedger
	bridge      *usecase.BridgeCoordinator
	reconciler  *usecase.Reconciler
	chains      usecase.GatewayRegistry

	adminAPIKey string

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration
}

func NewServer(cfg config.Config, store *db.Store) (*Server, error) {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r}
	if err := s.initDeps(); err != nil {
		return nil, err
	}
	s.routes()
	return s, nil
}

type ServerDeps struct {
	Provisioner *usecase.IdentityProvisioner
	Ledger      *usecase.CredentialLedger
	Bridge      *usecase.BridgeCoordinator
	Reconciler  *usecase.Reconciler
	Chains      usecase.GatewayRegistry
	AdminAPIKey string
	RateLimiter domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:         cfg,
		r:           r,
		provisioner: deps.Provisioner,
		ledger:      deps.Ledger,
		bridge:      deps.Bridge,
		reconciler:  deps.Reconciler,
		chains:      deps.Chains,
		adminAPIKey: deps.AdminAPIKey,
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initDeps() error {
	s.adminAPIKey = s.cfg.AdminAPIKey

	registry, err := chain.NewRegistryFromConfig(s.cfg)
	if err != nil {
		return err
	}
	s.chains = registry

	var gdb *gorm.DB
	if s.store != nil {
		gdb = s.store.DB
	}
	identityRepo := db.NewIdentityRepository(gdb)
	bindingRepo := db.NewBindingRepository(gdb)
	documentRepo := db.NewDidDocumentRepository(gdb)
	credentialRepo := db.NewCredentialRepository(gdb)
	bridgeRepo := db.NewBridgeRequestRepository(gdb)
	anchorRepo := db.NewAnchorBatchRepository(gdb)
	contentStore := content.NewStore(gdb)

	var cache usecase.DocumentCache
	if s.cfg.RedisAddr != "" {
		redisCache, err := cacheredis.New(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB)
		if err != nil {
			log.Printf("redis cache unavailable, using in-process cache: %v", err)
		} else {
			cache = redisCache
		}
	}
	if cache == nil {
		cache = cachemem.New()
	}

	var policy usecase.PolicyEngine
	if s.cfg.PolicyBundlePath != "" {
		engine, err := policyopa.NewEngineFromBundlePath(context.Background(), s.cfg.PolicyBundlePath, s.cfg.PolicyBundleID)
		if err != nil {
			return err
		}
		policy = engine
	}

	s.provisioner = &usecase.IdentityProvisioner{
		Store:      db.NewTxStore(gdb),
		Identities: identityRepo,
		Bindings:   bindingRepo,
		Documents:  documentRepo,
		Content:    contentStore,
		Chains:     registry,
		Cache:      cache,
		CacheTTL:   s.cfg.DIDCacheTTL(),
	}
	s.ledger = &usecase.CredentialLedger{
		Credentials: credentialRepo,
		Anchors:     anchorRepo,
		Content:     contentStore,
		Controller:  s.provisioner,
		Chains:      registry,
		Merkle:      merkle.Service{},
		Policy:      policy,
		Validity:    s.cfg.CredentialValidity(),
	}
	s.bridge = &usecase.BridgeCoordinator{
		Requests:   bridgeRepo,
		Identities: identityRepo,
		Bindings:   bindingRepo,
		Chains:     registry,
		Policy:     policy,
		Handlers:   usecase.DefaultHandlers(registry, s.provisioner),
		NewID: func() string {
			id, err := db.NewUUID()
			if err != nil {
				panic(err)
			}
			return id
		},
	}
	s.reconciler = &usecase.Reconciler{
		Identities:  identityRepo,
		Credentials: credentialRepo,
		Chains:      registry,
	}

	s.initRateLimit(nil)
	return nil
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealthz)

	v1 := s.r.Group("/v1")
	{
		v1.POST("/bridge-identity", s.handleSubmitBridge)
		v1.GET("/bridge/status/:request_id", s.handleBridgeStatus)

		v1.POST("/identity/did", s.handleProvisionDID)
		v1.GET("/identity/did/*did", s.handleResolveDID)
		v1.POST("/identity/bindings", s.handleAddBinding)
		v1.POST("/identity/verify-request", s.handleVerifyRequest)

		v1.POST("/credentials/issue", s.handleIssueCredential)
		v1.POST("/credentials/revoke", s.handleRevokeCredential)
		v1.POST("/credentials/verify", s.handleVerifyCredential)
		v1.POST("/credentials/anchor-batch", s.handleAnchorBatch)
		v1.GET("/credentials/anchors/:root", s.handleGetAnchorBatch)

		v1.GET("/bridge/requests", s.handleListBridgeRequests)
		v1.POST("/reconcile/identities", s.handleReconcileIdentities)
		v1.POST("/reconcile/credentials", s.handleReconcileCredentials)
	}

	s.r.NoRoute(s.handleNoRoute)
}

// Bridge returns the coordinator so the process can run startup recovery and
// the periodic sweep against the same instance the handlers use.
func (s *Server) Bridge() *usecase.BridgeCoordinator {
	return s.bridge
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}
