package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type ChainConfig struct {
	Name         string
	RPCURL       string
	RegistryAddr string
	SignerKey    string
}

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	AdminAPIKey string

	Chains                []ChainConfig
	ChainCallTimeoutSecs  int
	DispatchSweepSeconds  int
	PolicyBundlePath      string
	PolicyBundleID        string
	DIDCacheTTLSeconds    int
	CredentialValidityDays int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		AdminAPIKey:            os.Getenv("ADMIN_API_KEY"),
		Chains:                 chainsFromEnv(),
		ChainCallTimeoutSecs:   envIntDefault("CHAIN_CALL_TIMEOUT_SECONDS", 15),
		DispatchSweepSeconds:   envIntDefault("DISPATCH_SWEEP_SECONDS", 60),
		PolicyBundlePath:       os.Getenv("POLICY_BUNDLE_PATH"),
		PolicyBundleID:         envDefault("POLICY_BUNDLE_ID", "crossid-policy"),
		DIDCacheTTLSeconds:     envIntDefault("DID_CACHE_TTL_SECONDS", 300),
		CredentialValidityDays: envIntDefault("CREDENTIAL_VALIDITY_DAYS", 365),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

// chainsFromEnv reads CHAINS as a comma list of chain names, then one
// CHAIN_<NAME>_RPC_URL / CHAIN_<NAME>_REGISTRY_ADDR / CHAIN_<NAME>_SIGNER_KEY
// triple per name. Chains without an RPC URL are skipped.
func chainsFromEnv() []ChainConfig {
	raw := os.Getenv("CHAINS")
	if raw == "" {
		return nil
	}
	var chains []ChainConfig
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		rpcURL := os.Getenv("CHAIN_" + key + "_RPC_URL")
		if rpcURL == "" {
			continue
		}
		chains = append(chains, ChainConfig{
			Name:         name,
			RPCURL:       rpcURL,
			RegistryAddr: os.Getenv("CHAIN_" + key + "_REGISTRY_ADDR"),
			SignerKey:    os.Getenv("CHAIN_" + key + "_SIGNER_KEY"),
		})
	}
	return chains
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func (c Config) ChainCallTimeout() time.Duration {
	if c.ChainCallTimeoutSecs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ChainCallTimeoutSecs) * time.Second
}

func (c Config) DIDCacheTTL() time.Duration {
	if c.DIDCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.DIDCacheTTLSeconds) * time.Second
}

func (c Config) CredentialValidity() time.Duration {
	days := c.CredentialValidityDays
	if days <= 0 {
		days = 365
	}
	return time.Duration(days) * 24 * time.Hour
}

func (c Config) DispatchSweepInterval() time.Duration {
	if c.DispatchSweepSeconds <= 0 {
		return 0
	}
	return time.Duration(c.DispatchSweepSeconds) * time.Second
}
