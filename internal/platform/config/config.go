package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	strutil "solrelay/pkg/platform/strings"
)

// Config is the relay's complete runtime configuration.
type Config struct {
	Server     Server
	Solana     Solana
	Redis      RedisConfig
	Credential Credential
	Sponsor    Sponsor
	RateLimit  RateLimit
	Activity   Activity
	Names      Names
	Logging    Logging
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Solana holds the RPC endpoint and the privileged key material.
// Secrets are base58-encoded 64-byte ed25519 keys; empty means not configured.
type Solana struct {
	RPCEndpoint         string
	RPCRequestsPerSec   float64
	FeePayerSecret      string
	ParentOwnerSecret   string
	BroadcastAttempts   int
	BroadcastMaxRetries uint
}

// RedisConfig configures the optional durable backend. An empty URL
// activates in-memory mode everywhere.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Credential struct {
	JWKSURL     string
	DevBypass   bool
	CacheTTL    time.Duration
	CacheSize   int
	Header      string
	Requirement string
}

type Sponsor struct {
	NonceTTL  time.Duration
	DedupeTTL time.Duration
}

type RateLimit struct {
	Window   time.Duration
	Max      int
	Disabled bool
}

type Activity struct {
	Capacity int
}

type Names struct {
	ServiceURL               string
	PriorityFeeMicroLamports uint64
}

type Logging struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8787)
	v.SetDefault("cors_allowed_origins", "http://localhost:3000,http://localhost:3010")
	v.SetDefault("http_read_timeout", "15s")
	v.SetDefault("http_write_timeout", "30s")

	v.SetDefault("rpc_endpoint", "https://api.devnet.solana.com")
	v.SetDefault("rpc_rate_limit", 0)
	v.SetDefault("feepayer_secret_key_base58", "")
	v.SetDefault("parent_owner_secret_key_base58", "")
	v.SetDefault("broadcast_attempts", 3)
	v.SetDefault("broadcast_max_retries", 2)

	v.SetDefault("redis_url", "")
	v.SetDefault("redis_pool_size", 10)
	v.SetDefault("redis_min_idle_conns", 0)
	v.SetDefault("redis_max_retries", 1)
	v.SetDefault("redis_dial_timeout", "2s")
	v.SetDefault("redis_read_timeout", "500ms")
	v.SetDefault("redis_write_timeout", "500ms")

	v.SetDefault("sas_jwks_url", "")
	v.SetDefault("sas_dev_bypass", false)
	v.SetDefault("sas_token_cache_ttl", "60s")
	v.SetDefault("sas_token_cache_size", 1000)
	v.SetDefault("sas_header", "X-SAS-JWT")
	v.SetDefault("sas_required_scope", "KYC_PASS")

	v.SetDefault("nonce_ttl_sec", 600)
	v.SetDefault("dedupe_ttl_sec", 600)

	v.SetDefault("rate_limit_window_ms", 60000)
	v.SetDefault("rate_limit_max", 60)
	v.SetDefault("rate_limit_disabled", false)

	v.SetDefault("activity_history_limit", 100)

	v.SetDefault("name_service_url", "")
	v.SetDefault("priority_fee_micro_lamports", 1000)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads configuration from the environment, optionally layered over a
// YAML/JSON file whose keys are the lower-cased environment variable names.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Server: Server{
			Addr:           fmt.Sprintf(":%d", v.GetInt("port")),
			AllowedOrigins: strutil.SplitList(v.GetString("cors_allowed_origins")),
			ReadTimeout:    v.GetDuration("http_read_timeout"),
			WriteTimeout:   v.GetDuration("http_write_timeout"),
		},
		Solana: Solana{
			RPCEndpoint:         v.GetString("rpc_endpoint"),
			RPCRequestsPerSec:   v.GetFloat64("rpc_rate_limit"),
			FeePayerSecret:      strings.TrimSpace(v.GetString("feepayer_secret_key_base58")),
			ParentOwnerSecret:   strings.TrimSpace(v.GetString("parent_owner_secret_key_base58")),
			BroadcastAttempts:   v.GetInt("broadcast_attempts"),
			BroadcastMaxRetries: v.GetUint("broadcast_max_retries"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis_url"),
			PoolSize:     v.GetInt("redis_pool_size"),
			MinIdleConns: v.GetInt("redis_min_idle_conns"),
			MaxRetries:   v.GetInt("redis_max_retries"),
			DialTimeout:  v.GetDuration("redis_dial_timeout"),
			ReadTimeout:  v.GetDuration("redis_read_timeout"),
			WriteTimeout: v.GetDuration("redis_write_timeout"),
		},
		Credential: Credential{
			JWKSURL:     v.GetString("sas_jwks_url"),
			DevBypass:   v.GetBool("sas_dev_bypass"),
			CacheTTL:    v.GetDuration("sas_token_cache_ttl"),
			CacheSize:   v.GetInt("sas_token_cache_size"),
			Header:      v.GetString("sas_header"),
			Requirement: v.GetString("sas_required_scope"),
		},
		Sponsor: Sponsor{
			NonceTTL:  time.Duration(v.GetInt("nonce_ttl_sec")) * time.Second,
			DedupeTTL: time.Duration(v.GetInt("dedupe_ttl_sec")) * time.Second,
		},
		RateLimit: RateLimit{
			Window:   time.Duration(v.GetInt64("rate_limit_window_ms")) * time.Millisecond,
			Max:      v.GetInt("rate_limit_max"),
			Disabled: v.GetBool("rate_limit_disabled"),
		},
		Activity: Activity{
			Capacity: v.GetInt("activity_history_limit"),
		},
		Names: Names{
			ServiceURL:               v.GetString("name_service_url"),
			PriorityFeeMicroLamports: v.GetUint64("priority_fee_micro_lamports"),
		},
		Logging: Logging{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would make a component meaningless.
func (c *Config) Validate() error {
	var errs []error
	if c.Solana.RPCEndpoint == "" {
		errs = append(errs, errors.New("rpc_endpoint must be set"))
	}
	if c.Solana.BroadcastAttempts < 1 {
		errs = append(errs, errors.New("broadcast_attempts must be at least 1"))
	}
	if c.Sponsor.NonceTTL <= 0 || c.Sponsor.DedupeTTL <= 0 {
		errs = append(errs, errors.New("nonce and dedupe TTLs must be positive"))
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Max <= 0 {
		errs = append(errs, errors.New("rate limit window and max must be positive"))
	}
	if c.Activity.Capacity <= 0 {
		errs = append(errs, errors.New("activity_history_limit must be positive"))
	}
	if c.Credential.CacheTTL <= 0 || c.Credential.CacheSize <= 0 {
		errs = append(errs, errors.New("credential cache ttl and size must be positive"))
	}
	return errors.Join(errs...)
}
