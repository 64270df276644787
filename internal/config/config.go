// Package config loads process configuration from SWAPBUNDLE_* environment
// variables, optionally seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/gabapcia/swapbundle/internal/pkg/validator"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name.
const Prefix = "SWAPBUNDLE"

// Redis is the optional shared store. An empty Addr disables it.
type Redis struct {
	Addr     string `envconfig:"ADDR"`
	Username string `envconfig:"USERNAME"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0" validate:"gte=0"`
}

// Enabled reports whether a Redis address is configured.
func (r Redis) Enabled() bool {
	return r.Addr != ""
}

type Config struct {
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	ServiceName      string `envconfig:"SERVICE_NAME" default:"swapbundle" validate:"required"`
	TelemetryEnabled bool   `envconfig:"TELEMETRY_ENABLED" default:"false"`

	SolanaRPCURL        string `envconfig:"SOLANA_RPC_URL" default:"https://api.mainnet-beta.solana.com" validate:"required,url"`
	JupiterBaseURL      string `envconfig:"JUPITER_BASE_URL" default:"https://quote-api.jup.ag" validate:"required,url"`
	RelayURL            string `envconfig:"RELAY_URL" validate:"omitempty,url"`
	TokenMetadataURL    string `envconfig:"TOKEN_METADATA_URL" default:"https://data.solanatracker.io" validate:"required,url"`
	TokenMetadataAPIKey string `envconfig:"TOKEN_METADATA_API_KEY"`

	Redis Redis `envconfig:"REDIS"`

	SlippageBps      int           `envconfig:"SLIPPAGE_BPS" default:"50" validate:"gte=1,lte=10000"`
	QuoteDebounce    time.Duration `envconfig:"QUOTE_DEBOUNCE" default:"400ms" validate:"gte=0"`
	QuoteCacheTTL    time.Duration `envconfig:"QUOTE_CACHE_TTL" default:"10s" validate:"gte=0"`
	MetadataCacheTTL time.Duration `envconfig:"METADATA_CACHE_TTL" default:"24h" validate:"gte=0"`

	SafetyBufferLamports   uint64        `envconfig:"SAFETY_BUFFER_LAMPORTS" default:"10000000"`
	StaggerBase            time.Duration `envconfig:"STAGGER_BASE" default:"0s" validate:"gte=0"`
	StaggerStep            time.Duration `envconfig:"STAGGER_STEP" default:"400ms" validate:"gte=0"`
	StaggerMaxJitter       time.Duration `envconfig:"STAGGER_MAX_JITTER" default:"250ms" validate:"gte=0"`
	PriorityFeeMinLamports uint64        `envconfig:"PRIORITY_FEE_MIN_LAMPORTS" default:"10000"`
	PriorityFeeMaxLamports uint64        `envconfig:"PRIORITY_FEE_MAX_LAMPORTS" default:"100000" validate:"gtefield=PriorityFeeMinLamports"`

	QuoteTimeout   time.Duration `envconfig:"QUOTE_TIMEOUT" default:"10s" validate:"gt=0"`
	BuildTimeout   time.Duration `envconfig:"BUILD_TIMEOUT" default:"15s" validate:"gt=0"`
	SubmitTimeout  time.Duration `envconfig:"SUBMIT_TIMEOUT" default:"30s" validate:"gt=0"`
	BalanceTimeout time.Duration `envconfig:"BALANCE_TIMEOUT" default:"5s" validate:"gt=0"`

	MaxWallets int `envconfig:"MAX_WALLETS" default:"16" validate:"gte=1,lte=64"`

	ReconcileInterval      time.Duration `envconfig:"RECONCILE_INTERVAL" default:"2s" validate:"gt=0"`
	ReconcileMaxAttempts   int           `envconfig:"RECONCILE_MAX_ATTEMPTS" default:"30" validate:"gte=1"`
	ReconcileStatusTimeout time.Duration `envconfig:"RECONCILE_STATUS_TIMEOUT" default:"10s" validate:"gt=0"`
}

// Load reads envFiles (".env" when none are given) into the environment
// without overriding variables already set, then processes and validates
// the configuration. Missing env files are ignored.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	if err := validator.Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
