package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every variable, e.g. NEXUSPOS_PORT. The unprefixed name is
// accepted as a fallback.
const EnvPrefix = "NEXUSPOS"

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	AuthSecret             string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL         time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
	BootstrapAdminEmail    string        `envconfig:"BOOTSTRAP_ADMIN_EMAIL" default:"admin@nexus.pos"`
	BootstrapAdminPassword string        `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`

	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LOG_WARN_STACK" default:"false"`

	FiscalSyncTimeout time.Duration `envconfig:"FISCAL_SYNC_TIMEOUT" default:"10s"`
	FiscalAPIKey      string        `envconfig:"FISCAL_API_KEY"`
	MaxTerminals      int           `envconfig:"MAX_TERMINALS" default:"256"`

	GeminiAPIKey        string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel         string        `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	GeminiBaseURL       string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	DescribeTimeout     time.Duration `envconfig:"DESCRIBE_TIMEOUT" default:"15s"`
	DescriptionCacheTTL time.Duration `envconfig:"DESCRIPTION_CACHE_TTL" default:"24h"`

	// SeedFile overrides the embedded demo catalog.
	SeedFile       string `envconfig:"SEED_FILE"`
	DefaultTaxRate string `envconfig:"DEFAULT_TAX_RATE" default:"8"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
