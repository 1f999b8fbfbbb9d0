package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `env:"GO_ENV,default=development"`
	Port     string `env:"PORT,default=8080" validate:"required,numeric"`
	HTTP     HTTPConfig
	Security SecurityConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	Geo      GeoConfig
}

// SecurityConfig holds the product-tuned thresholds and intervals of the
// security context engine.
type SecurityConfig struct {
	SessionTTL              time.Duration `env:"SESSION_TTL,default=24h" validate:"gt=0"`
	HealthCheckInterval     time.Duration `env:"HEALTH_CHECK_INTERVAL,default=60s" validate:"gt=0"`
	RiskEscalationInterval  time.Duration `env:"RISK_ESCALATION_INTERVAL,default=5m" validate:"gt=0"`
	ActivityPersistInterval time.Duration `env:"ACTIVITY_PERSIST_INTERVAL,default=30s" validate:"gte=0"`
	StoreTimeout            time.Duration `env:"STORE_TIMEOUT,default=5s" validate:"gt=0"`

	NormalHoursStart        int    `env:"NORMAL_HOURS_START,default=6" validate:"min=0,max=23"`
	NormalHoursEnd          int    `env:"NORMAL_HOURS_END,default=22" validate:"min=1,max=24"`
	RiskTimezone            string `env:"RISK_TIMEZONE" validate:"omitempty,timezone"`
	FailedAttemptsThreshold int    `env:"FAILED_ATTEMPTS_THRESHOLD,default=3" validate:"gte=0"`
	DormantDays             int    `env:"DORMANT_DAYS,default=30" validate:"gte=0"`
	MediumRiskFactors       int    `env:"MEDIUM_RISK_FACTORS,default=1" validate:"gte=1"`
	HighRiskFactors         int    `env:"HIGH_RISK_FACTORS,default=3" validate:"gtfield=MediumRiskFactors"`

	EventQueueSize   int           `env:"EVENT_QUEUE_SIZE,default=256" validate:"gt=0"`
	ResolverTimeout  time.Duration `env:"RESOLVER_TIMEOUT,default=3s" validate:"gt=0"`
	TrustedDeviceTTL time.Duration `env:"TRUSTED_DEVICE_TTL,default=0s" validate:"gte=0"`
}

// RiskLocation is the zone in which the normal-hours window is evaluated.
func (c SecurityConfig) RiskLocation() *time.Location {
	if c.RiskTimezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.RiskTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// DefaultSecurityConfig mirrors the env defaults for callers that do not load
// the environment (tests, embedded use).
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		SessionTTL:              24 * time.Hour,
		HealthCheckInterval:     60 * time.Second,
		RiskEscalationInterval:  5 * time.Minute,
		ActivityPersistInterval: 30 * time.Second,
		StoreTimeout:            5 * time.Second,
		NormalHoursStart:        6,
		NormalHoursEnd:          22,
		FailedAttemptsThreshold: 3,
		DormantDays:             30,
		MediumRiskFactors:       1,
		HighRiskFactors:         3,
		EventQueueSize:          256,
		ResolverTimeout:         3 * time.Second,
	}
}

type HTTPConfig struct {
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS"` // semicolon separated; empty allows none
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES,default=1048576" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
}

type DatabaseConfig struct {
	URI                string        `env:"MONGO_URI,default=mongodb://localhost:27017"`
	MaxPoolSize        uint64        `env:"MONGO_MAX_POOL_SIZE,default=100"`
	MinPoolSize        uint64        `env:"MONGO_MIN_POOL_SIZE,default=10" validate:"ltefield=MaxPoolSize"`
	MaxConnIdleTime    time.Duration `env:"MONGO_MAX_CONN_IDLE_TIME,default=60s"`
	DatabaseName       string        `env:"MONGO_DB,default=hrportal" validate:"required"`
	RetryWrites        bool          `env:"MONGO_RETRY_WRITES,default=true"`
	SessionsCollection string        `env:"SESSIONS_COLLECTION,default=sessions" validate:"required"`
	EventsCollection   string        `env:"SECURITY_EVENTS_COLLECTION,default=security_events" validate:"required"`
	IdentityCollection string        `env:"USERS_COLLECTION,default=users" validate:"required"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL"` // empty: in-memory trusted devices and revocation
}

type JWTConfig struct {
	SecretKey      string        `env:"JWT_SECRET_KEY" validate:"required,min=16"`
	Issuer         string        `env:"JWT_ISSUER,default=hrportal"`
	ExpirationTime time.Duration `env:"JWT_EXPIRATION_TIME,default=1h" validate:"gt=0"`
}

type LogConfig struct {
	Level        string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	Format       string `env:"LOG_FORMAT,default=json" validate:"oneof=json console"`
	AuditLogPath string `env:"AUDIT_LOG_PATH"` // empty: audit events only go to the event store
	MaxSizeMB    int    `env:"AUDIT_LOG_MAX_SIZE_MB,default=100" validate:"gt=0"`
	MaxBackups   int    `env:"AUDIT_LOG_MAX_BACKUPS,default=10" validate:"gte=0"`
	MaxAgeDays   int    `env:"AUDIT_LOG_MAX_AGE_DAYS,default=90" validate:"gte=0"`
}

type GeoConfig struct {
	ReverseGeocodeURL string `env:"REVERSE_GEOCODE_URL,default=https://api.bigdatacloud.net/data/reverse-geocode-client" validate:"url"`
	IPLookupURL       string `env:"IP_LOOKUP_URL,default=https://ipapi.co" validate:"url"`
}

// Load reads .env (if present) and the process environment into a validated
// Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Security.NormalHoursEnd <= cfg.Security.NormalHoursStart {
		return fmt.Errorf("invalid configuration: NORMAL_HOURS_END (%d) must be after NORMAL_HOURS_START (%d)",
			cfg.Security.NormalHoursEnd, cfg.Security.NormalHoursStart)
	}
	return nil
}

func (c *Config) IsTest() bool {
	return c.Env == "test"
}
