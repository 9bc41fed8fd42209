package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/pkg/enums"
)

const (
	EnvPrefix = "POS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	EnvAppEnv           = "POS_APP_ENV"
	EnvPort             = "POS_APP_PORT"
	EnvRegisterID       = "POS_REGISTER_ID"
	EnvDBDriver         = "POS_DB_DRIVER"
	EnvDBDSN            = "POS_DB_DSN"
	EnvJWTSecret        = "POS_JWT_SECRET"
	EnvLedgerBaseURL    = "POS_LEDGER_BASE_URL"
	EnvBalanceEpsilon   = "POS_CHECKOUT_BALANCE_EPSILON"
	EnvCurrency         = "POS_CHECKOUT_CURRENCY"
	EnvOutboxAttempts   = "POS_OUTBOX_MAX_ATTEMPTS"
	EnvHeldCartMaxAge   = "POS_SCHEDULER_HELD_CART_MAX_AGE"
	EnvStubCardTerminal = "POS_STUB_CARD_TERMINAL"
)

type Config struct {
	App          AppConfig
	Register     RegisterConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Checkout     CheckoutConfig
	Outbox       OutboxConfig
	Ledger       LedgerConfig
	Square       SquareConfig
	Printer      PrinterConfig
	Scheduler    SchedulerConfig
	LedgerSim    LedgerSimConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if err := c.DB.validate(); err != nil {
		return err
	}
	if c.Checkout.BalanceEpsilon.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvBalanceEpsilon)
	}
	currency, err := enums.ParseCurrency(string(c.Checkout.Currency))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvCurrency, err)
	}
	c.Checkout.Currency = currency
	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvOutboxAttempts)
	}
	if c.FeatureFlags.StubCardTerminal && !c.App.IsDev() {
		return fmt.Errorf("%s is only allowed when %s=%s", EnvStubCardTerminal, EnvAppEnv, AppEnvDev)
	}
	if c.Scheduler.HeldCartMaxAge < 0 {
		return fmt.Errorf("%s must not be negative", EnvHeldCartMaxAge)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"POS_APP_ENV" required:"true"`
	Port         string `envconfig:"POS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"POS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// RegisterConfig identifies the physical till this process drives.
type RegisterConfig struct {
	ID            string `envconfig:"POS_REGISTER_ID" required:"true"`
	LocationID    string `envconfig:"POS_REGISTER_LOCATION_ID" default:"main"`
	ReceiptPrefix string `envconfig:"POS_REGISTER_RECEIPT_PREFIX" default:"R"`
	StoreName     string `envconfig:"POS_REGISTER_STORE_NAME" default:"Store"`
}

type DBConfig struct {
	Driver string `envconfig:"POS_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"POS_DB_DSN" default:"file:pos.db?_busy_timeout=5000&_journal_mode=WAL"`

	MaxOpenConns    int           `envconfig:"POS_DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"POS_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"POS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) validate() error {
	switch strings.ToLower(db.Driver) {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvDBDriver, DriverSQLite, DriverPostgres, db.Driver)
	}
	if strings.TrimSpace(db.DSN) == "" {
		return fmt.Errorf("%s is required", EnvDBDSN)
	}
	return nil
}

// RedisConfig is optional on a register; an empty URL disables redis-backed helpers.
type RedisConfig struct {
	URL          string        `envconfig:"POS_REDIS_URL"`
	Address      string        `envconfig:"POS_REDIS_ADDR"`
	Password     string        `envconfig:"POS_REDIS_PASSWORD"`
	DB           int           `envconfig:"POS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POS_REDIS_POOL_SIZE" default:"5"`
	MinIdleConns int           `envconfig:"POS_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"POS_REDIS_DIAL_TIMEOUT" default:"2s"`
	ReadTimeout  time.Duration `envconfig:"POS_REDIS_READ_TIMEOUT" default:"2s"`
	WriteTimeout time.Duration `envconfig:"POS_REDIS_WRITE_TIMEOUT" default:"2s"`
}

func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"POS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"POS_JWT_ISSUER" default:"pos-register"`
	ExpirationMinutes int    `envconfig:"POS_JWT_EXPIRATION_MINUTES" default:"720"`
}

func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"POS_ARGON_MEMORY_KB" default:"19456"`
	ArgonTime        int `envconfig:"POS_ARGON_TIME" default:"2"`
	ArgonParallelism int `envconfig:"POS_ARGON_PARALLELISM" default:"1"`
	ArgonSaltLen     int `envconfig:"POS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"POS_ARGON_KEY_LEN" default:"32"`
}

type CheckoutConfig struct {
	BalanceEpsilon   decimal.Decimal `envconfig:"POS_CHECKOUT_BALANCE_EPSILON" default:"0.01"`
	Currency         enums.Currency  `envconfig:"POS_CHECKOUT_CURRENCY" default:"USD"`
	OpenDrawerOnCash bool            `envconfig:"POS_CHECKOUT_OPEN_DRAWER_ON_CASH" default:"true"`
}

type OutboxConfig struct {
	BatchSize    int           `envconfig:"POS_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval time.Duration `envconfig:"POS_OUTBOX_POLL_INTERVAL" default:"30s"`
	PushTimeout  time.Duration `envconfig:"POS_OUTBOX_PUSH_TIMEOUT" default:"10s"`
	MaxAttempts  int           `envconfig:"POS_OUTBOX_MAX_ATTEMPTS" default:"5"`
}

type LedgerConfig struct {
	BaseURL string        `envconfig:"POS_LEDGER_BASE_URL" default:"http://localhost:8090"`
	APIKey  string        `envconfig:"POS_LEDGER_API_KEY"`
	Timeout time.Duration `envconfig:"POS_LEDGER_TIMEOUT" default:"10s"`
}

// SquareConfig enables the card terminal; without an access token card tenders are refused.
type SquareConfig struct {
	AccessToken string `envconfig:"POS_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"POS_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"POS_SQUARE_LOCATION_ID"`
	SourceID    string `envconfig:"POS_SQUARE_SOURCE_ID" default:"cnon:card-nonce-ok"`
}

func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type PrinterConfig struct {
	Kind    string        `envconfig:"POS_PRINTER_KIND" default:"log"`
	Address string        `envconfig:"POS_PRINTER_ADDRESS"`
	Width   int           `envconfig:"POS_PRINTER_WIDTH" default:"42"`
	Timeout time.Duration `envconfig:"POS_PRINTER_TIMEOUT" default:"5s"`
}

// SchedulerConfig drives maintenance jobs. A zero HeldCartMaxAge disables the
// stale held cart purge, keeping held carts until an operator recalls or
// discards them.
type SchedulerConfig struct {
	Interval       time.Duration `envconfig:"POS_SCHEDULER_INTERVAL" default:"15s"`
	LockTTL        time.Duration `envconfig:"POS_SCHEDULER_LOCK_TTL" default:"1m"`
	HeldCartMaxAge time.Duration `envconfig:"POS_SCHEDULER_HELD_CART_MAX_AGE" default:"0s"`
	ProbeTimeout   time.Duration `envconfig:"POS_SCHEDULER_PROBE_TIMEOUT" default:"3s"`
}

// LedgerSimConfig configures the reference ledger server used in development.
type LedgerSimConfig struct {
	Port           string        `envconfig:"POS_LEDGER_SIM_PORT" default:"8090"`
	DBDriver       string        `envconfig:"POS_LEDGER_SIM_DB_DRIVER" default:"sqlite"`
	DBDSN          string        `envconfig:"POS_LEDGER_SIM_DB_DSN" default:"file:ledger.db?_busy_timeout=5000"`
	APIKey         string        `envconfig:"POS_LEDGER_SIM_API_KEY"`
	ClaimTTL       time.Duration `envconfig:"POS_LEDGER_SIM_CLAIM_TTL" default:"30s"`
	LogLevel       string        `envconfig:"POS_LOG_LEVEL" default:"info"`
}

// DB returns the simulator's database settings.
func (l LedgerSimConfig) DB() DBConfig {
	return DBConfig{Driver: l.DBDriver, DSN: l.DBDSN}
}

// SimConfig is everything cmd/ledger-sim reads. Register settings are not
// required, so the simulator can run on a machine with no register env.
type SimConfig struct {
	LedgerSim LedgerSimConfig
	Redis     RedisConfig
}

func LoadLedgerSim() (*SimConfig, error) {
	var cfg SimConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing ledger sim config: %w", err)
	}
	if err := cfg.LedgerSim.DB().validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FeatureFlagsConfig toggles optional behavior. StubCardTerminal approves every
// card charge and is only accepted in dev.
type FeatureFlagsConfig struct {
	AutoMigrate      bool `envconfig:"POS_AUTO_MIGRATE" default:"true"`
	RequireAuth      bool `envconfig:"POS_REQUIRE_AUTH" default:"true"`
	StubCardTerminal bool `envconfig:"POS_STUB_CARD_TERMINAL" default:"false"`
}
