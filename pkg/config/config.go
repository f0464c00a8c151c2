package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	PartnerJWT   PartnerJWTConfig
	FeatureFlags FeatureFlagsConfig
	Disbursement DisbursementConfig
	Ayoconnect   AyoconnectConfig
	Xfers        XfersConfig
	Faspay       FaspayConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DANAFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"DANAFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DANAFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DANAFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DANAFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DANAFLOW_DB_DSN"`
	Driver string `envconfig:"DANAFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DANAFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"DANAFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DANAFLOW_DB_USER"`
	LegacyPassword string `envconfig:"DANAFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"DANAFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"DANAFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DANAFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DANAFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DANAFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DANAFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DANAFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DANAFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"DANAFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"DANAFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DANAFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DANAFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DANAFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DANAFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DANAFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PartnerJWTConfig authenticates inbound partner/vendor callback requests.
type PartnerJWTConfig struct {
	Secret string `envconfig:"DANAFLOW_PARTNER_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"DANAFLOW_PARTNER_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite       bool `envconfig:"DANAFLOW_USE_SQLITE" default:"false"`
	AutoMigrate     bool `envconfig:"DANAFLOW_AUTO_MIGRATE" default:"false"`
	FailoverEnabled bool `envconfig:"DANAFLOW_FEATURE_DISBURSEMENT_FAILOVER" default:"false"`
}

// DisbursementConfig carries the thresholds the state machine and scheduler
// read. A zero value disables the corresponding behavior.
type DisbursementConfig struct {
	BeneficiaryRetryLimit      int           `envconfig:"DANAFLOW_BENEFICIARY_RETRY_LIMIT" default:"3"`
	ReconciliationTimeoutHours int           `envconfig:"DANAFLOW_RECONCILIATION_TIMEOUT_HOURS" default:"2"`
	MinBalanceThreshold        string        `envconfig:"DANAFLOW_MIN_BALANCE_THRESHOLD"`
	JailDays                   int           `envconfig:"DANAFLOW_JAIL_DAYS" default:"0"`
	VendorHTTPTimeout          time.Duration `envconfig:"DANAFLOW_VENDOR_HTTP_TIMEOUT" default:"30s"`
	ReconInterval              time.Duration `envconfig:"DANAFLOW_RECON_INTERVAL" default:"15m"`
}

// ReconciliationTimeout returns the age past which an in-flight attempt is
// actively reconciled.
func (d DisbursementConfig) ReconciliationTimeout() time.Duration {
	if d.ReconciliationTimeoutHours <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(d.ReconciliationTimeoutHours) * time.Hour
}

// JailPeriod returns the cool-off window after a failed attempt during which
// a loan is not re-triggered. Zero disables jailing.
func (d DisbursementConfig) JailPeriod() time.Duration {
	if d.JailDays <= 0 {
		return 0
	}
	return time.Duration(d.JailDays) * 24 * time.Hour
}

// MinBalance parses the configured threshold. The second return reports
// whether a threshold is configured at all; absence means the balance sweep
// skips silently.
func (d DisbursementConfig) MinBalance() (decimal.Decimal, bool) {
	raw := strings.TrimSpace(d.MinBalanceThreshold)
	if raw == "" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

type AyoconnectConfig struct {
	BaseURL      string `envconfig:"DANAFLOW_AYOCONNECT_BASE_URL"`
	ClientID     string `envconfig:"DANAFLOW_AYOCONNECT_CLIENT_ID"`
	ClientSecret string `envconfig:"DANAFLOW_AYOCONNECT_CLIENT_SECRET"`
	MerchantCode string `envconfig:"DANAFLOW_AYOCONNECT_MERCHANT_CODE"`
}

// Enabled reports whether the vendor is configured for this deployment.
func (a AyoconnectConfig) Enabled() bool {
	return strings.TrimSpace(a.BaseURL) != "" && strings.TrimSpace(a.ClientID) != ""
}

type XfersConfig struct {
	BaseURL string `envconfig:"DANAFLOW_XFERS_BASE_URL"`
	APIKey  string `envconfig:"DANAFLOW_XFERS_API_KEY"`
}

func (x XfersConfig) Enabled() bool {
	return strings.TrimSpace(x.BaseURL) != "" && strings.TrimSpace(x.APIKey) != ""
}

type FaspayConfig struct {
	BaseURL  string `envconfig:"DANAFLOW_FASPAY_BASE_URL"`
	UserID   string `envconfig:"DANAFLOW_FASPAY_USER_ID"`
	Password string `envconfig:"DANAFLOW_FASPAY_PASSWORD"`
}

func (f FaspayConfig) Enabled() bool {
	return strings.TrimSpace(f.BaseURL) != "" && strings.TrimSpace(f.UserID) != ""
}

type EventingConfig struct {
	CallbackIdempotencyTTL time.Duration `envconfig:"DANAFLOW_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DANAFLOW_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"DANAFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DANAFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DisbursementTopic        string `envconfig:"DANAFLOW_PUBSUB_DISBURSEMENT_TOPIC" default:"df-disbursement-events"`
	DisbursementSubscription string `envconfig:"DANAFLOW_PUBSUB_DISBURSEMENT_SUBSCRIPTION" required:"true"`
	OpsAlertTopic            string `envconfig:"DANAFLOW_PUBSUB_OPS_ALERT_TOPIC" default:"df-ops-alerts"`
	OpsAlertSubscription     string `envconfig:"DANAFLOW_PUBSUB_OPS_ALERT_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DANAFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DANAFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DANAFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"DANAFLOW_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
