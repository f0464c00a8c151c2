package config

// EnvPrefix namespaces every environment variable consumed by the platform.
const EnvPrefix = "DANAFLOW"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Canonical environment variable names, shared with config tests.
const (
	EnvAppEnv   = "DANAFLOW_APP_ENV"
	EnvPort     = "DANAFLOW_APP_PORT"
	EnvDBDSN    = "DANAFLOW_DB_DSN"
	EnvDBHost   = "DANAFLOW_DB_HOST"
	EnvDBUser   = "DANAFLOW_DB_USER"
	EnvDBName   = "DANAFLOW_DB_NAME"
	EnvRedisURL = "DANAFLOW_REDIS_URL"

	EnvPartnerJWTSecret = "DANAFLOW_PARTNER_JWT_SECRET"
	EnvPartnerJWTIssuer = "DANAFLOW_PARTNER_JWT_ISSUER"

	EnvGCPProjectID = "DANAFLOW_GCP_PROJECT_ID"

	EnvAyoconnectBaseURL      = "DANAFLOW_AYOCONNECT_BASE_URL"
	EnvAyoconnectClientID     = "DANAFLOW_AYOCONNECT_CLIENT_ID"
	EnvAyoconnectClientSecret = "DANAFLOW_AYOCONNECT_CLIENT_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
