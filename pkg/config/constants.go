package config

const (
	EnvPrefix = "SIMCHECK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv     = "SIMCHECK_APP_ENV"
	EnvPort       = "SIMCHECK_APP_PORT"
	EnvDBDSN      = "SIMCHECK_DB_DSN"
	EnvDBHost     = "SIMCHECK_DB_HOST"
	EnvDBUser     = "SIMCHECK_DB_USER"
	EnvDBName     = "SIMCHECK_DB_NAME"
	EnvRedisURL   = "SIMCHECK_REDIS_URL"
	EnvJWTSecret  = "SIMCHECK_JWT_SECRET"
	EnvBucket     = "SIMCHECK_STORAGE_BUCKET"
	EnvPepper     = "SIMCHECK_TOKEN_PEPPER"
	EnvLeaseDur   = "SIMCHECK_EXTENSION_LEASE_DURATION"
	EnvWarmupBase = "SIMCHECK_WARMUP_BASE_LIMIT"
	EnvAgentURL   = "SIMCHECK_AGENT_API_BASE_URL"
	EnvAgentToken = "SIMCHECK_AGENT_TOKEN"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
