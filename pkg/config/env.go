package config

const (
	EnvPrefix = "MINIERP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "MINIERP_APP_ENV"
	EnvPort         = "MINIERP_APP_PORT"
	EnvLogLevel     = "MINIERP_LOG_LEVEL"
	EnvLogWarnStack = "MINIERP_LOG_WARN_STACK"

	EnvBackendBaseURL = "MINIERP_BACKEND_BASE_URL"
	EnvBackendTimeout = "MINIERP_BACKEND_TIMEOUT"

	EnvStateBackend = "MINIERP_STATE_BACKEND"
	EnvStateTTL     = "MINIERP_STATE_TTL"
	EnvStateSealKey = "MINIERP_STATE_SEAL_KEY"

	EnvDBDSN         = "MINIERP_DB_DSN"
	EnvDBDriver      = "MINIERP_DB_DRIVER"
	EnvDBAutoMigrate = "MINIERP_DB_AUTO_MIGRATE"

	EnvRedisURL  = "MINIERP_REDIS_URL"
	EnvRedisAddr = "MINIERP_REDIS_ADDR"

	EnvConsoleCookieName   = "MINIERP_CONSOLE_COOKIE_NAME"
	EnvConsoleCookieSecure = "MINIERP_CONSOLE_COOKIE_SECURE"
	EnvConsoleCORSOrigins  = "MINIERP_CONSOLE_CORS_ORIGINS"

	EnvJobsPurgeInterval = "MINIERP_JOBS_PURGE_INTERVAL"
	EnvJobsEvictInterval = "MINIERP_JOBS_EVICT_INTERVAL"
	EnvJobsConsoleIdle   = "MINIERP_JOBS_CONSOLE_IDLE"
)

const (
	StateBackendSQL   = "sql"
	StateBackendRedis = "redis"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)
