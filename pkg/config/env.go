package config

// EnvPrefix is handed to envconfig; every field below carries its full variable name.
const EnvPrefix = "ORDERFLOW"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "ORDERFLOW_APP_ENV"
	EnvPort     = "ORDERFLOW_APP_PORT"
	EnvLogLevel = "ORDERFLOW_LOG_LEVEL"

	EnvDBDSN      = "ORDERFLOW_DB_DSN"
	EnvDBHost     = "ORDERFLOW_DB_HOST"
	EnvDBUser     = "ORDERFLOW_DB_USER"
	EnvDBName     = "ORDERFLOW_DB_NAME"
	EnvRedisURL   = "ORDERFLOW_REDIS_URL"
	EnvUseSQLite  = "ORDERFLOW_USE_SQLITE"
	EnvSQLitePath = "ORDERFLOW_SQLITE_PATH"

	EnvAdminFeeBPS   = "ORDERFLOW_ADMIN_FEE_BPS"
	EnvSplitPolicy   = "ORDERFLOW_SPLIT_POLICY"
	EnvRevenueTZ     = "ORDERFLOW_REVENUE_TIMEZONE"
	EnvGCPProjectID  = "ORDERFLOW_GCP_PROJECT_ID"
	EnvGCSBucket     = "ORDERFLOW_GCS_BUCKET_NAME"
	EnvGCSReadExpiry = "ORDERFLOW_GCS_DOWNLOAD_URL_EXPIRY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
