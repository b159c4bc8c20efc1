// Package config loads the server's environment-driven configuration,
// following the teacher's cmd/server/main.go convention of env-var-backed
// flags with sensible defaults, generalized to this server's DB URL
// grammar and AWS/SES-flavored external services. When IS_AWS is unset, a
// .env file is loaded first via github.com/joho/godotenv (the teacher has
// no .env story of its own; this is the idiomatic pack-wide convention
// for local development environment files).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env is the deployment environment, constrained to spec.md §6's set.
type Env string

const (
	EnvLocal   Env = "local"
	EnvDev     Env = "dev"
	EnvStaging Env = "staging"
	EnvProd    Env = "prod"
)

// Config is every environment-derived setting the server needs to boot.
type Config struct {
	DBDriver string
	DBDSN    string

	AWSSESSMTPURL      string
	AWSSESUsername     string
	AWSSESAccessKey    string
	AWSImageUploadKey  string
	AWSImageSecretKey  string
	AWSPhotographsBucket string

	AppNameVersion  string
	CurrEnv         Env
	SearchIndexPath string

	// EncryptionKey is padded/truncated to 32 bytes and fed to
	// db.InitEncryption. Not named in the external-interfaces list, but
	// required by the password-hash-at-rest mechanism the teacher's
	// EncryptedString type already implements.
	EncryptionKey string

	IsAWS bool
}

// Load reads the process environment into a Config, loading a .env file
// first unless IS_AWS is set (mirroring spec.md §6's exact rule).
func Load() (Config, error) {
	if os.Getenv("IS_AWS") == "" {
		// Best-effort: a missing .env file in production is not an error.
		_ = godotenv.Load()
	}

	dbDriver, dbDSN, err := resolveDBURL()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBDriver: dbDriver,
		DBDSN:    dbDSN,

		AWSSESSMTPURL:        os.Getenv("AWS_SES_SMTP_URL"),
		AWSSESUsername:       os.Getenv("AWS_SES_USERNAME"),
		AWSSESAccessKey:      os.Getenv("AWS_SES_ACCESS_KEY"),
		AWSImageUploadKey:    os.Getenv("AWS_IMAGE_UPLOAD_KEY"),
		AWSImageSecretKey:    os.Getenv("AWS_IMAGE_SECRET_KEY"),
		AWSPhotographsBucket: envOrDefault("AWS_PHOTOGRAPHS_BUCKET", "cyhdev-photographs"),

		AppNameVersion:  os.Getenv("APP_NAME_VERSION"),
		CurrEnv:         Env(envOrDefault("CURR_ENV", string(EnvProd))),
		SearchIndexPath: envOrDefault("SEARCH_INDEX_PATH", "./data/search_index"),
		EncryptionKey:   os.Getenv("ENCRYPTION_KEY"),

		IsAWS: os.Getenv("IS_AWS") != "",
	}

	switch cfg.CurrEnv {
	case EnvLocal, EnvDev, EnvStaging, EnvProd:
	default:
		return Config{}, fmt.Errorf("config: invalid CURR_ENV %q", cfg.CurrEnv)
	}

	return cfg, nil
}

var aliasedSchemes = map[string]string{
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite",
	"oracle":     "oracle",
	"mssql":      "mssql",
	"sqlserver":  "mssql",
}

// resolveDBURL implements spec.md §6's DB URL grammar: prefer DB_URL
// verbatim; otherwise assemble one from the discrete DB_HOST/DB_PORT/
// DB_USERNAME/DB_PASSWORD/DB_NAME variables. A host beginning with "/" is
// a Unix socket path, carried as a "host" query parameter with the port
// omitted, per the PostgreSQL convention the spec calls out explicitly.
func resolveDBURL() (driver string, dsn string, err error) {
	if raw := os.Getenv("DB_URL"); raw != "" {
		scheme, rest, ok := strings.Cut(raw, "://")
		if !ok {
			return "", "", fmt.Errorf("config: DB_URL missing scheme://")
		}
		canonical, ok := aliasedSchemes[strings.ToLower(scheme)]
		if !ok {
			return "", "", fmt.Errorf("config: unsupported DB_URL scheme %q", scheme)
		}
		return canonical, canonical + "://" + rest, nil
	}

	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	user := os.Getenv("DB_USERNAME")
	pass := os.Getenv("DB_PASSWORD")
	name := os.Getenv("DB_NAME")

	if host == "" || name == "" {
		return "", "", fmt.Errorf("config: no DB_URL and incomplete DB_HOST/DB_NAME")
	}

	if strings.HasPrefix(host, "/") {
		// Unix socket: postgres://user:pass@/db?host=/path
		dsn := fmt.Sprintf("postgres://%s:%s@/%s?host=%s", user, pass, name, host)
		return "postgres", dsn, nil
	}

	hostport := host
	if port != "" {
		hostport = fmt.Sprintf("%s:%s", host, port)
	}
	dsn = fmt.Sprintf("postgres://%s:%s@%s/%s", user, pass, hostport, name)
	return "postgres", dsn, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
