package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings" // strings normalizes domain values
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for durations and costs.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // platform (shared) schema name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes (default 24h)
	RefreshTTLDays int    // refresh token time-to-live in days (default 7)
	ResetTTLMin    int    // password reset token time-to-live in minutes (default 60)
	BcryptCost     int    // bcrypt cost for password hashing
	BaseDomain     string // apex domain tenants hang off (e.g. "fieldserve.io")
	ExecSubdomain  string // subdomain of the platform-admin portal (default "exec")
	EnforceTenant  bool   // when true, access tokens must match the resolved tenant
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
//
// BASE_DOMAIN is required everywhere except APP_ENV=dev: tenant resolution
// without a configured base domain relies on a label-counting heuristic that
// is only safe for local hostnames, so non-dev boots fail fast instead.
func Load() Config {
	cfg := Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"), // empty allowed
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   intOr("ACCESS_TOKEN_TTL_MIN", 1440),
		RefreshTTLDays: intOr("REFRESH_TOKEN_TTL_DAYS", 7),
		ResetTTLMin:    intOr("RESET_TOKEN_TTL_MIN", 60),
		BcryptCost:     mustInt("BCRYPT_COST"),
		BaseDomain:     strings.ToLower(strings.TrimSpace(os.Getenv("BASE_DOMAIN"))),
		ExecSubdomain:  strOr("EXEC_SUBDOMAIN", "exec"),
		EnforceTenant:  boolOr("ENFORCE_TENANT_MATCH", false),
	}
	if cfg.BaseDomain == "" && cfg.Env != "dev" {
		log.Fatalf("BASE_DOMAIN is required when APP_ENV=%s", cfg.Env)
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// intOr reads an optional integer variable, falling back to a default.
func intOr(key string, d int) int {
	v := os.Getenv(key)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}

// strOr reads an optional string variable, falling back to a default.
func strOr(key, d string) string {
	if v := os.Getenv(key); v != "" {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return d
}

// boolOr reads an optional boolean variable, falling back to a default.
func boolOr(key string, d bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	case "0", "false", "FALSE", "False", "no", "off":
		return false
	}
	return d
}
