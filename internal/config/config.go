package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strings"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds the process-level settings. Engine policy lives in
// ReservationPolicy; background jobs in SchedulerConfig.
type Config struct {
	Env         string // application environment (e.g. "dev", "prod")
	Port        string // HTTP port to listen on
	StoreDriver string // "mysql" (default) or "memory"
	DBUser      string // database username
	DBPass      string // database password (optional)
	DBHost      string // database host address
	DBPort      string // database port number
	DBName      string // database name
	AutoMigrate bool   // apply embedded migrations on startup
	JWTSecret   string // secret used to verify access tokens
	LogDir      string // directory for JSON log files; empty disables file output
	SeedDemo    bool   // load the demo network into the memory store on startup
}

// Load reads configuration values from environment variables and returns a
// Config. Missing required variables terminate the process. Database
// variables are only required when the MySQL store is selected.
func Load() Config {
	cfg := Config{
		Env:         must("APP_ENV"),
		Port:        must("APP_PORT"),
		StoreDriver: strings.ToLower(envStr("STORE_DRIVER", StoreMySQL)),
		JWTSecret:   must("JWT_SECRET"),
		LogDir:      os.Getenv("LOG_DIR"),
		AutoMigrate: envBool("DB_AUTO_MIGRATE", true),
		SeedDemo:    envBool("SEED_DEMO", false),
	}
	switch cfg.StoreDriver {
	case StoreMySQL:
		loadDatabase(&cfg)
	case StoreMemory:
	default:
		log.Fatalf("invalid STORE_DRIVER: %q", cfg.StoreDriver)
	}
	return cfg
}

// LoadDatabase reads only the DB_* variables, for tools that talk to MySQL
// without serving HTTP.
func LoadDatabase() Config {
	cfg := Config{StoreDriver: StoreMySQL, AutoMigrate: envBool("DB_AUTO_MIGRATE", true)}
	loadDatabase(&cfg)
	return cfg
}

func loadDatabase(cfg *Config) {
	cfg.DBUser = must("DB_USER")
	cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
	cfg.DBHost = must("DB_HOST")
	cfg.DBPort = must("DB_PORT")
	cfg.DBName = must("DB_NAME")
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
