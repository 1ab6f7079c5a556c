package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strings"

    "github.com/joho/godotenv"
)

// Store modes selected by APP_STORE.
const (
    StoreMySQL  = "mysql"
    StoreMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Database settings are only required when the
// MySQL store is selected.
type Config struct {
    Env       string // application environment (e.g. "dev", "prod")
    Port      string // HTTP port to listen on
    Debug     bool   // verbose logging
    BaseURL   string // public origin used to build shareable links
    Store     string // "mysql" or "memory"
    Seed      bool   // seed demo users and listings into the memory store
    DBUser    string // database username
    DBPass    string // database password (optional)
    DBHost    string // database host address
    DBPort    string // database port number
    DBName    string // database name
    DBMigrate bool   // create the markups table on start-up
    JWTSecret string // secret used to verify JWTs
    SentryDSN string // optional sentry DSN for error reporting
    AMQPURL   string // RabbitMQ URL; empty disables event publishing
}

// LoadDotEnv loads variables from a .env file in the working directory when
// one exists.  Variables already present in the environment win.
func LoadDotEnv() {
    if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
        log.Printf("config: ignoring .env: %v", err)
    }
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    cfg := Config{
        Env:       envStr("APP_ENV", "dev"),
        Port:      must("APP_PORT"),
        Debug:     envBool("APP_DEBUG", false),
        BaseURL:   strings.TrimRight(envStr("APP_BASE_URL", "http://localhost"), "/"),
        Store:     strings.ToLower(envStr("APP_STORE", StoreMySQL)),
        Seed:      envBool("APP_SEED", false),
        JWTSecret: must("JWT_SECRET"),
        SentryDSN: os.Getenv("SENTRY_DSN"),
        AMQPURL:   amqpURL(),
    }
    if cfg.Store == StoreMySQL {
        cfg.DBUser = must("DB_USER")
        cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
        cfg.DBMigrate = envBool("DB_MIGRATE", false)
    }
    return cfg
}

// amqpURL reads RABBITMQ_URL with AMQP_URL as a fallback.
func amqpURL() string {
    if v := os.Getenv("RABBITMQ_URL"); v != "" {
        return v
    }
    return os.Getenv("AMQP_URL")
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
