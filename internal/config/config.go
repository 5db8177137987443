package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/kjannette/cryptostats-backend/internal/logging"
	"github.com/kjannette/cryptostats-backend/internal/models"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	// Server
	Port            int    `yaml:"port"`
	CORSAllowOrigin string `yaml:"cors_allow_origin"`

	// Storage
	StoreDriver     string `yaml:"store_driver"`
	DatabaseURL     string `yaml:"database_url"`
	DBHost          string `yaml:"db_host"`
	DBPort          int    `yaml:"db_port"`
	DBName          string `yaml:"db_name"`
	DBUser          string `yaml:"db_user"`
	DBPassword      string `yaml:"db_password"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`

	// Fetcher
	Coins                []string `yaml:"coins"`
	FetchSchedule        string   `yaml:"fetch_schedule"`
	FetchOnStartup       bool     `yaml:"fetch_on_startup"`
	CoinGeckoBaseURL     string   `yaml:"coingecko_base_url"`
	CoinGeckoAPIKey      string   `yaml:"coingecko_api_key"`
	CoinGeckoAPIKeyParam string   `yaml:"coingecko_api_key_param"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() *Config {
	return &Config{
		Port:                 3000,
		CORSAllowOrigin:      "*",
		StoreDriver:          DriverPostgres,
		DBHost:               "localhost",
		DBPort:               5432,
		DBName:               "cryptostats",
		MongoDatabase:        "cryptostats",
		MongoCollection:      "cryptos",
		Coins:                append([]string(nil), models.DefaultCoins...),
		FetchSchedule:        "0 */2 * * *",
		FetchOnStartup:       true,
		CoinGeckoBaseURL:     "https://api.coingecko.com/api/v3/simple/price",
		CoinGeckoAPIKeyParam: "x_cg_pro_api_key",
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load builds the config from defaults, then CONFIG_FILE (YAML) when set,
// then environment variables. A .env file in the working directory is
// loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envInt("PORT", c.Port)
	c.CORSAllowOrigin = envStr("CORS_ALLOW_ORIGIN", c.CORSAllowOrigin)

	c.StoreDriver = strings.ToLower(envStr("STORE_DRIVER", c.StoreDriver))
	c.DatabaseURL = envStr("DATABASE_URL", c.DatabaseURL)
	c.DBHost = envStr("DB_HOST", c.DBHost)
	c.DBPort = envInt("DB_PORT", c.DBPort)
	c.DBName = envStr("DB_NAME", c.DBName)
	c.DBUser = envStr("DB_USER", c.DBUser)
	c.DBPassword = envStr("DB_PASSWORD", c.DBPassword)
	c.MongoURI = envStr("MONGO_URI", c.MongoURI)
	c.MongoDatabase = envStr("MONGO_DATABASE", c.MongoDatabase)
	c.MongoCollection = envStr("MONGO_COLLECTION", c.MongoCollection)

	c.Coins = envList("COINS", c.Coins)
	c.FetchSchedule = envStr("FETCH_SCHEDULE", c.FetchSchedule)
	c.FetchOnStartup = envBool("FETCH_ON_STARTUP", c.FetchOnStartup)
	c.CoinGeckoBaseURL = envStr("COINGECKO_BASE_URL", c.CoinGeckoBaseURL)
	c.CoinGeckoAPIKey = envStr("COINGECKO_API_KEY", c.CoinGeckoAPIKey)
	c.CoinGeckoAPIKeyParam = envStr("COINGECKO_API_KEY_PARAM", c.CoinGeckoAPIKeyParam)

	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("LOG_FORMAT", c.LogFormat)
}

func (c *Config) Validate() error {
	var errs []string

	if len(c.Coins) == 0 {
		errs = append(errs, "COINS must list at least one coin")
	}
	if _, err := cron.ParseStandard(c.FetchSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("FETCH_SCHEDULE %q is not a valid cron expression: %v", c.FetchSchedule, err))
	}
	if c.CoinGeckoBaseURL == "" {
		errs = append(errs, "COINGECKO_BASE_URL is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT %d is out of range", c.Port))
	}

	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" && c.DBUser == "" {
			errs = append(errs, "DATABASE_URL or DB_USER is required for the postgres store")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, "MONGO_URI is required for the mongo store")
		}
	case DriverMemory:
		logging.For("config").Warn("STORE_DRIVER=memory - records are lost on restart")
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER %q is not one of postgres, mongo, memory", c.StoreDriver))
	}

	if c.CoinGeckoAPIKey == "" {
		logging.For("config").Warn("COINGECKO_API_KEY not set - requests go out unauthenticated")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	logging.For("config").WithFields(logrus.Fields{
		"port":          c.Port,
		"store":         c.StoreDriver,
		"coins":         strings.Join(c.Coins, ","),
		"schedule":      c.FetchSchedule,
		"fetchOnStart":  c.FetchOnStartup,
		"coingecko":     c.CoinGeckoBaseURL,
		"coingeckoKey":  boolLabel(c.CoinGeckoAPIKey != "", "configured", "not set"),
		"corsOrigin":    c.CORSAllowOrigin,
		"storeLocation": c.storeLocation(),
	}).Info("configuration loaded")
}

// DSN returns the Postgres connection string. DATABASE_URL wins when set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) storeLocation() string {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL != "" {
			return "DATABASE_URL"
		}
		return fmt.Sprintf("%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
	case DriverMongo:
		return fmt.Sprintf("%s.%s", c.MongoDatabase, c.MongoCollection)
	}
	return c.StoreDriver
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
