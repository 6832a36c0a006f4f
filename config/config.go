package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from defaults, then
// an optional YAML file named by PRICEWATCH_CONFIG, then environment variables.
type Config struct {
	StoreDriver string `yaml:"store_driver"`

	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     string `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	MySQLDSN   string `yaml:"mysql_dsn"`
	SQLitePath string `yaml:"sqlite_path"`

	Collector      string `yaml:"collector"`
	SerpAPIKey     string `yaml:"serpapi_key"`
	SerpAPIURL     string `yaml:"serpapi_url"`
	SearchQuery    string `yaml:"search_query"`
	MaxPages       int    `yaml:"max_pages"`
	MaxConcurrency int    `yaml:"max_concurrency"`
	RateLimitMs    int    `yaml:"rate_limit_ms"`
	MaxRetries     int    `yaml:"max_retries"`
	ChromeBin      string `yaml:"chrome_bin"`

	RawCSVPath string `yaml:"raw_csv_path"`
	ExportPath string `yaml:"export_path"`
	HTTPAddr   string `yaml:"http_addr"`
	LogLevel   string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		StoreDriver: "sqlite",

		PostgresHost:     "localhost",
		PostgresPort:     "5432",
		PostgresUser:     "pricewatch",
		PostgresPassword: "pricewatch",
		PostgresDB:       "laptop_prices",
		PostgresSSLMode:  "disable",

		SQLitePath: "./laptop_prices.db",

		Collector:      "serpapi",
		SerpAPIURL:     "https://serpapi.com/search",
		SearchQuery:    "laptop",
		MaxPages:       20,
		MaxConcurrency: 2,
		RateLimitMs:    1000,
		MaxRetries:     3,

		RawCSVPath: "./output/amazon_scrape_data.csv",
		ExportPath: "./output/laptop_prices.xlsx",
		HTTPAddr:   ":8080",
		LogLevel:   "info",
	}
}

// Load reads the .env file, the optional YAML file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := Default()
	if path := os.Getenv("PRICEWATCH_CONFIG"); path != "" {
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
		return fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.StoreDriver = getEnv("STORE_DRIVER", c.StoreDriver)

	c.PostgresHost = getEnv("POSTGRES_HOST", c.PostgresHost)
	c.PostgresPort = getEnv("POSTGRES_PORT", c.PostgresPort)
	c.PostgresUser = getEnv("POSTGRES_USER", c.PostgresUser)
	c.PostgresPassword = getEnv("POSTGRES_PASSWORD", c.PostgresPassword)
	c.PostgresDB = getEnv("POSTGRES_DB", c.PostgresDB)
	c.PostgresSSLMode = getEnv("POSTGRES_SSLMODE", c.PostgresSSLMode)

	c.MySQLDSN = getEnv("MYSQL_DSN", c.MySQLDSN)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)

	c.Collector = getEnv("COLLECTOR", c.Collector)
	c.SerpAPIKey = getEnv("SERPAPI_API_KEY", c.SerpAPIKey)
	c.SerpAPIURL = getEnv("SERPAPI_URL", c.SerpAPIURL)
	c.SearchQuery = getEnv("SEARCH_QUERY", c.SearchQuery)
	c.MaxPages = getEnvInt("MAX_PAGES", c.MaxPages)
	c.MaxConcurrency = getEnvInt("MAX_CONCURRENCY", c.MaxConcurrency)
	c.RateLimitMs = getEnvInt("RATE_LIMIT_MS", c.RateLimitMs)
	c.MaxRetries = getEnvInt("MAX_RETRIES", c.MaxRetries)
	c.ChromeBin = getEnv("CHROME_BIN", c.ChromeBin)

	c.RawCSVPath = getEnv("RAW_CSV_PATH", c.RawCSVPath)
	c.ExportPath = getEnv("EXPORT_PATH", c.ExportPath)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// StoreDSN returns the connection string for the configured store driver.
func (c *Config) StoreDSN() string {
	switch strings.ToLower(c.StoreDriver) {
	case "postgres", "postgresql":
		return c.PostgresDSN()
	case "mysql":
		return c.MySQLDSN
	default:
		return c.SQLitePath
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
