package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "KRISHI_CONFIG"

// Store drivers accepted in store.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds every setting the server needs.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	LLM       LLMConfig       `yaml:"llm"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// StoreConfig selects the persistence backend.  DatabaseURL is used by the
// sql drivers, MongoURL and DBName by mongo.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"databaseUrl"`
	MongoURL    string `yaml:"mongoUrl"`
	DBName      string `yaml:"dbName"`
}

// LLMConfig describes how to reach the chat completion API.
type LLMConfig struct {
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// RateLimitConfig bounds requests per client IP.  RPS <= 0 disables it, as
// does enabled: false in the config file.
type RateLimitConfig struct {
	Enabled *bool   `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// Load reads .env (if present), then the YAML file named by KRISHI_CONFIG
// (if set), then applies environment overrides and validates the result.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path := os.Getenv(configPathEnv); path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = mergeConfig(cfg, fileCfg)
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit.Enabled != nil && !*cfg.RateLimit.Enabled {
		cfg.RateLimit.RPS = 0
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DatabaseURL = v
	}
	if v := os.Getenv("MONGO_URL"); v != "" {
		c.Store.MongoURL = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Store.DBName = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL_CHAT"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: LLM_TIMEOUT: %w", err)
		}
		c.LLM.Timeout = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: RATE_LIMIT_RPS: %w", err)
		}
		c.RateLimit.RPS = rps
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: RATE_LIMIT_BURST: %w", err)
		}
		c.RateLimit.Burst = burst
	}
	return nil
}

// Validate checks that the selected store has what it needs to connect.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("config: store.databaseUrl is required for %s", c.Store.Driver)
		}
	case DriverMongo:
		if c.Store.MongoURL == "" || c.Store.DBName == "" {
			return errors.New("config: store.mongoUrl and store.dbName are required for mongo")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Server.Port == "" {
		return errors.New("config: server.port is required")
	}
	return nil
}

func mergeConfig(base, override Config) Config {
	if override.Server.Port != "" {
		base.Server.Port = override.Server.Port
	}
	if len(override.Server.CORSOrigins) > 0 {
		base.Server.CORSOrigins = override.Server.CORSOrigins
	}
	if override.Server.ShutdownTimeout > 0 {
		base.Server.ShutdownTimeout = override.Server.ShutdownTimeout
	}

	if override.Store.Driver != "" {
		base.Store.Driver = strings.ToLower(override.Store.Driver)
	}
	if override.Store.DatabaseURL != "" {
		base.Store.DatabaseURL = override.Store.DatabaseURL
	}
	if override.Store.MongoURL != "" {
		base.Store.MongoURL = override.Store.MongoURL
	}
	if override.Store.DBName != "" {
		base.Store.DBName = override.Store.DBName
	}

	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.BaseURL != "" {
		base.LLM.BaseURL = override.LLM.BaseURL
	}
	if override.LLM.Timeout > 0 {
		base.LLM.Timeout = override.LLM.Timeout
	}

	if override.Log.Level != "" {
		base.Log.Level = override.Log.Level
	}

	if override.RateLimit.Enabled != nil {
		base.RateLimit.Enabled = override.RateLimit.Enabled
	}
	if override.RateLimit.RPS != 0 {
		base.RateLimit.RPS = override.RateLimit.RPS
	}
	if override.RateLimit.Burst != 0 {
		base.RateLimit.Burst = override.RateLimit.Burst
	}
	return base
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8001",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:      DriverSQLite,
			DatabaseURL: "file:krishi.db?_pragma=busy_timeout(5000)",
			DBName:      "krishi_mitra",
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Log:       LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{RPS: 10, Burst: 20},
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
