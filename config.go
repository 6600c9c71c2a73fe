package secrets

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends selectable with STORE
const (
	StoreFS    = "fs"
	StoreMongo = "mongo"
	StoreGorm  = "gorm"
	StoreGAE   = "gae"
)

// Config is the environment driven server configuration
type Config struct {
	SessionSecret   string        `env:"SECRET,required,notEmpty"`
	Port            int           `env:"PORT"              envDefault:"3000"`
	BaseURL         string        `env:"BASE_URL"          envDefault:"http://localhost:3000"`
	SessionLifetime time.Duration `env:"SESSION_LIFETIME"  envDefault:"24h"`
	CookieSecure    bool          `env:"COOKIE_SECURE"     envDefault:"false"`
	LogLevel        string        `env:"LOG_LEVEL"         envDefault:"info"`

	Store         string `env:"STORE"          envDefault:"fs"`
	DataDir       string `env:"DATA_DIR"       envDefault:"./data"`
	MongoURI      string `env:"MONGO_URI"      envDefault:"mongodb://127.0.0.1:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"userDB"`
	DatabaseDSN   string `env:"DATABASE_DSN"   envDefault:"secrets.db"`
	GAEProjectID  string `env:"GAE_PROJECT_ID"`
	GAENamespace  string `env:"GAE_NAMESPACE"`

	GoogleClientID       string `env:"CLIENT_ID"`
	GoogleClientSecret   string `env:"CLIENT_SECRET"`
	FacebookClientID     string `env:"APP_ID"`
	FacebookClientSecret string `env:"APP_SECRET"`

	PasswordMinLength int `env:"PASSWORD_MIN_LENGTH" envDefault:"1"`
}

// LoadConfig reads an optional .env file and then the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env tags cannot express
func (c *Config) Validate() error {
	switch c.Store {
	case StoreFS, StoreMongo, StoreGorm:
	case StoreGAE:
		if c.GAEProjectID == "" {
			return fmt.Errorf("GAE_PROJECT_ID is required when STORE=%s", StoreGAE)
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return fmt.Errorf("CLIENT_ID and CLIENT_SECRET must be set together")
	}
	if (c.FacebookClientID == "") != (c.FacebookClientSecret == "") {
		return fmt.Errorf("APP_ID and APP_SECRET must be set together")
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	return nil
}

// CallbackURL returns the OAuth callback for a provider
func (c *Config) CallbackURL(provider Provider) string {
	return fmt.Sprintf("%s/auth/%s/secrets", c.BaseURL, provider)
}

// SlogLevel parses LOG_LEVEL, falling back to info
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Addr is the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
