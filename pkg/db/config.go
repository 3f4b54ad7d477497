package db

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

// Config holds the Postgres connection settings.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// NewConfigFromEnv reads DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME and
// DB_SSLMODE.
func NewConfigFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Host:     os.Getenv("DB_HOST"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Name:     os.Getenv("DB_NAME"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the settings needed to connect are present.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "DB_HOST is required", nil, "")
	case c.User == "":
		return wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "DB_USER is required", nil, "")
	case c.Name == "":
		return wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "DB_NAME is required", nil, "")
	}
	return nil
}

// DSN returns the keyword/value connection string used by gorm.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

// URL returns the postgres:// URL used by the migrator.
func (c *Config) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// findProjectRoot looks for go.mod file to determine project root
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (go.mod)")
		}
		dir = parent
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
