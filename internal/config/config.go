package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr  string
	DatabaseURL string

	TokenAuthSecret   string
	GithubTokenSecret string

	GithubAPIBaseURL string
	GithubTimeout    time.Duration

	SMTP       SMTPConfig
	DigestCron string

	ClientOrigin string
}

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// Configured reports whether outbound mail can be sent at all.
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.Port != 0 && s.User != "" && s.Pass != "" && s.From != ""
}

// Load reads configuration from the environment, loading .env first if
// present. Secrets are required; everything else has a default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddr:       getEnv("SERVER_ADDR", ":8080"),
		GithubAPIBaseURL: getEnv("GITHUB_API_BASE_URL", "https://api.github.com"),
		GithubTimeout:    10 * time.Second,
		DigestCron:       getEnv("DIGEST_CRON", "0 9 * * *"),
		ClientOrigin:     getEnv("CLIENT_ORIGIN", "*"),
		SMTP: SMTPConfig{
			Host: os.Getenv("SMTP_HOST"),
			Port: getEnvInt("SMTP_PORT", 0),
			User: os.Getenv("SMTP_USER"),
			Pass: os.Getenv("SMTP_PASS"),
			From: os.Getenv("SMTP_FROM"),
		},
	}

	var err error
	if cfg.DatabaseURL, err = requireEnv("DATABASE_URL"); err != nil {
		return nil, err
	}
	if cfg.TokenAuthSecret, err = requireEnv("TOKEN_AUTH_SECRET"); err != nil {
		return nil, err
	}
	if cfg.GithubTokenSecret, err = requireEnv("GITHUB_TOKEN_SECRET"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return defaultValue
	}
	return n
}

func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("environment variable %s is required but missing", key)
	}
	return value, nil
}
