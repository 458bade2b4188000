package config

import (
	"fmt"
	"os"
)

// Config holds application configuration
type Config struct {
	Port      string
	Storage   string // "json" or "postgres"
	DataDir   string
	DBConn    string
	LogLevel  string
	JWTSecret string

	RatesURL string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	AdminUsername string
	AdminPassword string

	CollectorSpec string
	LatePenalty   string
	BaseRate      string

	GeneratorSeed string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Storage:       getEnv("STORAGE", "json"),
		DataDir:       getEnv("DATA_DIR", "data"),
		DBConn:        getEnv("DB_CONN", "host=localhost port=5432 user=nuvana password=nuvana dbname=bank sslmode=disable"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:     getEnv("JWT_SECRET", "secret"),
		RatesURL:      getEnv("RATES_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SenderEmail:   getEnv("SENDER_EMAIL", "noreply@nuvana.bank"),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),
		CollectorSpec: getEnv("COLLECTOR_SPEC", "0 3 * * *"),
		LatePenalty:   getEnv("LATE_PENALTY", "100"),
		BaseRate:      getEnv("BASE_RATE", "6.5"),
		GeneratorSeed: getEnv("GENERATOR_SEED", ""),
	}

	if cfg.Storage != "json" && cfg.Storage != "postgres" {
		return nil, fmt.Errorf("STORAGE must be json or postgres, got %q", cfg.Storage)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Storage == "postgres" && cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.Storage == "json" && cfg.DataDir == "" {
		return nil, fmt.Errorf("DATA_DIR is required")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
