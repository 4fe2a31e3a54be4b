package config

import (
	"fmt"
	"os"
)

// Config is the process configuration read from the environment. Load fails
// fast on anything the server cannot run without.
type Config struct {
	Port      string
	DBUser    string
	DBPass    string
	DBHost    string
	DBPort    string
	DBName    string
	JWTSecret string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:      getenv("PORT", "8080"),
		DBUser:    getenv("DB_USER", "root"),
		DBPass:    os.Getenv("DB_PASS"),
		DBHost:    getenv("DB_HOST", "127.0.0.1"),
		DBPort:    getenv("DB_PORT", "3306"),
		DBName:    getenv("DB_NAME", "concessions"),
		JWTSecret: os.Getenv("JWT_SECRET"),
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// DSN builds the MySQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
