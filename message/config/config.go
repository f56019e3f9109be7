package config

import (
	"os"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        int
	DatabaseDSN string
	RedisAddr   string
	RedisPass   string
	TokenSecret string
}

var CorsConfig = cors.Config{
	AllowOrigins:     []string{"http://localhost:8080"}, //跨域
	AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
	AllowHeaders:     []string{"*"},
	ExposeHeaders:    []string{"X-My-Custom-Header"},
	AllowCredentials: true,
}

func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Port:        envInt("MESSAGE_PORT", 10008),
		DatabaseDSN: env("DATABASE_DSN", "user=skillconnect password=12345678 dbname=skillconnect sslmode=disable"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		TokenSecret: env("TOKEN_SECRET", "dev-secret"),
	}
}

// Addr 返回监听地址
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func env(key, fallback string) string {
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
