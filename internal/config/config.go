// Package config 配置
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// MinSecretLength 鉴权密钥最小长度
const MinSecretLength = 32

// 已知的开发占位密钥，禁止带入生产
var insecureDevSecrets = map[string]struct{}{
	"dev-auth-token-secret-32-bytes-minimum": {},
}

// Config 服务配置
type Config struct {
	// 服务
	ServiceName string
	AppEnv      string
	HTTPPort    int

	// 品种（单一品种引擎）
	Pair string

	// 鉴权
	AuthTokenSecret string
	AuthTokenTTL    time.Duration
	AuthUsername    string
	AuthPassword    string

	// Redis（可选；为空则不启用事件发布）
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Streams
	EventStream string

	// 指标端点访问令牌（可选）
	MetricsToken string
}

// Load 加载配置
func Load() *Config {
	return &Config{
		ServiceName: getEnv("SERVICE_NAME", "orderbook"),
		AppEnv:      getEnv("APP_ENV", "dev"),
		HTTPPort:    getEnvInt("HTTP_PORT", 8080),

		Pair: getEnv("PAIR", "BTCZAR"),

		AuthTokenSecret: getEnv("AUTH_TOKEN_SECRET", "dev-auth-token-secret-32-bytes-minimum"),
		AuthTokenTTL:    getEnvDuration("AUTH_TOKEN_TTL", time.Hour),
		AuthUsername:    getEnv("AUTH_USERNAME", "trader"),
		AuthPassword:    getEnv("AUTH_PASSWORD", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		EventStream: getEnv("EVENT_STREAM", "orderbook:events"),

		MetricsToken: getEnv("METRICS_TOKEN", ""),
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT: %d", c.HTTPPort)
	}
	if c.Pair == "" {
		return fmt.Errorf("PAIR is required")
	}
	if len(c.AuthTokenSecret) < MinSecretLength {
		return fmt.Errorf("AUTH_TOKEN_SECRET must be at least %d bytes", MinSecretLength)
	}
	if c.AppEnv != "dev" && IsInsecureDevSecret(c.AuthTokenSecret) {
		return fmt.Errorf("AUTH_TOKEN_SECRET is a dev placeholder; set a real secret")
	}
	if c.AppEnv != "dev" && c.AuthPassword == "" {
		return fmt.Errorf("AUTH_PASSWORD is required outside dev")
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("invalid AUTH_TOKEN_TTL: %s", c.AuthTokenTTL)
	}
	if c.RedisAddr != "" && c.EventStream == "" {
		return fmt.Errorf("EVENT_STREAM is required when REDIS_ADDR is set")
	}
	return nil
}

// IsInsecureDevSecret returns true when the value matches a known dev placeholder secret.
// It is intended to prevent accidental production deployments with default credentials.
func IsInsecureDevSecret(value string) bool {
	_, ok := insecureDevSecrets[value]
	return ok
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
