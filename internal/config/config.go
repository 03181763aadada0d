package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"distributed-rate-limiter/internal/limiter"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

type ServerConfig struct {
	Port   string `mapstructure:"port"`
	AppEnv string `mapstructure:"app_env"`
}

type RateLimitConfig struct {
	Algorithm         string  `mapstructure:"algorithm"`
	MaxPermits        int64   `mapstructure:"max_permits"`
	WindowSeconds     int     `mapstructure:"window_seconds"`
	RefillRate        float64 `mapstructure:"refill_rate"`
	LocalCacheEnabled bool    `mapstructure:"local_cache_enabled"`
	LocalCacheTTLMs   int     `mapstructure:"local_cache_ttl_ms"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoadConfig carrega configurações da aplicação usando viper com suporte a .env e defaults
func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("RATE_LIMIT_ALGORITHM", string(limiter.AlgorithmSlidingWindow))
	viper.SetDefault("RATE_LIMIT_MAX_PERMITS", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("RATE_LIMIT_REFILL_RATE", 0.0)
	viper.SetDefault("LOCAL_CACHE_ENABLED", true)
	viper.SetDefault("LOCAL_CACHE_TTL_MS", 100)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.Set("server.port", viper.GetString("SERVER_PORT"))
	viper.Set("server.app_env", viper.GetString("APP_ENV"))
	viper.Set("rate_limit.algorithm", viper.GetString("RATE_LIMIT_ALGORITHM"))
	viper.Set("rate_limit.max_permits", viper.GetInt64("RATE_LIMIT_MAX_PERMITS"))
	viper.Set("rate_limit.window_seconds", viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"))
	viper.Set("rate_limit.refill_rate", viper.GetFloat64("RATE_LIMIT_REFILL_RATE"))
	viper.Set("rate_limit.local_cache_enabled", viper.GetBool("LOCAL_CACHE_ENABLED"))
	viper.Set("rate_limit.local_cache_ttl_ms", viper.GetInt("LOCAL_CACHE_TTL_MS"))
	viper.Set("redis.host", viper.GetString("REDIS_HOST"))
	viper.Set("redis.port", viper.GetString("REDIS_PORT"))
	viper.Set("redis.password", viper.GetString("REDIS_PASSWORD"))
	viper.Set("redis.db", viper.GetInt("REDIS_DB"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// GetAlgorithm valida e retorna o algoritmo configurado
func (c *RateLimitConfig) GetAlgorithm() (limiter.Algorithm, error) {
	return limiter.ParseAlgorithm(c.Algorithm)
}

// GetLimiterConfig converte para a configuração imutável do limiter
func (c *RateLimitConfig) GetLimiterConfig() limiter.Config {
	return limiter.Config{
		MaxPermits:        c.MaxPermits,
		Window:            time.Duration(c.WindowSeconds) * time.Second,
		RefillRate:        c.RefillRate,
		LocalCacheEnabled: c.LocalCacheEnabled,
		LocalCacheTTL:     time.Duration(c.LocalCacheTTLMs) * time.Millisecond,
	}
}

func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
