package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"distributed-rate-limiter/internal/limiter"
)

// TokenConfig descreve o limite dedicado de um token de API. Tokens sem
// entrada aqui caem no limite padrão por IP
type TokenConfig struct {
	Algorithm         string  `json:"algorithm"`
	MaxPermits        int64   `json:"max_permits"`
	WindowSeconds     int     `json:"window_seconds"`
	RefillRate        float64 `json:"refill_rate"`
	LocalCacheEnabled bool    `json:"local_cache_enabled"`
	LocalCacheTTLMs   int     `json:"local_cache_ttl_ms"`
}

// GetAlgorithm valida e retorna o algoritmo do token
func (t *TokenConfig) GetAlgorithm() (limiter.Algorithm, error) {
	return limiter.ParseAlgorithm(t.Algorithm)
}

// GetLimiterConfig converte para a configuração imutável do limiter
func (t *TokenConfig) GetLimiterConfig() limiter.Config {
	return limiter.Config{
		MaxPermits:        t.MaxPermits,
		Window:            time.Duration(t.WindowSeconds) * time.Second,
		RefillRate:        t.RefillRate,
		LocalCacheEnabled: t.LocalCacheEnabled,
		LocalCacheTTL:     time.Duration(t.LocalCacheTTLMs) * time.Millisecond,
	}
}

type TokenConfigs map[string]TokenConfig

// Carrega configurações de tokens a partir de um arquivo JSON
func LoadTokenConfigs(filePath string) (TokenConfigs, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("error opening tokens config file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	var tokenConfigs TokenConfigs
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&tokenConfigs); err != nil {
		return nil, fmt.Errorf("error decoding tokens config: %w", err)
	}

	return tokenConfigs, nil
}

func (tc TokenConfigs) GetTokenConfig(token string) (*TokenConfig, bool) {
	config, exists := tc[token]
	if !exists {
		return nil, false
	}
	return &config, true
}
