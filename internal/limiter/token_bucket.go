package limiter

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"distributed-rate-limiter/internal/metrics"
	"distributed-rate-limiter/internal/storage"
)

// Script Lua do token bucket. Lê os dois campos do hash, semeia o estado
// ausente com o bucket cheio, reabastece, compara e grava de volta, tudo como
// unidade atômica no Redis
//
//go:embed token_bucket.lua
var tokenBucketScript string

const tokenBucketPrefix = "tb:"

// TokenBucket implementa o algoritmo clássico de balde de tokens. Permite
// rajadas até a capacidade enquanto mantém a taxa média, com os tokens
// acumulando durante períodos ociosos.
//
// Sem cache local aqui: o estado é barato de ler (um round trip, um hash) e a
// correção do refill depende do frescor do timestamp
type TokenBucket struct {
	store  storage.Storage
	config Config
	// Tokens por milissegundo, para precisão no refill
	refillPerMs float64
	sink        metrics.Sink
	now         func() time.Time
}

// NewTokenBucket constrói o limiter de token bucket. Exige RefillRate > 0
func NewTokenBucket(store storage.Storage, cfg Config, sink metrics.Sink, opts ...Option) (*TokenBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RefillRate <= 0 {
		return nil, fmt.Errorf("token bucket requires a positive refill rate: %w", ErrInvalidArgument)
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}

	o := applyOptions(opts)

	logrus.Infof("token bucket initialized: capacity=%d, refill=%g/sec", cfg.MaxPermits, cfg.RefillRate)

	return &TokenBucket{
		store:       store,
		config:      cfg,
		refillPerMs: cfg.RefillRate / 1000.0,
		sink:        sink,
		now:         o.now,
	}, nil
}

func (tb *TokenBucket) TryAcquire(ctx context.Context, key string) (bool, error) {
	return tb.TryAcquireN(ctx, key, 1)
}

func (tb *TokenBucket) TryAcquireN(ctx context.Context, key string, permits int64) (bool, error) {
	if permits <= 0 {
		return false, fmt.Errorf("permits must be positive: %w", ErrInvalidArgument)
	}

	if permits > tb.config.MaxPermits {
		// Pedido maior que a capacidade nunca pode ser atendido,
		// independente do estado
		tb.sink.IncCounter(metrics.TokenBucketRejected)
		return false, nil
	}

	bucketKey := tokenBucketPrefix + key
	nowMs := tb.now().UnixMilli()
	// TTL de 2x a janela: longo o bastante para um bucket ocioso não sumir no
	// meio de uma rajada, curto o bastante para recolher chaves abandonadas
	ttlMs := tb.config.Window.Milliseconds() * 2

	result, err := tb.store.EvalScript(ctx, tokenBucketScript,
		[]string{bucketKey},
		tb.config.MaxPermits,
		strconv.FormatFloat(tb.refillPerMs, 'f', -1, 64),
		permits,
		nowMs,
		ttlMs,
	)
	if err != nil {
		return false, err
	}

	allowed, _, err := parseScriptReply(result)
	if err != nil {
		return false, err
	}

	if allowed {
		tb.sink.IncCounter(metrics.TokenBucketAllowed)
	} else {
		tb.sink.IncCounter(metrics.TokenBucketRejected)
	}

	return allowed, nil
}

// AvailablePermits lê o campo tokens armazenado, sem aplicar o refill desde
// last_refill. Um bucket ausente ainda está cheio, então reporta a capacidade
func (tb *TokenBucket) AvailablePermits(ctx context.Context, key string) (int64, error) {
	tokens, found, err := tb.store.GetField(ctx, tokenBucketPrefix+key, "tokens")
	if err != nil {
		return 0, err
	}
	if !found {
		return tb.config.MaxPermits, nil
	}
	return int64(tokens), nil
}

// Reset remove o hash do bucket
func (tb *TokenBucket) Reset(ctx context.Context, key string) error {
	return tb.store.Delete(ctx, tokenBucketPrefix+key)
}

// Interpreta a resposta do script: uma sequência [0|1, tokens_restantes].
// Redis devolve os números de formas diferentes dependendo do caminho, então
// aceita int64, float64 e string
func parseScriptReply(result interface{}) (bool, float64, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected script reply: %v", result)
	}

	allowed, err := replyNumber(values[0])
	if err != nil {
		return false, 0, err
	}
	remaining, err := replyNumber(values[1])
	if err != nil {
		return false, 0, err
	}

	return allowed == 1, remaining, nil
}

func replyNumber(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("unexpected script reply element: %T", v)
}
