package limiter

import (
	"context"
	"fmt"
	"time"

	"distributed-rate-limiter/internal/cache"
	"distributed-rate-limiter/internal/metrics"
	"distributed-rate-limiter/internal/storage"
)

// SlidingWindow aproxima uma janela deslizante combinando dois buckets fixos
// adjacentes com peso linear.
//
// Como funciona:
//   - O tempo é dividido em buckets fixos do tamanho da janela
//   - O bucket anterior recebe peso proporcional ao quanto ainda sobrepõe a
//     janela deslizante
//   - total = prev_count * prev_weight + curr_count
//
// A aproximação erra um pouco nas fronteiras de janela, mas é muito mais
// barata em memória do que um log deslizante completo
type SlidingWindow struct {
	store  storage.Storage
	config Config
	local  *cache.DecisionCache
	sink   metrics.Sink
	now    func() time.Time
}

// NewSlidingWindow constrói o limiter de janela deslizante. O cache local é
// criado aqui quando habilitado na configuração
func NewSlidingWindow(store storage.Storage, cfg Config, sink metrics.Sink, opts ...Option) (*SlidingWindow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}

	o := applyOptions(opts)

	var local *cache.DecisionCache
	if cfg.LocalCacheEnabled {
		local = cache.NewDecisionCache(cfg.LocalCacheTTL)
	}

	return &SlidingWindow{
		store:  store,
		config: cfg,
		local:  local,
		sink:   sink,
		now:    o.now,
	}, nil
}

func (sw *SlidingWindow) TryAcquire(ctx context.Context, key string) (bool, error) {
	return sw.TryAcquireN(ctx, key, 1)
}

// TryAcquireN compara estimativa + permits com o limite, mas um aceite
// incrementa o bucket atual em apenas um, qualquer que seja permits
func (sw *SlidingWindow) TryAcquireN(ctx context.Context, key string, permits int64) (bool, error) {
	if permits <= 0 {
		return false, fmt.Errorf("permits must be positive: %w", ErrInvalidArgument)
	}

	// Se rejeitamos essa chave recentemente, rejeita de novo sem ir ao Redis.
	// Reduz a carga durante ataques
	if sw.local != nil {
		if cached, ok := sw.local.Probe(key); ok && cached >= sw.config.MaxPermits {
			sw.sink.IncCounter(metrics.CacheHits)
			sw.sink.IncCounter(metrics.RequestsRejected)
			return false, nil
		}
	}

	estimated, err := sw.estimatedCount(ctx, key)
	if err != nil {
		return false, err
	}

	if estimated+permits > sw.config.MaxPermits {
		// Guarda a rejeição para não martelar o Redis
		if sw.local != nil {
			sw.local.Update(key, estimated)
		}
		sw.sink.IncCounter(metrics.RequestsRejected)
		return false, nil
	}

	windowMs := sw.config.Window.Milliseconds()
	currentKey := windowKey(key, sw.now().UnixMilli(), windowMs)
	newCount, err := sw.store.IncrementAndExpire(ctx, currentKey, sw.config.Window)
	if err != nil {
		return false, err
	}

	if sw.local != nil {
		sw.local.Update(key, newCount)
	}

	// Instâncias concorrentes podem ultrapassar o limite entre a estimativa e
	// o incremento. A comparação final contra newCount mantém a resposta deste
	// chamador correta
	allowed := newCount <= sw.config.MaxPermits
	if allowed {
		sw.sink.IncCounter(metrics.RequestsAllowed)
	} else {
		sw.sink.IncCounter(metrics.RequestsRejected)
	}

	return allowed, nil
}

// AvailablePermits faz leituras frescas dos dois buckets, sem consultar o
// cache local
func (sw *SlidingWindow) AvailablePermits(ctx context.Context, key string) (int64, error) {
	estimated, err := sw.estimatedCount(ctx, key)
	if err != nil {
		return 0, err
	}
	remaining := sw.config.MaxPermits - estimated
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset remove os buckets atual e anterior e invalida a entrada do cache
func (sw *SlidingWindow) Reset(ctx context.Context, key string) error {
	nowMs := sw.now().UnixMilli()
	windowMs := sw.config.Window.Milliseconds()

	err := sw.store.Delete(ctx,
		windowKey(key, nowMs, windowMs),
		windowKey(key, nowMs-windowMs, windowMs),
	)
	if err != nil {
		return err
	}

	if sw.local != nil {
		sw.local.Invalidate(key)
	}
	return nil
}

// Calcula a contagem estimada pela fórmula da janela deslizante
func (sw *SlidingWindow) estimatedCount(ctx context.Context, key string) (int64, error) {
	nowMs := sw.now().UnixMilli()
	windowMs := sw.config.Window.Milliseconds()

	currCount, err := sw.store.Get(ctx, windowKey(key, nowMs, windowMs))
	if err != nil {
		return 0, err
	}
	prevCount, err := sw.store.Get(ctx, windowKey(key, nowMs-windowMs, windowMs))
	if err != nil {
		return 0, err
	}

	percentInCurr := float64(nowMs%windowMs) / float64(windowMs)
	prevWeight := 1.0 - percentInCurr

	return int64(float64(prevCount)*prevWeight + float64(currCount)), nil
}

// Gera a chave de armazenamento do bucket que contém o timestamp dado. O
// alinhamento usa milissegundos de epoch para que todas as instâncias
// concordem nas fronteiras
func windowKey(key string, timestampMs, windowMs int64) string {
	windowStart := (timestampMs / windowMs) * windowMs
	return fmt.Sprintf("rl:%s:%d", key, windowStart)
}
