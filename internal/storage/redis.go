package storage

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"distributed-rate-limiter/internal/metrics"
)

const (
	maxRetries   = 3
	retryDelay   = 10 * time.Millisecond
	poolSize     = 128
	maxIdleConns = 32
	minIdleConns = 16
	poolTimeout  = 2 * time.Second
)

// RedisStorage implementa Storage sobre Redis com pool de conexões e retry
type RedisStorage struct {
	client redis.UniversalClient
	sink   metrics.Sink

	mu      sync.Mutex
	scripts map[string]*redis.Script
}

// RedisOptions contém os parâmetros de conexão com o Redis
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStorage cria o armazenamento Redis com a política de pool padrão
func NewRedisStorage(opts RedisOptions, sink metrics.Sink) *RedisStorage {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     poolSize,
		MaxIdleConns: maxIdleConns,
		MinIdleConns: minIdleConns,
		PoolTimeout:  poolTimeout,
		// O retry fica na camada do adapter, não no cliente
		MaxRetries: -1,
	})
	return NewRedisStorageWithClient(client, sink)
}

// NewRedisStorageWithClient cria o armazenamento a partir de um cliente existente
func NewRedisStorageWithClient(client redis.UniversalClient, sink metrics.Sink) *RedisStorage {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &RedisStorage{
		client:  client,
		sink:    sink,
		scripts: make(map[string]*redis.Script),
	}
}

// Incrementa o contador e reaplica o TTL dentro de MULTI/EXEC, para que
// leitores nunca observem o incremento sem a expiração
func (r *RedisStorage) IncrementAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var newCount int64
	err := r.withRetry(ctx, "incr_and_expire", func() error {
		var incr *redis.IntCmd
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.PExpire(ctx, key, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		newCount = incr.Val()
		return nil
	})
	return newCount, err
}

func (r *RedisStorage) Get(ctx context.Context, key string) (int64, error) {
	var value int64
	err := r.withRetry(ctx, "get", func() error {
		val, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			value = 0
			return nil
		}
		if err != nil {
			return err
		}
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return err
		}
		value = parsed
		return nil
	})
	return value, err
}

func (r *RedisStorage) GetField(ctx context.Context, key, field string) (float64, bool, error) {
	var (
		value float64
		found bool
	)
	err := r.withRetry(ctx, "get_field", func() error {
		val, err := r.client.HGet(ctx, key, field).Result()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		value = parsed
		found = true
		return nil
	})
	return value, found, err
}

func (r *RedisStorage) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return r.withRetry(ctx, "set", func() error {
		return r.client.Set(ctx, key, value, ttl).Err()
	})
}

// CompareAndSet usa WATCH/MULTI/EXEC para detectar escritas concorrentes
// entre a leitura e a atualização
func (r *RedisStorage) CompareAndSet(ctx context.Context, key string, expect, update int64) (bool, error) {
	var success bool
	err := r.withRetry(ctx, "compare_and_set", func() error {
		success = false
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			val, err := tx.Get(ctx, key).Result()
			current := int64(0)
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil {
				current, err = strconv.ParseInt(val, 10, 64)
				if err != nil {
					return err
				}
			}
			if current != expect {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, update, 0)
				return nil
			})
			if err != nil {
				return err
			}
			success = true
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			// Outra instância escreveu entre a leitura e o EXEC
			success = false
			return nil
		}
		return err
	})
	return success, err
}

func (r *RedisStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.withRetry(ctx, "delete", func() error {
		return r.client.Del(ctx, keys...).Err()
	})
}

// EvalScript executa o script como unidade atômica no Redis. Os handles de
// script são cacheados para que invocações repetidas usem EVALSHA
func (r *RedisStorage) EvalScript(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	var result interface{}
	err := r.withRetry(ctx, "eval_script", func() error {
		res, err := r.scriptFor(script).Run(ctx, r.client, keys, args...).Result()
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

func (r *RedisStorage) scriptFor(script string) *redis.Script {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.scripts[script]; ok {
		return s
	}
	s := redis.NewScript(script)
	r.scripts[script] = s
	return s
}

func (r *RedisStorage) Available(ctx context.Context) bool {
	if err := r.client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Warn("redis health check failed")
		return false
	}
	return true
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

// Executa a operação com até três tentativas e backoff linear. Cancelamento
// do contexto interrompe imediatamente, sem dormir de novo
func (r *RedisStorage) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		start := time.Now()
		err := fn()
		r.sink.ObserveStorageLatency(op, time.Since(start))
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}

		logrus.WithError(err).Warnf("storage operation %s failed (attempt %d/%d)", op, attempt, maxRetries)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return &StorageError{Op: op, Err: ctx.Err()}
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}
	}

	return &StorageError{Op: op, Err: lastErr}
}
