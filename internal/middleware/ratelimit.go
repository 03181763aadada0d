package middleware

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"distributed-rate-limiter/internal/limiter"
	"distributed-rate-limiter/internal/storage"
	"distributed-rate-limiter/pkg/response"
)

// LimiterSet resolve qual limiter atende cada requisição: tokens de API
// conhecidos ganham um limiter dedicado, o restante cai no limiter padrão,
// com chave por token (token desconhecido) ou por IP (sem token)
type LimiterSet struct {
	defaultLimiter limiter.Limiter
	defaultLimit   int64
	tokenLimiters  map[string]tokenEntry
}

type tokenEntry struct {
	limiter limiter.Limiter
	limit   int64
}

func NewLimiterSet(defaultLimiter limiter.Limiter, defaultLimit int64) *LimiterSet {
	return &LimiterSet{
		defaultLimiter: defaultLimiter,
		defaultLimit:   defaultLimit,
		tokenLimiters:  make(map[string]tokenEntry),
	}
}

// AddToken registra o limiter dedicado de um token. Chamado apenas na
// inicialização, antes do servidor aceitar tráfego
func (s *LimiterSet) AddToken(token string, l limiter.Limiter, limit int64) {
	s.tokenLimiters[token] = tokenEntry{limiter: l, limit: limit}
}

func (s *LimiterSet) resolve(identifier string, isToken bool) (limiter.Limiter, int64, string) {
	if isToken {
		if entry, ok := s.tokenLimiters[identifier]; ok {
			return entry.limiter, entry.limit, "token:" + identifier
		}
		// Token desconhecido volta para o limite padrão
		return s.defaultLimiter, s.defaultLimit, "token:" + identifier
	}
	return s.defaultLimiter, s.defaultLimit, "ip:" + identifier
}

// Cria um middleware de rate limiting. Em falha de armazenamento a política
// aqui é fail-open: loga e deixa a requisição passar. O core nunca esconde
// essas falhas; a decisão de disponibilidade pertence ao dispatcher
func RateLimitMiddleware(limiters *LimiterSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := extractIP(r)
			apiKey := r.Header.Get("API_KEY")

			var identifier string
			var isToken bool

			// Prioridade: Token > IP
			if apiKey != "" {
				identifier = apiKey
				isToken = true
			} else {
				identifier = ip
				isToken = false
			}

			l, limit, key := limiters.resolve(identifier, isToken)

			allowed, err := l.TryAcquire(ctx, key)
			if err != nil {
				var storageErr *storage.StorageError
				if errors.As(err, &storageErr) {
					logrus.WithError(err).WithFields(logrus.Fields{
						"ip":  ip,
						"key": key,
					}).Warn("rate limiter storage failure, failing open")
					next.ServeHTTP(w, r)
					return
				}
				response.WriteError(w, http.StatusInternalServerError, "rate limiter failure")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))

			if !allowed {
				remaining, remErr := l.AvailablePermits(ctx, key)
				if remErr != nil {
					remaining = 0
				}
				response.WriteRateLimitError(w, remaining)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Extrai o endereço IP real da requisição, priorizando headers de proxy
func extractIP(r *http.Request) string {
	// Verifica o header X-Forwarded-For primeiro (para balanceadores de carga/proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For pode conter múltiplos IPs, pega o primeiro
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	// Verifica o header X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Volta para RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}
