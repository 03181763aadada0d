package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Capacidade máxima do cache local de decisões
const maxEntries = 10000

// DecisionCache guarda a última contagem observada por chave, com TTL curto
// e capacidade limitada. O cache é consultivo: nunca é a fonte de verdade,
// apenas evita round trips para chaves sabidamente saturadas
type DecisionCache struct {
	entries *expirable.LRU[string, int64]
}

// NewDecisionCache cria o cache com o TTL de escrita dado. Entradas expiram
// a partir da inserção, não do último acesso
func NewDecisionCache(ttl time.Duration) *DecisionCache {
	return &DecisionCache{
		entries: expirable.NewLRU[string, int64](maxEntries, nil, ttl),
	}
}

// Probe retorna a última contagem observada para a chave, se ainda fresca
func (c *DecisionCache) Probe(key string) (int64, bool) {
	return c.entries.Get(key)
}

// Update registra uma nova observação, sobrescrevendo a anterior e
// reiniciando o TTL
func (c *DecisionCache) Update(key string, count int64) {
	c.entries.Add(key, count)
}

// Invalidate remove a entrada da chave
func (c *DecisionCache) Invalidate(key string) {
	c.entries.Remove(key)
}

// Len retorna o número de entradas vivas
func (c *DecisionCache) Len() int {
	return c.entries.Len()
}
