package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProbeMissOnEmptyCache(t *testing.T) {
	c := NewDecisionCache(time.Minute)

	_, ok := c.Probe("k")
	assert.False(t, ok)
}

func TestUpdateThenProbe(t *testing.T) {
	c := NewDecisionCache(time.Minute)

	c.Update("k", 7)
	count, ok := c.Probe("k")
	assert.True(t, ok)
	assert.Equal(t, int64(7), count)

	// Sobrescreve a observação anterior
	c.Update("k", 12)
	count, ok = c.Probe("k")
	assert.True(t, ok)
	assert.Equal(t, int64(12), count)
}

func TestEntriesExpireAfterTTL(t *testing.T) {
	c := NewDecisionCache(20 * time.Millisecond)

	c.Update("k", 7)
	_, ok := c.Probe("k")
	assert.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	_, ok = c.Probe("k")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := NewDecisionCache(time.Minute)

	c.Update("k", 7)
	c.Invalidate("k")

	_, ok := c.Probe("k")
	assert.False(t, ok)
}

func TestCapacityIsBounded(t *testing.T) {
	c := NewDecisionCache(time.Minute)

	for i := 0; i < maxEntries+500; i++ {
		c.Update(fmt.Sprintf("k%d", i), int64(i))
	}

	assert.LessOrEqual(t, c.Len(), maxEntries)

	// As entradas mais antigas foram expulsas
	_, ok := c.Probe("k0")
	assert.False(t, ok)
}
