package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaCachePutGet(t *testing.T) {
	c := newSchemaCache(time.Minute, 10)

	_, ok := c.get("missing")
	assert.False(t, ok)

	c.put("k", "v")
	v, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestSchemaCacheExpiry(t *testing.T) {
	c := newSchemaCache(10*time.Millisecond, 10)
	c.put("k", "v")
	time.Sleep(20 * time.Millisecond)
	_, ok := c.get("k")
	assert.False(t, ok)
}

func TestSchemaCacheBounded(t *testing.T) {
	c := newSchemaCache(time.Minute, 3)
	for i := 0; i < 10; i++ {
		c.put(fmt.Sprintf("k%d", i), "v")
	}
	assert.LessOrEqual(t, len(c.entries), 3)
}
