package querycache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheLocalHitAndMiss(t *testing.T) {
	c := New("", 0)

	_, ok := c.Get("groups", 1)
	assert.False(t, ok)

	assert.NoError(t, c.Set("groups", 1, "answer-v1"))

	v, ok := c.Get("groups", 1)
	assert.True(t, ok)
	assert.Equal(t, "answer-v1", v)

	_, ok = c.Get("groups", 2)
	assert.False(t, ok, "a different generation must miss even though the key matches")
}

func TestCacheLocalSetSupersedesGeneration(t *testing.T) {
	c := New("", 0)
	assert.NoError(t, c.Set("groups", 1, "answer-v1"))
	assert.NoError(t, c.Set("groups", 2, "answer-v2"))

	_, ok := c.Get("groups", 1)
	assert.False(t, ok, "the old generation's entry is gone once a newer one is set")

	v, ok := c.Get("groups", 2)
	assert.True(t, ok)
	assert.Equal(t, "answer-v2", v)
}
