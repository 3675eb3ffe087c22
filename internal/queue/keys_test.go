package queue

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_ValidFormat(t *testing.T) {
	key := UUIDv7Generator{}.Generate()

	assert.Len(t, key, 36)
	parsed, err := uuid.Parse(key)
	require.NoError(t, err, "key should be valid UUID")
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_Uniqueness(t *testing.T) {
	gen := UUIDv7Generator{}
	const iterations = 1000

	keys := make(map[string]bool, iterations)
	for i := 0; i < iterations; i++ {
		key := gen.Generate()
		require.False(t, keys[key], "key %s generated twice", key)
		keys[key] = true
	}
}

func TestFixedGenerator_Sequential(t *testing.T) {
	gen := NewFixedGenerator("k1", "k2")

	assert.Equal(t, "k1", gen.Generate())
	assert.Equal(t, "k2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestSequentialGenerator(t *testing.T) {
	gen := NewSequentialGenerator("idem")

	assert.Equal(t, "idem-1", gen.Generate())
	assert.Equal(t, "idem-2", gen.Generate())
}
