package system

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytePoolSizes(t *testing.T) {
	p := NewBytePool()

	a := p.Get(64)
	require.Len(t, a, 64)
	p.Put(a)

	b := p.Get(128)
	assert.Len(t, b, 128)
	assert.Len(t, p.Get(64), 64)

	// Buffers of unknown sizes are dropped.
	p.Put(make([]byte, 7))
	p.Put(nil)
}

func TestCheckMemory(t *testing.T) {
	avail, err := CheckMemory(1)
	require.NoError(t, err)
	assert.Positive(t, avail)

	_, err = CheckMemory(math.MaxUint64)
	assert.ErrorIs(t, err, ErrInsufficientMemory)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
}
