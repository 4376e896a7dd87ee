package binary

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderDecoder(t *testing.T) {
	key, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	native := uint64(2_039_280)

	size := 2*ed25519.PublicKeySize + 2*(optionTagSize+ed25519.PublicKeySize) + 8 + 2*(optionTagSize+8) + 2
	e := NewEncoder(size)
	e.Key(key)
	e.OptionalKey(key)
	e.OptionalKey(nil)
	e.Uint64(42)
	e.OptionalUint64(&native)
	e.OptionalUint64(nil)
	e.Uint8(2)
	e.Bool(true)
	e.Key(key)
	require.Len(t, e.Bytes(), size)

	d := NewDecoder(e.Bytes())
	assert.EqualValues(t, key, d.Key())
	assert.EqualValues(t, key, d.OptionalKey())
	assert.Nil(t, d.OptionalKey())
	assert.EqualValues(t, 42, d.Uint64())
	require.NotNil(t, d.OptionalUint64())
	assert.Nil(t, d.OptionalUint64())
	assert.EqualValues(t, 2, d.Uint8())
	assert.True(t, d.Bool())
	assert.EqualValues(t, key, d.Key())
	assert.Equal(t, size, d.Offset())
}
