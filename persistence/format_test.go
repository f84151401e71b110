package persistence

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("quivigo snapshot payload "), 100)

	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			blob, err := Encode(payload, "gob", compression, 17)
			require.NoError(t, err)

			env, err := Decode(blob)
			require.NoError(t, err)

			assert.Equal(t, "gob", env.CodecName)
			assert.Equal(t, compression, env.Compression)
			assert.Equal(t, uint64(17), env.Version)
			assert.Equal(t, payload, env.Payload)
		})
	}
}

func TestEncodeEmptyPayload(t *testing.T) {
	blob, err := Encode(nil, "msgpack", CompressionNone, 0)
	require.NoError(t, err)

	env, err := Decode(blob)
	require.NoError(t, err)
	assert.Empty(t, env.Payload)
	assert.Equal(t, uint64(0), env.Version)
}

func TestEncodeInvalidCodecName(t *testing.T) {
	_, err := Encode([]byte("x"), "", CompressionNone, 1)
	assert.Error(t, err)

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	_, err = Encode([]byte("x"), string(long), CompressionNone, 1)
	assert.Error(t, err)
}

func TestDecodeTruncated(t *testing.T) {
	blob, err := Encode([]byte("payload"), "gob", CompressionNone, 1)
	require.NoError(t, err)

	for _, n := range []int{0, 3, 10, len(blob) - 1} {
		_, err := Decode(blob[:n])
		assert.ErrorIs(t, err, ErrCorruptSnapshot, "prefix of %d bytes", n)
	}
}

func TestDecodeBitFlip(t *testing.T) {
	blob, err := Encode([]byte("payload that matters"), "gob", CompressionLZ4, 3)
	require.NoError(t, err)

	// Flip one bit anywhere and the checksum must catch it.
	for _, i := range []int{0, 5, len(blob) / 2, len(blob) - 5} {
		corrupted := append([]byte(nil), blob...)
		corrupted[i] ^= 0x01
		_, err := Decode(corrupted)
		assert.ErrorIs(t, err, ErrCorruptSnapshot, "flip at offset %d", i)
	}
}

func TestDecodeWrongMagic(t *testing.T) {
	blob, err := Encode([]byte("payload"), "gob", CompressionNone, 1)
	require.NoError(t, err)

	_, err = Decode(append([]byte("NOPE"), blob[4:]...))
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestVersionPreserved(t *testing.T) {
	for _, v := range []uint64{0, 1, 1 << 40} {
		blob, err := Encode([]byte("p"), "gob", CompressionNone, v)
		require.NoError(t, err)
		env, err := Decode(blob)
		require.NoError(t, err)
		assert.Equal(t, v, env.Version)
	}
}
