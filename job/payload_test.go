package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePayloadSortsMapKeys(t *testing.T) {
	a, err := EncodePayload("greet", map[string]any{"z": 1, "a": 2})
	require.NoError(t, err)
	b, err := EncodePayload("greet", map[string]any{"a": 2, "z": 1})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b), "payloads built from the same pairs in different insertion order must be byte-identical")
}

func TestPayloadRoundtrip(t *testing.T) {
	payload, err := EncodePayload("send_email", map[string]any{"to": "a@example.com", "attempt": float64(3)})
	require.NoError(t, err)

	handler, args, err := DecodePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, "send_email", handler)
	assert.Equal(t, "a@example.com", args["to"])
	assert.Equal(t, float64(3), args["attempt"])
}

func TestDecodePayloadDefaultsNilArgs(t *testing.T) {
	payload, err := EncodePayload("noop", nil)
	require.NoError(t, err)

	_, args, err := DecodePayload(payload)
	require.NoError(t, err)
	assert.NotNil(t, args)
	assert.Empty(t, args)
}
