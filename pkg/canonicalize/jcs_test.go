package canonicalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCS_KeyOrdering(t *testing.T) {
	a, err := JCS(map[string]interface{}{"b": 1, "a": 2, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(a))
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	out, err := JCS(map[string]interface{}{"rule": "a<b && c>d"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "a<b && c>d")
}

func TestJCS_RoundTripIdempotent(t *testing.T) {
	v := map[string]interface{}{
		"rule_id":     "NASA_POLYMERICS",
		"citations":   []interface{}{"IPC-J-STD-001", "NASA-STD-8739.1"},
		"object_type": "step",
		"nested":      map[string]interface{}{"z": 1, "a": 2},
	}

	first, err := JCS(v)
	require.NoError(t, err)

	var parsed interface{}
	require.NoError(t, json.Unmarshal(first, &parsed))

	second, err := JCS(parsed)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestCanonicalHash_Deterministic(t *testing.T) {
	v1 := map[string]interface{}{"a": 1, "b": 2}
	v2 := map[string]interface{}{"b": 2, "a": 1}

	h1, err := CanonicalHash(v1)
	require.NoError(t, err)
	h2, err := CanonicalHash(v2)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestShortHash(t *testing.T) {
	full := "0123456789abcdef0123456789abcdef"
	assert.Equal(t, "0123456789abcdef", ShortHash(full, 16))
	assert.Equal(t, full, ShortHash(full, 1000))
}
