package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	payload := map[string]any{
		"review":    map[string]any{"id": 1, "version": 2, "status": "pending_review"},
		"work_item": map[string]any{"label": "Asfaltiranje", "quantity": 120.5},
	}

	first, err := Fingerprint(payload)
	require.NoError(t, err)
	require.Len(t, first, 64)

	for i := 0; i < 10; i++ {
		again, err := Fingerprint(payload)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFingerprintIgnoresKeyOrder(t *testing.T) {
	a, err := Fingerprint(map[string]any{"a": 1, "b": "x", "c": []any{1, 2}})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]any{"c": []any{1, 2}, "b": "x", "a": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	base, err := Fingerprint(map[string]any{"version": 1, "note": "ok"})
	require.NoError(t, err)

	changedValue, err := Fingerprint(map[string]any{"version": 2, "note": "ok"})
	require.NoError(t, err)
	assert.NotEqual(t, base, changedValue)

	addedKey, err := Fingerprint(map[string]any{"version": 1, "note": "ok", "extra": true})
	require.NoError(t, err)
	assert.NotEqual(t, base, addedKey)
}

func TestFingerprintStructAndMapAgree(t *testing.T) {
	type payload struct {
		Version int    `json:"version"`
		Note    string `json:"note"`
	}
	fromStruct, err := Fingerprint(payload{Version: 3, Note: "hi"})
	require.NoError(t, err)
	fromMap, err := Fingerprint(map[string]any{"note": "hi", "version": 3})
	require.NoError(t, err)
	assert.Equal(t, fromStruct, fromMap)
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("abc", "abc"))
	assert.False(t, Matches("abc", "abd"))
	assert.False(t, Matches("abc", ""))
	// An empty provided hash never matches, even an empty expectation.
	assert.False(t, Matches("", ""))
}
