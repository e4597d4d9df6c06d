package pdo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolvedArtifact_HashesContent(t *testing.T) {
	ts := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	content := map[string]any{"score": 722, "bureau": "experian"}

	a, err := NewResolvedArtifact("evidence://inputs/credit", RoleInput, content, ts)
	require.NoError(t, err)

	assert.True(t, a.Resolved())
	assert.Len(t, a.ContentHash, 64)
	assert.True(t, a.VerifyContentHash())
}

func TestNewResolvedArtifact_RejectsBadRole(t *testing.T) {
	_, err := NewResolvedArtifact("ref", "sidecar", nil, time.Now())
	assert.Error(t, err)
}

func TestNewUnresolvedArtifact_NullContent(t *testing.T) {
	a, err := NewUnresolvedArtifact("evidence://inputs/gone", RoleInput, ResolutionNotFound, time.Now())
	require.NoError(t, err)

	assert.False(t, a.Resolved())
	assert.Nil(t, a.Content)
	assert.True(t, a.VerifyContentHash(), "placeholder hash covers the null content")

	encoded, err := a.EncodeCanonical()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, "not_found", decoded["resolution_status"])
	assert.Contains(t, decoded, "content")
	assert.Nil(t, decoded["content"])
}

func TestNewUnresolvedArtifact_RequiresStatus(t *testing.T) {
	_, err := NewUnresolvedArtifact("ref", RoleInput, "", time.Now())
	assert.Error(t, err)
}

func TestArtifact_VerifyContentHashDetectsTampering(t *testing.T) {
	a, err := NewResolvedArtifact("evidence://decisions/d1", RoleDecision,
		map[string]any{"approved": true}, time.Now())
	require.NoError(t, err)

	a.Content = map[string]any{"approved": false}
	assert.False(t, a.VerifyContentHash())
}

func TestArtifact_TimestampKeyPerRole(t *testing.T) {
	ts := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		role Role
		key  string
	}{
		{RoleInput, "acquired_at"},
		{RoleDecision, "decided_at"},
		{RoleOutcome, "observed_at"},
	}

	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			a, err := NewResolvedArtifact("ref", tc.role, "x", ts)
			require.NoError(t, err)

			encoded, err := a.EncodeCanonical()
			require.NoError(t, err)

			var decoded map[string]any
			require.NoError(t, json.Unmarshal(encoded, &decoded))
			assert.Equal(t, "2025-05-01T09:00:00.000000000Z", decoded[tc.key])
		})
	}
}

func TestArtifact_SameContentSameHash(t *testing.T) {
	ts := time.Now()

	a1, err := NewResolvedArtifact("ref-1", RoleInput, map[string]any{"b": 2, "a": 1}, ts)
	require.NoError(t, err)

	type payload struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	a2, err := NewResolvedArtifact("ref-2", RoleInput, payload{A: 1, B: 2}, ts.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, a1.ContentHash, a2.ContentHash, "hash covers content only")
}
