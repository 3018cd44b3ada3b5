package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordScorer(t *testing.T) {
	scorer := NewKeywordScorer([]string{"Go", "distributed systems", "SQLite", "kubernetes"})

	result, err := scorer.Score(context.Background(), &JobPayload{
		Title:       "Backend Engineer (Go)",
		Description: "You will build distributed systems.",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.Score, 0.001)
	assert.Contains(t, result.Rationale, "2/4")
	assert.Contains(t, result.Rationale, "distributed systems")
}

func TestKeywordScorerNoMatches(t *testing.T) {
	scorer := NewKeywordScorer([]string{"haskell"})

	result, err := scorer.Score(context.Background(), &JobPayload{Title: "Go Engineer"})
	require.NoError(t, err)
	assert.Zero(t, result.Score)
	assert.Equal(t, "no keywords matched", result.Rationale)
}

func TestKeywordScorerNoKeywords(t *testing.T) {
	scorer := NewKeywordScorer(nil)

	result, err := scorer.Score(context.Background(), &JobPayload{Title: "Anything"})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.Score, 0.001)
}
