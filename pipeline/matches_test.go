package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jstest "github.com/teliris/jobscout/internal/testing"
)

func TestMatchStoreSaveAndCount(t *testing.T) {
	store := NewMatchStore(jstest.CreateTestDB(t))

	m := &Match{
		ItemID:    "item-1",
		SourceKey: "https://acme.example/jobs/1",
		Title:     "Backend Engineer",
		Company:   "Acme",
		Score:     0.8,
		Rationale: "matched 4/5 keywords",
		Qualified: true,
	}
	require.NoError(t, store.SaveMatch(m))
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())

	require.NoError(t, store.SaveMatch(&Match{
		ItemID:    "item-2",
		SourceKey: "https://acme.example/jobs/2",
		Score:     0.1,
	}))

	total, qualified, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, qualified)
}

func TestMatchStoreRecentOrdersQualifiedFirst(t *testing.T) {
	store := NewMatchStore(jstest.CreateTestDB(t))

	require.NoError(t, store.SaveMatch(&Match{ItemID: "a", SourceKey: "ka", Score: 0.2}))
	require.NoError(t, store.SaveMatch(&Match{ItemID: "b", SourceKey: "kb", Score: 0.9, Qualified: true}))
	require.NoError(t, store.SaveMatch(&Match{ItemID: "c", SourceKey: "kc", Score: 0.3}))

	recent, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].ItemID)
}
