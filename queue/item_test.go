package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teliris/jobscout/errors"
)

func TestNewItemValidation(t *testing.T) {
	_, err := NewItem("bogus", "key", NewLineage(), nil)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = NewItem(ItemTypeJob, "", NewLineage(), nil)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = NewItem(ItemTypeJob, "key", Lineage{}, nil)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestNewItemStartsAtFirstStage(t *testing.T) {
	job, err := NewItem(ItemTypeJob, "https://example.com/a", NewLineage(), nil)
	require.NoError(t, err)
	assert.Equal(t, StageScrape, job.Stage)
	assert.Equal(t, StatusPending, job.Status)
	assert.EqualValues(t, 1, job.Version)

	company, err := NewItem(ItemTypeCompany, "acme", NewLineage(), nil)
	require.NoError(t, err)
	assert.Equal(t, StageFetch, company.Stage)
}

func TestStageSequenceStrictlyForward(t *testing.T) {
	item, err := NewItem(ItemTypeJob, "https://example.com/a", NewLineage(), nil)
	require.NoError(t, err)

	want := []Stage{StageFilter, StageAnalyze, StageSave}
	for _, stage := range want {
		item.Advance()
		assert.Equal(t, stage, item.Stage)
		assert.Equal(t, StatusPending, item.Status, "intermediate advance returns to pending")
		assert.Nil(t, item.CompletedAt)
	}

	// Advancing past the final stage completes the item
	item.Advance()
	assert.Equal(t, StageSave, item.Stage)
	assert.Equal(t, StatusSuccess, item.Status)
	require.NotNil(t, item.CompletedAt)
}

func TestScheduleRetryStaysOnSameStage(t *testing.T) {
	item, err := NewItem(ItemTypeJob, "https://example.com/a", NewLineage(), nil)
	require.NoError(t, err)
	item.Claim()
	item.Advance() // now at filter

	item.Claim()
	stage := item.Stage
	item.ScheduleRetry(30*time.Second, errors.New("network timeout"))

	assert.Equal(t, stage, item.Stage)
	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, 1, item.RetryCount)
	require.NotNil(t, item.NextAttemptAt)
	assert.True(t, item.NextAttemptAt.After(time.Now().UTC().Add(20*time.Second)))
	assert.Contains(t, item.Error, "network timeout")
}

func TestAdvanceResetsRetryCount(t *testing.T) {
	item, err := NewItem(ItemTypeJob, "https://example.com/a", NewLineage(), nil)
	require.NoError(t, err)

	item.ScheduleRetry(time.Second, errors.New("flaky"))
	require.Equal(t, 1, item.RetryCount)

	item.Advance()
	assert.Equal(t, 0, item.RetryCount)
	assert.Empty(t, item.Error)
}

func TestTerminate(t *testing.T) {
	item, err := NewItem(ItemTypeJob, "https://example.com/a", NewLineage(), nil)
	require.NoError(t, err)
	item.Claim()

	item.Terminate(StatusFiltered, "excluded keyword: unpaid")

	assert.Equal(t, StatusFiltered, item.Status)
	assert.True(t, item.Status.IsTerminal())
	assert.Equal(t, "excluded keyword: unpaid", item.Error)
	assert.Nil(t, item.ClaimedAt)
	require.NotNil(t, item.CompletedAt)
}

func TestStatusTerminality(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	for _, s := range []Status{StatusSuccess, StatusFailed, StatusFiltered, StatusSkipped} {
		assert.True(t, s.IsTerminal(), "%s", s)
	}
}

func TestStageHelpers(t *testing.T) {
	next, ok := NextStage(ItemTypeJob, StageScrape)
	require.True(t, ok)
	assert.Equal(t, StageFilter, next)

	_, ok = NextStage(ItemTypeJob, StageSave)
	assert.False(t, ok)
	assert.True(t, IsFinalStage(ItemTypeJob, StageSave))
	assert.False(t, IsFinalStage(ItemTypeJob, StageScrape))

	assert.Equal(t, StageFetch, FirstStage(ItemTypeSourceDiscovery))
	assert.True(t, IsFinalStage(ItemTypeCompany, StageSave))
}
