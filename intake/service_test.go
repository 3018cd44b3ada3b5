package intake

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jstest "github.com/teliris/jobscout/internal/testing"
	"github.com/teliris/jobscout/logger"
	"github.com/teliris/jobscout/queue"
)

func newTestService(t *testing.T) (*Service, *queue.Store) {
	t.Helper()
	store := queue.NewStore(jstest.CreateTestDB(t))
	return NewService(store, logger.NewTestLogger()), store
}

func TestSubmitAcceptsFreshRecords(t *testing.T) {
	svc, store := newTestService(t)

	accepted, err := svc.Submit(context.Background(), []RawJobRecord{
		{URL: "https://acme.example/jobs/1", Title: "Backend Engineer", Company: "Acme"},
		{URL: "https://other.example/jobs/2"},
	}, "linkedin-export")
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[queue.StatusPending])

	// Seed metadata survives into the item payload
	rows, err := store.Query(queue.QueryFilter{Type: queue.ItemTypeJob})
	require.NoError(t, err)
	defer rows.Close()
	found := false
	for rows.Next() {
		item := rows.Item()
		if item.SourceKey != "https://acme.example/jobs/1" {
			continue
		}
		found = true
		assert.Equal(t, queue.StageScrape, item.Stage)
		assert.Equal(t, 0, item.Lineage.Depth())
		assert.Contains(t, string(item.Payload), "Backend Engineer")
	}
	require.NoError(t, rows.Err())
	assert.True(t, found)
}

func TestSubmitIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)

	records := []RawJobRecord{{URL: "https://acme.example/jobs/1"}}

	accepted, err := svc.Submit(context.Background(), records, "feed")
	require.NoError(t, err)
	require.Equal(t, 1, accepted)

	accepted, err = svc.Submit(context.Background(), records, "feed")
	require.NoError(t, err)
	assert.Zero(t, accepted)

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[queue.StatusPending])
	assert.Equal(t, 1, counts[queue.StatusSkipped], "duplicate surfaces as a skipped item")
}

func TestConcurrentSubmitAcceptsExactlyOne(t *testing.T) {
	store := queue.NewStore(jstest.CreateTestDB(t))

	// Two independent services over one store, submitting the same URL
	// at once. The busy pre-check cannot see the other side's insert;
	// the root uniqueness index must break the tie.
	records := []RawJobRecord{{URL: "https://acme.example/jobs/1"}}

	const submitters = 2
	results := make([]int, submitters)
	errs := make([]error, submitters)

	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc := NewService(store, logger.NewTestLogger())
			results[i], errs[i] = svc.Submit(context.Background(), records, "feed")
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < submitters; i++ {
		require.NoError(t, errs[i])
		total += results[i]
	}
	assert.Equal(t, 1, total, "exactly one submitter accepts the record")

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[queue.StatusPending])
}

func TestSubmitNormalizesBeforeDedup(t *testing.T) {
	svc, store := newTestService(t)

	accepted, err := svc.Submit(context.Background(), []RawJobRecord{
		{URL: "https://Acme.Example/jobs/1/"},
		{URL: "https://acme.example/jobs/1#apply"},
	}, "feed")
	require.NoError(t, err)
	assert.Equal(t, 1, accepted, "URL variants collapse to one source key")

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[queue.StatusPending])
}

func TestSubmitSkipsCompletedSourceKeys(t *testing.T) {
	svc, store := newTestService(t)

	done, err := queue.NewItem(queue.ItemTypeJob, "https://acme.example/jobs/1", queue.NewLineage(), nil)
	require.NoError(t, err)
	done.Advance() // filter
	done.Advance() // analyze
	done.Advance() // save
	done.Advance() // success
	require.Equal(t, queue.StatusSuccess, done.Status)
	require.NoError(t, store.Insert(done))

	accepted, err := svc.Submit(context.Background(), []RawJobRecord{
		{URL: "https://acme.example/jobs/1"},
	}, "feed")
	require.NoError(t, err)
	assert.Zero(t, accepted, "already-processed work is never re-queued")
}

func TestSubmitDropsInvalidURLs(t *testing.T) {
	svc, store := newTestService(t)

	accepted, err := svc.Submit(context.Background(), []RawJobRecord{
		{URL: "not a url ::"},
		{URL: "ftp://example.com/jobs"},
		{URL: "https://acme.example/jobs/1"},
	}, "feed")
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[queue.StatusPending], "invalid records leave no trace in the queue")
}

func TestSubmitFailedItemsAreRetriedViaResubmission(t *testing.T) {
	svc, store := newTestService(t)

	failed, err := queue.NewItem(queue.ItemTypeJob, "https://acme.example/jobs/1", queue.NewLineage(), nil)
	require.NoError(t, err)
	failed.Fail(assert.AnError)
	require.NoError(t, store.Insert(failed))

	accepted, err := svc.Submit(context.Background(), []RawJobRecord{
		{URL: "https://acme.example/jobs/1"},
	}, "feed")
	require.NoError(t, err)
	assert.Equal(t, 1, accepted, "failed work does not block a fresh attempt")
}

func TestSubmitCancelledContext(t *testing.T) {
	svc, _ := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Submit(ctx, []RawJobRecord{{URL: "https://acme.example/jobs/1"}}, "feed")
	require.Error(t, err)
}
