package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teliris/jobscout/config"
	"github.com/teliris/jobscout/errors"
	jstest "github.com/teliris/jobscout/internal/testing"
	"github.com/teliris/jobscout/logger"
	"github.com/teliris/jobscout/queue"
)

// fakeFetcher serves canned pages keyed by URL.
type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string) (*Page, error) {
	body, ok := f.pages[pageURL]
	if !ok {
		return nil, errors.Fatal(errors.Newf("status 404"), "fetching page")
	}
	return &Page{URL: pageURL, ContentType: "text/html", Body: body}, nil
}

func newStageItem(t *testing.T, itemType queue.ItemType, sourceKey string, stage queue.Stage) *queue.Item {
	t.Helper()
	item, err := queue.NewItem(itemType, sourceKey, queue.NewLineage(), nil)
	require.NoError(t, err)
	item.Stage = stage
	return item
}

func newJobHandler(t *testing.T, fetcher ContentFetcher) *JobHandler {
	t.Helper()
	return NewJobHandler(
		fetcher,
		NewRules(config.FilterConfig{ExcludeKeywords: []string{"unpaid"}}),
		NewKeywordScorer([]string{"go", "sqlite"}),
		NewMatchStore(jstest.CreateTestDB(t)),
		time.Second,
		0.5,
		logger.NewTestLogger(),
	)
}

const jobPostingHTML = `<html>
<head><title>Backend Engineer (Go)</title></head>
<body>
  <p>We use Go and SQLite.</p>
  <a href="https://www.linkedin.com/company/acme">Acme on LinkedIn</a>
  <a href="https://boards.greenhouse.io/acme">More openings</a>
</body>
</html>`

func TestJobHandlerScrape(t *testing.T) {
	const jobURL = "https://acme.example/jobs/1"
	handler := newJobHandler(t, &fakeFetcher{pages: map[string]string{jobURL: jobPostingHTML}})

	item := newStageItem(t, queue.ItemTypeJob, jobURL, queue.StageScrape)
	out, err := handler.Execute(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, out.Advance)

	var payload JobPayload
	require.NoError(t, decodePayload(out.Payload, &payload))
	assert.Equal(t, "Backend Engineer (Go)", payload.Title)
	assert.Contains(t, payload.Description, "We use Go and SQLite.")

	require.Len(t, out.Spawns, 2)
	assert.Equal(t, queue.ItemTypeCompany, out.Spawns[0].Type)
	assert.Equal(t, "https://www.linkedin.com/company/acme", out.Spawns[0].SourceKey)
	assert.Equal(t, queue.ItemTypeSourceDiscovery, out.Spawns[1].Type)
	assert.Equal(t, "https://boards.greenhouse.io/acme", out.Spawns[1].SourceKey)
}

func TestJobHandlerScrapePropagatesFetchErrors(t *testing.T) {
	handler := newJobHandler(t, &fakeFetcher{})

	item := newStageItem(t, queue.ItemTypeJob, "https://acme.example/jobs/404", queue.StageScrape)
	_, err := handler.Execute(context.Background(), item)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFatal))
}

func TestJobHandlerFilter(t *testing.T) {
	handler := newJobHandler(t, &fakeFetcher{})

	item := newStageItem(t, queue.ItemTypeJob, "https://acme.example/jobs/1", queue.StageFilter)
	var err error
	item.Payload, err = encodePayload(&JobPayload{Title: "Unpaid internship"})
	require.NoError(t, err)

	out, err := handler.Execute(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFiltered, out.Terminal)
	assert.Equal(t, "keyword excluded: unpaid", out.TerminalReason)

	item.Payload, err = encodePayload(&JobPayload{Title: "Backend Engineer"})
	require.NoError(t, err)
	out, err = handler.Execute(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, out.Advance)
	assert.Empty(t, out.Terminal)
}

func TestJobHandlerAnalyze(t *testing.T) {
	handler := newJobHandler(t, &fakeFetcher{})

	item := newStageItem(t, queue.ItemTypeJob, "https://acme.example/jobs/1", queue.StageAnalyze)
	var err error
	item.Payload, err = encodePayload(&JobPayload{Title: "Go Engineer", Description: "SQLite experience a plus"})
	require.NoError(t, err)

	out, err := handler.Execute(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, out.Advance)

	var payload JobPayload
	require.NoError(t, decodePayload(out.Payload, &payload))
	assert.InDelta(t, 1.0, payload.Score, 0.001)
	assert.True(t, payload.Qualified)
	assert.Contains(t, payload.Rationale, "2/2")
}

func TestJobHandlerSave(t *testing.T) {
	handler := newJobHandler(t, &fakeFetcher{})

	item := newStageItem(t, queue.ItemTypeJob, "https://acme.example/jobs/1", queue.StageSave)
	var err error
	item.Payload, err = encodePayload(&JobPayload{
		Title:     "Go Engineer",
		Content:   "<html>huge raw page</html>",
		Score:     0.9,
		Rationale: "matched 2/2 keywords: go, sqlite",
		Qualified: true,
	})
	require.NoError(t, err)

	out, err := handler.Execute(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, out.Advance)

	total, qualified, err := handler.matches.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, qualified)

	recent, err := handler.matches.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, item.ID, recent[0].ItemID)
	assert.Equal(t, item.SourceKey, recent[0].SourceKey)
	assert.InDelta(t, 0.9, recent[0].Score, 0.001)

	// Raw content dropped from the final payload
	var payload JobPayload
	require.NoError(t, decodePayload(out.Payload, &payload))
	assert.Empty(t, payload.Content)
	assert.Equal(t, "Go Engineer", payload.Title)
}

const careersPageHTML = `<html>
<head><title>Careers at Acme</title></head>
<body>
  <a href="https://boards.greenhouse.io/acme">Open roles</a>
  <a href="/jobs/99">Featured: Platform Engineer</a>
</body>
</html>`

func TestCompanyHandlerFetchAndExtract(t *testing.T) {
	const companyURL = "https://acme.example/company"
	fetcher := &fakeFetcher{pages: map[string]string{companyURL: careersPageHTML}}
	handler := NewCompanyHandler(fetcher, logger.NewTestLogger())

	item := newStageItem(t, queue.ItemTypeCompany, companyURL, queue.StageFetch)
	out, err := handler.Execute(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, out.Advance)

	var payload PagePayload
	require.NoError(t, decodePayload(out.Payload, &payload))
	assert.Equal(t, "Careers at Acme", payload.Title)
	assert.Contains(t, payload.Content, "Open roles")

	// Extract stage spawns from the fetched content
	item.Payload = out.Payload
	item.Stage = queue.StageExtract
	out, err = handler.Execute(context.Background(), item)
	require.NoError(t, err)
	require.Len(t, out.Spawns, 2)

	byKey := make(map[string]queue.ItemType)
	for _, c := range out.Spawns {
		byKey[c.SourceKey] = c.Type
	}
	assert.Equal(t, queue.ItemTypeSourceDiscovery, byKey["https://boards.greenhouse.io/acme"])
	assert.Equal(t, queue.ItemTypeJob, byKey["https://acme.example/jobs/99"])
}

func TestCompanyHandlerSaveCompactsPayload(t *testing.T) {
	handler := NewCompanyHandler(&fakeFetcher{}, logger.NewTestLogger())

	item := newStageItem(t, queue.ItemTypeCompany, "https://acme.example/company", queue.StageSave)
	var err error
	item.Payload, err = encodePayload(&PagePayload{
		Title:   "Careers at Acme",
		Content: "<html>raw</html>",
		Links:   []Link{{URL: "https://acme.example/jobs/99", Kind: LinkKindJob}},
	})
	require.NoError(t, err)

	out, err := handler.Execute(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, out.Advance)

	var payload PagePayload
	require.NoError(t, decodePayload(out.Payload, &payload))
	assert.Empty(t, payload.Content)
	assert.Equal(t, "Careers at Acme", payload.Title)
	assert.Len(t, payload.Links, 1)
}

const boardPageHTML = `<html>
<body>
  <a href="/jobs/1">Backend Engineer</a>
  <a href="/jobs/2">Data Engineer</a>
  <a href="/about">About us</a>
</body>
</html>`

func TestSourceHandlerExtractSpawnsJobs(t *testing.T) {
	const boardURL = "https://acme.example/careers"
	fetcher := &fakeFetcher{pages: map[string]string{boardURL: boardPageHTML}}
	handler := NewSourceHandler(fetcher, logger.NewTestLogger())

	item := newStageItem(t, queue.ItemTypeSourceDiscovery, boardURL, queue.StageFetch)
	out, err := handler.Execute(context.Background(), item)
	require.NoError(t, err)

	item.Payload = out.Payload
	item.Stage = queue.StageExtract
	out, err = handler.Execute(context.Background(), item)
	require.NoError(t, err)

	require.Len(t, out.Spawns, 2)
	for _, c := range out.Spawns {
		assert.Equal(t, queue.ItemTypeJob, c.Type)
	}
	assert.Equal(t, "https://acme.example/jobs/1", out.Spawns[0].SourceKey)
	assert.Equal(t, "https://acme.example/jobs/2", out.Spawns[1].SourceKey)
}
