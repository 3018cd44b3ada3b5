package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teliris/jobscout/errors"
	"github.com/teliris/jobscout/queue"
)

// maxSpawnsPerStage caps how many derived candidates one stage execution
// may request. The spawn guard bounds recursion by depth and uniqueness;
// this bounds fan-out width.
const maxSpawnsPerStage = 8

// descriptionLimit is how much page text is kept for filtering and
// scoring.
const descriptionLimit = 4000

// JobHandler runs job items through scrape, filter, analyze and save.
type JobHandler struct {
	fetcher      ContentFetcher
	rules        *Rules
	scorer       Scorer
	matches      *MatchStore
	scoreTimeout time.Duration
	minScore     float64
	log          *zap.SugaredLogger
}

// NewJobHandler wires the job pipeline stages together.
func NewJobHandler(fetcher ContentFetcher, rules *Rules, scorer Scorer, matches *MatchStore,
	scoreTimeout time.Duration, minScore float64, log *zap.SugaredLogger) *JobHandler {
	return &JobHandler{
		fetcher:      fetcher,
		rules:        rules,
		scorer:       scorer,
		matches:      matches,
		scoreTimeout: scoreTimeout,
		minScore:     minScore,
		log:          log.Named("job"),
	}
}

func (h *JobHandler) Type() queue.ItemType { return queue.ItemTypeJob }

func (h *JobHandler) Execute(ctx context.Context, item *queue.Item) (queue.Outcome, error) {
	switch item.Stage {
	case queue.StageScrape:
		return h.scrape(ctx, item)
	case queue.StageFilter:
		return h.filter(item)
	case queue.StageAnalyze:
		return h.analyze(ctx, item)
	case queue.StageSave:
		return h.save(item)
	default:
		return queue.Outcome{}, errors.AssertionFailedf("job item in unknown stage %s", item.Stage)
	}
}

// scrape fetches the posting and seeds the payload. Links spotted on the
// page become spawn candidates: company profiles directly, and boards
// that may host more postings.
func (h *JobHandler) scrape(ctx context.Context, item *queue.Item) (queue.Outcome, error) {
	// Intake may have seeded title or company; keep what the page
	// doesn't improve on
	var payload JobPayload
	if err := decodePayload(item.Payload, &payload); err != nil {
		return queue.Outcome{}, err
	}

	page, err := h.fetcher.Fetch(ctx, item.SourceKey)
	if err != nil {
		return queue.Outcome{}, err
	}

	if title := PageTitle(page); title != "" {
		payload.Title = title
	}
	payload.Description = PageText(page, descriptionLimit)
	payload.Content = page.Body

	raw, err := encodePayload(&payload)
	if err != nil {
		return queue.Outcome{}, err
	}

	links := ExtractLinks(page)
	var spawns []queue.Candidate
	for _, l := range FilterLinks(links, maxSpawnsPerStage, LinkKindCompany) {
		spawns = append(spawns, queue.Candidate{Type: queue.ItemTypeCompany, SourceKey: l.URL})
	}
	for _, l := range FilterLinks(links, maxSpawnsPerStage-len(spawns), LinkKindBoard) {
		spawns = append(spawns, queue.Candidate{Type: queue.ItemTypeSourceDiscovery, SourceKey: l.URL})
	}

	return queue.Outcome{Advance: true, Payload: raw, Spawns: spawns}, nil
}

func (h *JobHandler) filter(item *queue.Item) (queue.Outcome, error) {
	var payload JobPayload
	if err := decodePayload(item.Payload, &payload); err != nil {
		return queue.Outcome{}, err
	}

	if reason, excluded := h.rules.Evaluate(item.SourceKey, &payload); excluded {
		return queue.Outcome{Terminal: queue.StatusFiltered, TerminalReason: reason}, nil
	}
	return queue.Outcome{Advance: true}, nil
}

func (h *JobHandler) analyze(ctx context.Context, item *queue.Item) (queue.Outcome, error) {
	var payload JobPayload
	if err := decodePayload(item.Payload, &payload); err != nil {
		return queue.Outcome{}, err
	}

	scoreCtx, cancel := context.WithTimeout(ctx, h.scoreTimeout)
	defer cancel()

	result, err := h.scorer.Score(scoreCtx, &payload)
	if err != nil {
		if scoreCtx.Err() != nil && ctx.Err() == nil {
			// The scorer's own deadline fired, not a shutdown
			return queue.Outcome{}, errors.Transient(err, "scoring timed out")
		}
		return queue.Outcome{}, errors.Wrap(err, "scoring posting")
	}

	payload.Score = result.Score
	payload.Rationale = result.Rationale
	payload.Qualified = result.Score >= h.minScore

	raw, err := encodePayload(&payload)
	if err != nil {
		return queue.Outcome{}, err
	}
	return queue.Outcome{Advance: true, Payload: raw}, nil
}

// save writes the match record and drops the raw page content from the
// payload before the item completes.
func (h *JobHandler) save(item *queue.Item) (queue.Outcome, error) {
	var payload JobPayload
	if err := decodePayload(item.Payload, &payload); err != nil {
		return queue.Outcome{}, err
	}

	match := &Match{
		ItemID:    item.ID,
		SourceKey: item.SourceKey,
		Title:     payload.Title,
		Company:   payload.Company,
		Score:     payload.Score,
		Rationale: payload.Rationale,
		Qualified: payload.Qualified,
	}
	if err := h.matches.SaveMatch(match); err != nil {
		return queue.Outcome{}, errors.Transient(err, "saving match")
	}

	h.log.Infow("Saved match",
		"match_id", match.ID,
		"source_key", match.SourceKey,
		"score", match.Score,
		"qualified", match.Qualified)

	payload.Content = ""
	raw, err := encodePayload(&payload)
	if err != nil {
		return queue.Outcome{}, err
	}
	return queue.Outcome{Advance: true, Payload: raw}, nil
}
