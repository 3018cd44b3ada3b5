package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/teliris/jobscout/errors"
	"github.com/teliris/jobscout/queue"
)

// sourceSpawnBudget caps fan-out from a board page. Boards list many
// postings, so they get a wider budget than other stages.
const sourceSpawnBudget = 20

// SourceHandler runs source_discovery items through fetch, extract and
// save. A board page is where recursion fans out: every posting found
// becomes a job spawn candidate.
type SourceHandler struct {
	fetcher ContentFetcher
	log     *zap.SugaredLogger
}

func NewSourceHandler(fetcher ContentFetcher, log *zap.SugaredLogger) *SourceHandler {
	return &SourceHandler{fetcher: fetcher, log: log.Named("source")}
}

func (h *SourceHandler) Type() queue.ItemType { return queue.ItemTypeSourceDiscovery }

func (h *SourceHandler) Execute(ctx context.Context, item *queue.Item) (queue.Outcome, error) {
	switch item.Stage {
	case queue.StageFetch:
		return fetchStage(ctx, h.fetcher, item)
	case queue.StageExtract:
		return h.extract(item)
	case queue.StageSave:
		return compactStage(item)
	default:
		return queue.Outcome{}, errors.AssertionFailedf("source item in unknown stage %s", item.Stage)
	}
}

func (h *SourceHandler) extract(item *queue.Item) (queue.Outcome, error) {
	var payload PagePayload
	if err := decodePayload(item.Payload, &payload); err != nil {
		return queue.Outcome{}, err
	}

	links := ExtractLinks(&Page{URL: item.SourceKey, Body: payload.Content})
	payload.Links = FilterLinks(links, sourceSpawnBudget, LinkKindJob)

	spawns := make([]queue.Candidate, 0, len(payload.Links))
	for _, l := range payload.Links {
		spawns = append(spawns, queue.Candidate{Type: queue.ItemTypeJob, SourceKey: l.URL})
	}

	h.log.Debugw("Extracted postings from board",
		"source_key", item.SourceKey,
		"postings", len(spawns))

	raw, err := encodePayload(&payload)
	if err != nil {
		return queue.Outcome{}, err
	}
	return queue.Outcome{Advance: true, Payload: raw, Spawns: spawns}, nil
}
