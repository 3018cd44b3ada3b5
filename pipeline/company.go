package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/teliris/jobscout/errors"
	"github.com/teliris/jobscout/queue"
)

// CompanyHandler runs company items through fetch, extract and save. A
// company page advertising a careers board spawns a source_discovery
// item; postings linked directly spawn jobs.
type CompanyHandler struct {
	fetcher ContentFetcher
	log     *zap.SugaredLogger
}

func NewCompanyHandler(fetcher ContentFetcher, log *zap.SugaredLogger) *CompanyHandler {
	return &CompanyHandler{fetcher: fetcher, log: log.Named("company")}
}

func (h *CompanyHandler) Type() queue.ItemType { return queue.ItemTypeCompany }

func (h *CompanyHandler) Execute(ctx context.Context, item *queue.Item) (queue.Outcome, error) {
	switch item.Stage {
	case queue.StageFetch:
		return fetchStage(ctx, h.fetcher, item)
	case queue.StageExtract:
		return h.extract(item)
	case queue.StageSave:
		return compactStage(item)
	default:
		return queue.Outcome{}, errors.AssertionFailedf("company item in unknown stage %s", item.Stage)
	}
}

func (h *CompanyHandler) extract(item *queue.Item) (queue.Outcome, error) {
	var payload PagePayload
	if err := decodePayload(item.Payload, &payload); err != nil {
		return queue.Outcome{}, err
	}

	links := ExtractLinks(&Page{URL: item.SourceKey, Body: payload.Content})
	payload.Links = FilterLinks(links, maxSpawnsPerStage, LinkKindBoard, LinkKindJob)

	var spawns []queue.Candidate
	for _, l := range payload.Links {
		switch l.Kind {
		case LinkKindBoard:
			spawns = append(spawns, queue.Candidate{Type: queue.ItemTypeSourceDiscovery, SourceKey: l.URL})
		case LinkKindJob:
			spawns = append(spawns, queue.Candidate{Type: queue.ItemTypeJob, SourceKey: l.URL})
		}
	}

	raw, err := encodePayload(&payload)
	if err != nil {
		return queue.Outcome{}, err
	}
	return queue.Outcome{Advance: true, Payload: raw, Spawns: spawns}, nil
}

// fetchStage fetches the item's source page into a PagePayload. Shared by
// the company and source handlers, whose fetch stages are identical.
func fetchStage(ctx context.Context, fetcher ContentFetcher, item *queue.Item) (queue.Outcome, error) {
	page, err := fetcher.Fetch(ctx, item.SourceKey)
	if err != nil {
		return queue.Outcome{}, err
	}

	raw, err := encodePayload(&PagePayload{
		Title:   PageTitle(page),
		Content: page.Body,
	})
	if err != nil {
		return queue.Outcome{}, err
	}
	return queue.Outcome{Advance: true, Payload: raw}, nil
}

// compactStage drops the raw page content, keeping title and extracted
// links as the item's record.
func compactStage(item *queue.Item) (queue.Outcome, error) {
	var payload PagePayload
	if err := decodePayload(item.Payload, &payload); err != nil {
		return queue.Outcome{}, err
	}

	payload.Content = ""
	raw, err := encodePayload(&payload)
	if err != nil {
		return queue.Outcome{}, err
	}
	return queue.Outcome{Advance: true, Payload: raw}, nil
}
