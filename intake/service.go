// Package intake accepts externally sourced job records and seeds the
// queue with fresh-lineage job items. Intake is the only entry point
// that creates roots; everything else in the queue descends from one.
package intake

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/teliris/jobscout/errors"
	"github.com/teliris/jobscout/pipeline"
	"github.com/teliris/jobscout/queue"
)

// RawJobRecord is one record from an external source, typically a JSON
// export from a search or an aggregator feed.
type RawJobRecord struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Company string `json:"company,omitempty"`
}

// Service normalizes and deduplicates submissions.
type Service struct {
	store *queue.Store
	log   *zap.SugaredLogger
}

func NewService(store *queue.Store, log *zap.SugaredLogger) *Service {
	return &Service{store: store, log: log.Named("intake")}
}

// Submit seeds one job item per record and returns how many were
// accepted. Deduplication is global, not lineage-scoped: a record whose
// normalized URL is already in flight or already succeeded anywhere is
// recorded as a skipped item rather than re-worked, so repeat
// submissions of the same feed are harmless. The busy pre-check is
// backstopped by a unique index on in-flight root source keys, so
// concurrent submitters of the same URL resolve at the insert: exactly
// one is accepted. Records with invalid URLs are logged and dropped.
func (s *Service) Submit(ctx context.Context, records []RawJobRecord, source string) (int, error) {
	accepted := 0
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return accepted, errors.Wrap(err, "intake cancelled")
		}

		key, err := pipeline.NormalizeURL(record.URL)
		if err != nil {
			s.log.Warnw("Dropping record with invalid URL",
				"url", record.URL, "source", source, "error", err)
			continue
		}

		busy, err := s.store.SourceKeyBusy(key)
		if err != nil {
			return accepted, errors.Wrap(err, "intake dedup check failed")
		}
		if busy {
			if err := s.recordSkip(record, key, source); err != nil {
				return accepted, err
			}
			continue
		}

		item, err := s.newJobItem(record, key)
		if err != nil {
			return accepted, err
		}
		if err := s.store.Insert(item); err != nil {
			if errors.Is(err, errors.ErrDuplicatePending) {
				// A concurrent submitter won the root-uniqueness race
				// between our busy check and this insert; recorded like
				// any other duplicate.
				if err := s.recordSkip(record, key, source); err != nil {
					return accepted, err
				}
				continue
			}
			return accepted, err
		}

		accepted++
		s.log.Infow("Accepted job record",
			"item_id", item.ID,
			"source_key", key,
			"source", source,
			"tracking_id", item.Lineage.TrackingID)
	}

	s.log.Infow("Intake submission finished",
		"source", source,
		"records", len(records),
		"accepted", accepted)
	return accepted, nil
}

func (s *Service) newJobItem(record RawJobRecord, key string) (*queue.Item, error) {
	payload, err := json.Marshal(pipeline.JobPayload{
		Title:   record.Title,
		Company: record.Company,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding seed payload")
	}
	return queue.NewItem(queue.ItemTypeJob, key, queue.NewLineage(), payload)
}

// recordSkip persists a terminal skipped item so duplicate submissions
// show up in status counts instead of vanishing silently.
func (s *Service) recordSkip(record RawJobRecord, key, source string) error {
	item, err := s.newJobItem(record, key)
	if err != nil {
		return err
	}
	item.Terminate(queue.StatusSkipped, fmt.Sprintf("duplicate submission from %s", source))

	if err := s.store.Insert(item); err != nil {
		return errors.Wrap(err, "recording skipped submission")
	}
	s.log.Debugw("Skipped duplicate record", "source_key", key, "source", source)
	return nil
}
