package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teliris/jobscout/errors"
)

// ItemType identifies what kind of entity a queue item concerns
type ItemType string

const (
	ItemTypeJob             ItemType = "job"
	ItemTypeCompany         ItemType = "company"
	ItemTypeSourceDiscovery ItemType = "source_discovery"
)

// Stage is a pipeline step within an item type's stage sequence
type Stage string

const (
	// Job stages
	StageScrape  Stage = "scrape"
	StageFilter  Stage = "filter"
	StageAnalyze Stage = "analyze"
	StageSave    Stage = "save"

	// Company and source discovery stages (save is shared)
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
)

// stageSequences defines the strictly-forward stage order per item type.
var stageSequences = map[ItemType][]Stage{
	ItemTypeJob:             {StageScrape, StageFilter, StageAnalyze, StageSave},
	ItemTypeCompany:         {StageFetch, StageExtract, StageSave},
	ItemTypeSourceDiscovery: {StageFetch, StageExtract, StageSave},
}

// IsValidType returns true if the string is a known item type
func IsValidType(s string) bool {
	_, ok := stageSequences[ItemType(s)]
	return ok
}

// FirstStage returns the initial stage for an item type.
func FirstStage(t ItemType) Stage {
	return stageSequences[t][0]
}

// NextStage returns the stage after s for type t, or false if s is the
// final stage.
func NextStage(t ItemType, s Stage) (Stage, bool) {
	seq := stageSequences[t]
	for i, stage := range seq {
		if stage == s && i+1 < len(seq) {
			return seq[i+1], true
		}
	}
	return "", false
}

// IsFinalStage reports whether s is the last stage for type t.
func IsFinalStage(t ItemType, s Stage) bool {
	seq := stageSequences[t]
	return len(seq) > 0 && seq[len(seq)-1] == s
}

// Status represents the current state of a queue item
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusFiltered   Status = "filtered"
	StatusSkipped    Status = "skipped"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{
	StatusPending, StatusProcessing, StatusSuccess,
	StatusFailed, StatusFiltered, StatusSkipped,
}

// IsTerminal reports whether the status ends an item's lifecycle.
// Intermediate stage completions never persist a terminal status; they
// advance the stage and return the item to pending.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusFiltered, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusSuccess,
		StatusFailed, StatusFiltered, StatusSkipped:
		return true
	default:
		return false
	}
}

// Item is the unit of work in the discovery pipeline.
//
// Items are created by intake (fresh lineage) or by the spawn guard
// (derived lineage). The driver claims them (pending -> processing) and
// stage handlers advance them through their type's stage sequence.
// Version backs optimistic concurrency in the store.
type Item struct {
	ID            string          `json:"id"`
	Type          ItemType        `json:"type"`
	Stage         Stage           `json:"stage"`
	Status        Status          `json:"status"`
	Lineage       Lineage         `json:"lineage"`
	SourceKey     string          `json:"source_key"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         string          `json:"error,omitempty"`
	RetryCount    int             `json:"retry_count,omitempty"`
	Version       int64           `json:"version"`
	NextAttemptAt *time.Time      `json:"next_attempt_at,omitempty"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// NewItem creates a pending item at the first stage of its type.
// The lineage must come from NewLineage or DeriveLineage; it is validated
// here so a hand-assembled inconsistent lineage cannot enter the store.
func NewItem(t ItemType, sourceKey string, lineage Lineage, payload json.RawMessage) (*Item, error) {
	if !IsValidType(string(t)) {
		return nil, errors.Wrapf(errors.ErrValidation, "unknown item type %q", t)
	}
	if sourceKey == "" {
		return nil, errors.Wrap(errors.ErrValidation, "item missing source key")
	}
	if err := lineage.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Item{
		ID:        uuid.NewString(),
		Type:      t,
		Stage:     FirstStage(t),
		Status:    StatusPending,
		Lineage:   lineage,
		SourceKey: sourceKey,
		Payload:   payload,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Claim marks the item as processing. Only the store's atomic claim calls
// this after winning the conditional update.
func (i *Item) Claim() {
	now := time.Now().UTC()
	i.Status = StatusProcessing
	i.ClaimedAt = &now
	i.NextAttemptAt = nil
	i.UpdatedAt = now
}

// Release returns a processing item to pending without consuming a status,
// used on cooperative cancellation.
func (i *Item) Release() {
	i.Status = StatusPending
	i.ClaimedAt = nil
	i.UpdatedAt = time.Now().UTC()
}

// Advance moves the item to the next stage of its sequence, or marks it
// success if the current stage is the final one. Retry count resets on
// stage advance; retry re-enters the same stage, never an earlier one.
func (i *Item) Advance() {
	now := time.Now().UTC()
	if next, ok := NextStage(i.Type, i.Stage); ok {
		i.Stage = next
		i.Status = StatusPending
		i.RetryCount = 0
		i.ClaimedAt = nil
		i.Error = ""
		i.UpdatedAt = now
		return
	}
	i.Status = StatusSuccess
	i.CompletedAt = &now
	i.ClaimedAt = nil
	i.UpdatedAt = now
}

// ScheduleRetry re-queues the item at the same stage after backoff.
func (i *Item) ScheduleRetry(backoff time.Duration, cause error) {
	now := time.Now().UTC()
	at := now.Add(backoff)
	i.Status = StatusPending
	i.RetryCount++
	i.ClaimedAt = nil
	i.NextAttemptAt = &at
	if cause != nil {
		i.Error = cause.Error()
	}
	i.UpdatedAt = now
}

// Fail marks the item as failed with the error recorded.
func (i *Item) Fail(err error) {
	now := time.Now().UTC()
	i.Status = StatusFailed
	if err != nil {
		i.Error = err.Error()
	}
	i.ClaimedAt = nil
	i.CompletedAt = &now
	i.UpdatedAt = now
}

// Terminate ends the item with a non-failure terminal status (filtered,
// skipped) and records the reason.
func (i *Item) Terminate(status Status, reason string) {
	now := time.Now().UTC()
	i.Status = status
	i.Error = reason
	i.ClaimedAt = nil
	i.CompletedAt = &now
	i.UpdatedAt = now
}
