package queue

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/teliris/jobscout/errors"
)

// Candidate describes a derived item a stage handler wants to spawn.
// The guard derives the lineage itself; handlers never supply one.
type Candidate struct {
	Type      ItemType        `json:"type"`
	SourceKey string          `json:"source_key"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SpawnGuard is the loop-prevention gate for derived work.
//
// Four checks run in order, short-circuiting on the first failure:
//
//  1. depth      - the candidate's spawn depth reached the ceiling
//  2. circular   - the candidate's source key is one of its own ancestors
//  3. duplicate  - the same work is already in flight in this lineage
//  4. completed  - the same work already succeeded in this lineage
//
// Each alone is insufficient: depth does not stop two-hop cycles,
// circularity does not cap acyclic fan-out, and the duplicate/completed
// checks prevent re-work without bounding either. The store's in-flight
// uniqueness index backs check 3 at write time, so a race between two
// concurrent spawn attempts resolves in the insert, not the pre-check.
type SpawnGuard struct {
	store    *Store
	maxDepth int
	log      *zap.SugaredLogger
}

// NewSpawnGuard creates a spawn guard with the given depth ceiling.
func NewSpawnGuard(store *Store, maxDepth int, log *zap.SugaredLogger) *SpawnGuard {
	return &SpawnGuard{
		store:    store,
		maxDepth: maxDepth,
		log:      log.Named("guard"),
	}
}

// spawnCheck is one gate in the ordered check pipeline.
type spawnCheck struct {
	name string
	fn   func(lineage Lineage, c Candidate) error
}

func (g *SpawnGuard) checks() []spawnCheck {
	return []spawnCheck{
		{"depth", g.checkDepth},
		{"circular", g.checkCircular},
		{"duplicate_pending", g.checkDuplicatePending},
		{"already_completed", g.checkAlreadyCompleted},
	}
}

// Request decides whether the candidate spawn may be created and, if so,
// inserts it. Returns the created item, or a spawn rejection sentinel
// (see errors.IsSpawnRejection). Rejections are expected outcomes: the
// caller logs them and continues processing the parent item.
func (g *SpawnGuard) Request(parent *Item, c Candidate) (*Item, error) {
	if c.SourceKey == "" {
		return nil, errors.Wrap(errors.ErrValidation, "spawn candidate missing source key")
	}

	lineage := DeriveLineage(parent)

	for _, check := range g.checks() {
		if err := check.fn(lineage, c); err != nil {
			g.log.Debugw("Spawn rejected",
				"check", check.name,
				"parent_id", parent.ID,
				"candidate_type", c.Type,
				"candidate_source_key", c.SourceKey,
				"tracking_id", lineage.TrackingID,
				"depth", lineage.Depth(),
				"error", err,
			)
			return nil, err
		}
	}

	item, err := NewItem(c.Type, c.SourceKey, lineage, c.Payload)
	if err != nil {
		return nil, err
	}

	if err := g.store.Insert(item); err != nil {
		// A concurrent spawn for the same (tracking_id, source_key) won
		// the insert race; surfaced as the same rejection the pre-check
		// would have produced.
		return nil, err
	}

	g.log.Infow("Spawned derived item",
		"item_id", item.ID,
		"type", item.Type,
		"source_key", item.SourceKey,
		"parent_id", parent.ID,
		"tracking_id", lineage.TrackingID,
		"depth", lineage.Depth(),
	)

	return item, nil
}

func (g *SpawnGuard) checkDepth(lineage Lineage, _ Candidate) error {
	if lineage.Depth() >= g.maxDepth {
		return errors.Wrapf(errors.ErrDepthExceeded,
			"depth %d >= max %d", lineage.Depth(), g.maxDepth)
	}
	return nil
}

func (g *SpawnGuard) checkCircular(lineage Lineage, c Candidate) error {
	if lineage.Contains(c.SourceKey) {
		return errors.Wrapf(errors.ErrCircularDependency,
			"source key %q is an ancestor of the candidate", c.SourceKey)
	}
	return nil
}

func (g *SpawnGuard) checkDuplicatePending(lineage Lineage, c Candidate) error {
	existing, err := g.store.FindInFlight(lineage.TrackingID, c.SourceKey)
	if err != nil {
		return errors.Wrap(err, "duplicate-pending check")
	}
	if existing != nil {
		return errors.Wrapf(errors.ErrDuplicatePending,
			"item %s already %s", existing.ID, existing.Status)
	}
	return nil
}

func (g *SpawnGuard) checkAlreadyCompleted(lineage Lineage, c Candidate) error {
	existing, err := g.store.FindCompleted(lineage.TrackingID, c.SourceKey)
	if err != nil {
		return errors.Wrap(err, "completion check")
	}
	if existing != nil {
		return errors.Wrapf(errors.ErrAlreadyCompleted,
			"item %s succeeded at %v", existing.ID, existing.CompletedAt)
	}
	return nil
}
