// Package queue implements the self-spawning work queue: durable items,
// lineage tracking, the spawn guard, and the polling driver.
package queue

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/teliris/jobscout/errors"
)

// Lineage identifies the chain of derived work an item belongs to.
//
// TrackingID names the origin of the chain and is inherited unchanged by
// every descendant. AncestryChain holds the source keys of all ancestors,
// origin first, immediate parent last. Spawn depth is always
// len(AncestryChain); it is derived, never stored separately, so the two
// cannot drift apart.
//
// A Lineage is only ever built by NewLineage or DeriveLineage. Callers
// never hand-assemble one.
type Lineage struct {
	TrackingID    string   `json:"tracking_id"`
	AncestryChain []string `json:"ancestry_chain,omitempty"`
}

// NewLineage starts a fresh chain for an intake item.
func NewLineage() Lineage {
	return Lineage{TrackingID: uuid.NewString()}
}

// DeriveLineage computes the lineage for a child spawned from parent.
// Pure: no side effects, deterministic given the parent.
func DeriveLineage(parent *Item) Lineage {
	chain := make([]string, 0, len(parent.Lineage.AncestryChain)+1)
	chain = append(chain, parent.Lineage.AncestryChain...)
	chain = append(chain, parent.SourceKey)
	return Lineage{
		TrackingID:    parent.Lineage.TrackingID,
		AncestryChain: chain,
	}
}

// Depth returns the spawn depth, defined as the ancestry chain length.
func (l Lineage) Depth() int {
	return len(l.AncestryChain)
}

// Contains reports whether sourceKey appears anywhere in the ancestry chain.
func (l Lineage) Contains(sourceKey string) bool {
	for _, ancestor := range l.AncestryChain {
		if ancestor == sourceKey {
			return true
		}
	}
	return false
}

// Validate checks the lineage invariants: a tracking ID is present and the
// ancestry chain holds no duplicate entries.
func (l Lineage) Validate() error {
	if l.TrackingID == "" {
		return errors.Wrap(errors.ErrValidation, "lineage missing tracking_id")
	}
	seen := make(map[string]struct{}, len(l.AncestryChain))
	for _, ancestor := range l.AncestryChain {
		if ancestor == "" {
			return errors.Wrap(errors.ErrValidation, "lineage ancestry chain contains empty source key")
		}
		if _, dup := seen[ancestor]; dup {
			return errors.Wrapf(errors.ErrValidation, "lineage ancestry chain repeats %q", ancestor)
		}
		seen[ancestor] = struct{}{}
	}
	return nil
}

// MarshalChain converts the ancestry chain to its JSON column form.
func (l Lineage) MarshalChain() (string, error) {
	if len(l.AncestryChain) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(l.AncestryChain)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal ancestry chain")
	}
	return string(data), nil
}

// UnmarshalChain parses the JSON column form of an ancestry chain.
func UnmarshalChain(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var chain []string
	if err := json.Unmarshal([]byte(data), &chain); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal ancestry chain")
	}
	return chain, nil
}
