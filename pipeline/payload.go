package pipeline

import (
	"encoding/json"

	"github.com/teliris/jobscout/errors"
)

// JobPayload accumulates what the stages learn about a posting. The
// scrape stage fills Title/Description/Content, analyze adds the score,
// and save drops the raw content before the item completes.
type JobPayload struct {
	Title       string  `json:"title,omitempty"`
	Company     string  `json:"company,omitempty"`
	Description string  `json:"description,omitempty"`
	Content     string  `json:"content,omitempty"`
	Score       float64 `json:"score,omitempty"`
	Rationale   string  `json:"rationale,omitempty"`
	Qualified   bool    `json:"qualified,omitempty"`
}

// PagePayload carries fetched content between the fetch and extract
// stages of company and source items.
type PagePayload struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Links   []Link `json:"links,omitempty"`
}

func decodePayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// A payload this process serialized should always round-trip;
		// malformed data will not fix itself on retry
		return errors.Fatal(err, "decoding item payload")
	}
	return nil
}

func encodePayload(in any) (json.RawMessage, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, errors.Fatal(err, "encoding item payload")
	}
	return raw, nil
}
