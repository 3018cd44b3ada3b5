package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// ScoreResult is the verdict of the analyze stage.
type ScoreResult struct {
	Score     float64 `json:"score"`     // 0.0 to 1.0
	Rationale string  `json:"rationale"` // Human-readable explanation
}

// Scorer judges how well a posting matches the profile being hunted for.
// Implementations are a black box to the rest of the pipeline; scoring
// runs under its own timeout and a transient error retries the analyze
// stage like any other.
type Scorer interface {
	Score(ctx context.Context, payload *JobPayload) (ScoreResult, error)
}

// KeywordScorer scores by the fraction of configured keywords present in
// the posting text. A stand-in for an external scoring service, but
// deterministic enough to run the pipeline end to end.
type KeywordScorer struct {
	keywords []string
}

// NewKeywordScorer lowercases and keeps the non-empty keywords.
func NewKeywordScorer(keywords []string) *KeywordScorer {
	s := &KeywordScorer{}
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			s.keywords = append(s.keywords, kw)
		}
	}
	return s
}

func (s *KeywordScorer) Score(_ context.Context, payload *JobPayload) (ScoreResult, error) {
	if len(s.keywords) == 0 {
		return ScoreResult{Score: 0.5, Rationale: "no keywords configured"}, nil
	}

	haystack := strings.ToLower(payload.Title + "\n" + payload.Description + "\n" + payload.Content)
	var matched []string
	for _, kw := range s.keywords {
		if strings.Contains(haystack, kw) {
			matched = append(matched, kw)
		}
	}

	score := float64(len(matched)) / float64(len(s.keywords))
	rationale := "no keywords matched"
	if len(matched) > 0 {
		rationale = fmt.Sprintf("matched %d/%d keywords: %s",
			len(matched), len(s.keywords), strings.Join(matched, ", "))
	}
	return ScoreResult{Score: score, Rationale: rationale}, nil
}
