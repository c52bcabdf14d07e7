// ABOUTME: Knowledge-base lookup interface and shared answer filtering
// ABOUTME: Backends return scored answers; callers treat an empty list as no match

package knowledge

import (
	"context"
	"sort"
	"time"

	"github.com/2389/alexa-bridge/internal/metrics"
)

// Answer is one scored knowledge-base answer. Score is normalized to [0, 1].
type Answer struct {
	Text     string  `json:"answer"`
	Score    float64 `json:"score"`
	Question string  `json:"question,omitempty"`
}

// Base answers free-text questions.
type Base interface {
	Query(ctx context.Context, text string) ([]Answer, error)
}

// None is a Base that never matches.
type None struct{}

// Query always returns no answers.
func (None) Query(context.Context, string) ([]Answer, error) {
	return nil, nil
}

// filter drops answers scoring below threshold and sorts the rest best first.
func filter(answers []Answer, threshold float64, top int) []Answer {
	kept := make([]Answer, 0, len(answers))
	for _, a := range answers {
		if a.Score >= threshold && a.Text != "" {
			kept = append(kept, a)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if top > 0 && len(kept) > top {
		kept = kept[:top]
	}
	return kept
}

// instrumented wraps a Base with a per-query timeout and lookup metrics.
type instrumented struct {
	base    Base
	name    string
	timeout time.Duration
}

func (b *instrumented) Query(ctx context.Context, text string) ([]Answer, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	answers, err := b.base.Query(ctx, text)
	switch {
	case err != nil:
		metrics.KnowledgeQueries.WithLabelValues(b.name, "error").Inc()
	case len(answers) == 0:
		metrics.KnowledgeQueries.WithLabelValues(b.name, "miss").Inc()
	default:
		metrics.KnowledgeQueries.WithLabelValues(b.name, "hit").Inc()
	}
	return answers, err
}
