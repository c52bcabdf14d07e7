// ABOUTME: Local knowledge base backed by an in-memory chromem-go collection
// ABOUTME: Loads question/answer pairs from YAML and answers by embedding similarity

package knowledge

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
	"gopkg.in/yaml.v3"
)

// Pair is one entry of a local knowledge file. Alternate phrasings of the
// question may be listed under questions.
type Pair struct {
	Question  string   `yaml:"question"`
	Questions []string `yaml:"questions"`
	Answer    string   `yaml:"answer"`
}

// Local answers from Q&A pairs held in a chromem-go collection.
type Local struct {
	collection *chromem.Collection
	embedder   Embedder
	threshold  float64
	top        int
}

// LoadPairs reads Q&A pairs from a YAML file containing a list of pairs.
func LoadPairs(path string) ([]Pair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge file: %w", err)
	}

	var pairs []Pair
	if err := yaml.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("parsing knowledge file: %w", err)
	}
	return pairs, nil
}

// NewLocal embeds every question in pairs and returns a ready knowledge base.
func NewLocal(ctx context.Context, pairs []Pair, embedder Embedder, threshold float64, top int) (*Local, error) {
	if top <= 0 {
		top = 1
	}

	db := chromem.NewDB()
	col, err := db.CreateCollection("knowledge", nil, embedder.EmbedDocument)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	var docs []chromem.Document
	for i, p := range pairs {
		if strings.TrimSpace(p.Answer) == "" {
			return nil, fmt.Errorf("knowledge pair %d has no answer", i)
		}
		questions := p.Questions
		if p.Question != "" {
			questions = append([]string{p.Question}, questions...)
		}
		for j, q := range questions {
			docs = append(docs, chromem.Document{
				ID:       strconv.Itoa(i) + "." + strconv.Itoa(j),
				Content:  q,
				Metadata: map[string]string{"answer": p.Answer},
			})
		}
	}

	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return nil, fmt.Errorf("indexing knowledge: %w", err)
		}
	}

	return &Local{
		collection: col,
		embedder:   embedder,
		threshold:  threshold,
		top:        top,
	}, nil
}

// Len returns the number of indexed questions.
func (l *Local) Len() int {
	return l.collection.Count()
}

// Query returns the best-matching answers at or above the score threshold.
func (l *Local) Query(ctx context.Context, text string) ([]Answer, error) {
	count := l.collection.Count()
	if count == 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}

	emb, err := l.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// Ask for extra results since several phrasings can share one answer.
	n := min(count, l.top*4)
	results, err := l.collection.QueryEmbedding(ctx, emb, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	seen := make(map[string]bool)
	answers := make([]Answer, 0, len(results))
	for _, r := range results {
		text := r.Metadata["answer"]
		if seen[text] {
			continue
		}
		seen[text] = true
		answers = append(answers, Answer{
			Text:     text,
			Score:    float64(r.Similarity),
			Question: r.Content,
		})
	}

	return filter(answers, l.threshold, l.top), nil
}
