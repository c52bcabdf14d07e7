// ABOUTME: Embedding functions for the local knowledge base
// ABOUTME: An offline feature-hashing embedder and a Gemini embedder via google.golang.org/genai

package knowledge

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"google.golang.org/genai"
)

// Embedder turns text into vectors. Documents and queries may embed differently.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// HashingDimension is the vector size of HashingEmbedder.
const HashingDimension = 512

// HashingEmbedder maps word unigrams and bigrams into a fixed-size vector.
// It needs no network and works well enough for short Q&A lists.
type HashingEmbedder struct{}

// EmbedDocument embeds a stored question.
func (HashingEmbedder) EmbedDocument(_ context.Context, text string) ([]float32, error) {
	return hashEmbed(text), nil
}

// EmbedQuery embeds a user question.
func (HashingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return hashEmbed(text), nil
}

func hashEmbed(text string) []float32 {
	vec := make([]float32, HashingDimension)
	words := tokenize(text)

	add := func(feature string, weight float32) {
		h := fnv.New32a()
		h.Write([]byte(feature))
		sum := h.Sum32()
		idx := sum % HashingDimension
		// The top bit picks the sign so collisions partly cancel out.
		if sum&(1<<31) != 0 {
			weight = -weight
		}
		vec[idx] += weight
	}

	for i, w := range words {
		add(w, 1)
		if i > 0 {
			add(words[i-1]+" "+w, 0.5)
		}
	}

	if len(words) == 0 {
		// chromem rejects zero vectors
		vec[0] = 1
	}
	normalize(vec)
	return vec
}

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// tokenize lowercases, strips accents, and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	folded, _, err := transform.String(foldAccents, strings.ToLower(text))
	if err != nil {
		folded = strings.ToLower(text)
	}
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalize performs L2 normalization in place.
func normalize(v []float32) {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	magnitude := float32(math.Sqrt(sum))
	if magnitude <= 0 {
		return
	}
	for i := range v {
		v[i] /= magnitude
	}
}

// GeminiEmbedder embeds text with a Gemini embedding model.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder creates a Gemini API client for model.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// EmbedDocument embeds a stored question.
func (g *GeminiEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery embeds a user question.
func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, "RETRIEVAL_QUERY")
}

func (g *GeminiEmbedder) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
	res, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		TaskType: taskType,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding with %s: %w", g.model, err)
	}
	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	vec := res.Embeddings[0].Values
	normalize(vec)
	return vec, nil
}
