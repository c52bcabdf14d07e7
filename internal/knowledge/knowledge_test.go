// ABOUTME: Tests for the knowledge backends
// ABOUTME: QnA Maker against an httptest server, local chromem index with the hashing embedder

package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/alexa-bridge/internal/config"
)

func TestQnAMaker_Query(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody generateAnswerRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"answers":[
			{"answer":"low","score":12.0,"questions":["q2"]},
			{"answer":"Soy un bot","score":87.5,"questions":["¿quién eres?"]}
		]}`))
	}))
	defer srv.Close()

	q := NewQnAMaker(QnAMakerConfig{
		Host:            srv.URL + "/qnamaker/",
		KnowledgeBaseID: "kb-1",
		EndpointKey:     "secret",
		Top:             3,
		ScoreThreshold:  0.3,
	}, srv.Client())

	answers, err := q.Query(context.Background(), "¿quién eres?")
	require.NoError(t, err)

	assert.Equal(t, "/qnamaker/knowledgebases/kb-1/generateAnswer", gotPath)
	assert.Equal(t, "EndpointKey secret", gotAuth)
	assert.Equal(t, "¿quién eres?", gotBody.Question)
	assert.Equal(t, 3, gotBody.Top)

	require.Len(t, answers, 1)
	assert.Equal(t, "Soy un bot", answers[0].Text)
	assert.InDelta(t, 0.875, answers[0].Score, 1e-9)
}

func TestQnAMaker_NoAnswerFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answers":[{"answer":"No good match found in KB.","score":0}]}`))
	}))
	defer srv.Close()

	q := NewQnAMaker(QnAMakerConfig{Host: srv.URL, KnowledgeBaseID: "kb", ScoreThreshold: 0.3}, nil)
	answers, err := q.Query(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestQnAMaker_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	q := NewQnAMaker(QnAMakerConfig{Host: srv.URL, KnowledgeBaseID: "kb"}, nil)
	_, err := q.Query(context.Background(), "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

var pairs = []Pair{
	{Question: "¿Quién eres?", Questions: []string{"¿Qué eres tú?"}, Answer: "Soy un demo de Alexa con Bot Framework."},
	{Question: "¿Qué hora es?", Answer: "No tengo reloj."},
	{Question: "¿Cuál es tu color favorito?", Answer: "El azul."},
}

func TestLocal_QueryMatches(t *testing.T) {
	ctx := context.Background()
	kb, err := NewLocal(ctx, pairs, HashingEmbedder{}, 0.3, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, kb.Len())

	answers, err := kb.Query(ctx, "quien eres")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "Soy un demo de Alexa con Bot Framework.", answers[0].Text)
	assert.GreaterOrEqual(t, answers[0].Score, 0.3)
}

func TestLocal_NoMatchBelowThreshold(t *testing.T) {
	ctx := context.Background()
	kb, err := NewLocal(ctx, pairs, HashingEmbedder{}, 0.3, 1)
	require.NoError(t, err)

	answers, err := kb.Query(ctx, "zanahorias moradas gigantes")
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestLocal_EmptyIndex(t *testing.T) {
	kb, err := NewLocal(context.Background(), nil, HashingEmbedder{}, 0.3, 1)
	require.NoError(t, err)

	answers, err := kb.Query(context.Background(), "hola")
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestLocal_RejectsPairWithoutAnswer(t *testing.T) {
	_, err := NewLocal(context.Background(), []Pair{{Question: "q"}}, HashingEmbedder{}, 0.3, 1)
	assert.Error(t, err)
}

func TestHashingEmbedder_FoldsAccentsAndCase(t *testing.T) {
	a := hashEmbed("¿Quién ERES?")
	b := hashEmbed("quien eres")
	assert.Equal(t, a, b)
}

func TestFilter(t *testing.T) {
	got := filter([]Answer{
		{Text: "a", Score: 0.2},
		{Text: "b", Score: 0.9},
		{Text: "c", Score: 0.5},
		{Text: "", Score: 0.99},
	}, 0.3, 1)

	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Text)
}

func TestOpen_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- question: "¿Quién eres?"
  answer: "Un bot."
`), 0644))

	base, err := Open(context.Background(), config.KnowledgeConfig{
		Backend:        "local",
		File:           path,
		Embedder:       "hashing",
		ScoreThreshold: 0.3,
		Top:            1,
		Timeout:        time.Second,
	}, nil)
	require.NoError(t, err)

	answers, err := base.Query(context.Background(), "quién eres")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "Un bot.", answers[0].Text)
}

func TestOpen_None(t *testing.T) {
	base, err := Open(context.Background(), config.KnowledgeConfig{Backend: "none"}, nil)
	require.NoError(t, err)

	answers, err := base.Query(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open(context.Background(), config.KnowledgeConfig{Backend: "elastic"}, nil)
	assert.Error(t, err)
}
