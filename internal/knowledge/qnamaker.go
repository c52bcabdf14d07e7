// ABOUTME: QnA Maker generateAnswer REST client
// ABOUTME: Posts the question to the configured knowledge base and normalizes scores to [0, 1]

package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// QnAMakerConfig identifies a published QnA Maker knowledge base.
type QnAMakerConfig struct {
	Host            string // e.g. https://my-qna.azurewebsites.net/qnamaker
	KnowledgeBaseID string
	EndpointKey     string
	Top             int
	ScoreThreshold  float64
}

// QnAMaker queries a QnA Maker knowledge base.
type QnAMaker struct {
	cfg    QnAMakerConfig
	client *http.Client
}

// NewQnAMaker creates a QnA Maker client. A nil client uses http.DefaultClient.
func NewQnAMaker(cfg QnAMakerConfig, client *http.Client) *QnAMaker {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Top <= 0 {
		cfg.Top = 1
	}
	return &QnAMaker{cfg: cfg, client: client}
}

type generateAnswerRequest struct {
	Question string `json:"question"`
	Top      int    `json:"top"`
}

type generateAnswerResponse struct {
	Answers []struct {
		Answer    string   `json:"answer"`
		Score     float64  `json:"score"` // 0-100
		Questions []string `json:"questions"`
	} `json:"answers"`
}

// Query asks the knowledge base and returns answers above the score threshold.
func (q *QnAMaker) Query(ctx context.Context, text string) ([]Answer, error) {
	body, err := json.Marshal(generateAnswerRequest{Question: text, Top: q.cfg.Top})
	if err != nil {
		return nil, fmt.Errorf("encoding qna request: %w", err)
	}

	url := fmt.Sprintf("%s/knowledgebases/%s/generateAnswer",
		strings.TrimSuffix(q.cfg.Host, "/"), q.cfg.KnowledgeBaseID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating qna request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "EndpointKey "+q.cfg.EndpointKey)

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling qna maker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("qna maker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out generateAnswerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding qna response: %w", err)
	}

	answers := make([]Answer, 0, len(out.Answers))
	for _, a := range out.Answers {
		ans := Answer{Text: a.Answer, Score: a.Score / 100}
		if len(a.Questions) > 0 {
			ans.Question = a.Questions[0]
		}
		answers = append(answers, ans)
	}

	return filter(answers, q.cfg.ScoreThreshold, q.cfg.Top), nil
}
