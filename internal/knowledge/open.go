// ABOUTME: Knowledge backend selection from configuration
// ABOUTME: Builds the none, qnamaker, or local backend and wraps it with timeout and metrics

package knowledge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/2389/alexa-bridge/internal/config"
)

// Open builds the knowledge base named by cfg.Backend.
func Open(ctx context.Context, cfg config.KnowledgeConfig, client *http.Client) (Base, error) {
	var base Base

	switch cfg.Backend {
	case "", "none":
		return None{}, nil

	case "qnamaker":
		base = NewQnAMaker(QnAMakerConfig{
			Host:            cfg.Host,
			KnowledgeBaseID: cfg.KnowledgeBaseID,
			EndpointKey:     cfg.EndpointKey,
			Top:             cfg.Top,
			ScoreThreshold:  cfg.ScoreThreshold,
		}, client)

	case "local":
		pairs, err := LoadPairs(cfg.File)
		if err != nil {
			return nil, err
		}

		var embedder Embedder = HashingEmbedder{}
		if cfg.Embedder == "gemini" {
			embedder, err = NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				return nil, err
			}
		}

		base, err = NewLocal(ctx, pairs, embedder, cfg.ScoreThreshold, cfg.Top)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown knowledge backend %q", cfg.Backend)
	}

	return &instrumented{base: base, name: cfg.Backend, timeout: cfg.Timeout}, nil
}
