package intelligence

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/orgscan/backend/pkg/circuitbreaker"
	"github.com/orgscan/backend/pkg/logger"
	"github.com/orgscan/backend/pkg/retry"
)

// EmbeddingClient implements the embedding collaborator on the
// OpenAI embeddings API.
type EmbeddingClient struct {
	client      *openai.Client
	model       string
	cb          *circuitbreaker.Breaker
	retryPolicy retry.Policy
	configured  bool
}

func NewEmbeddingClient(apiKey, model string) *EmbeddingClient {
	cb := circuitbreaker.New("embedding", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         time.Minute,
		Logger:           logger.Named("embedding"),
	})

	retryPolicy := retry.DefaultPolicy()
	retryPolicy.Logger = logger.Named("embedding")

	logger.Info("Embedding client initialized", zap.String("model", model))

	return &EmbeddingClient{
		client:      openai.NewClient(apiKey),
		model:       model,
		cb:          cb,
		retryPolicy: retryPolicy,
		configured:  apiKey != "",
	}
}

// Ready reports whether the embedding stage can run at all. A tripped
// breaker also reads as not ready so analyses skip the stage fast
// instead of queueing on a dead provider.
func (e *EmbeddingClient) Ready() bool {
	return e.configured && e.cb.State() != circuitbreaker.StateOpen
}

func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if !e.configured {
		return nil, fmt.Errorf("embedding provider not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embedding []float64
	err := e.cb.Execute(func() error {
		return e.retryPolicy.Do(ctx, "generate_embedding", func() error {
			resp, err := e.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(e.model),
				},
			)
			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}
			if len(resp.Data) == 0 {
				return fmt.Errorf("empty embedding response")
			}

			embedding = make([]float64, len(resp.Data[0].Embedding))
			for i, v := range resp.Data[0].Embedding {
				embedding[i] = float64(v)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Embedding generated", zap.Int("dimensions", len(embedding)))
	return embedding, nil
}
