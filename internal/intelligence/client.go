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
	"github.com/orgscan/backend/pkg/textutil"
)

// documentWindow bounds how much extracted text is sent for analysis.
const documentWindow = 8000

const systemPrompt = `You are analyzing a certification document submitted by an organization requesting onboarding.

Extract the following information and detect any suspicious elements:

Required fields to extract:
- organization_name: The name of the organization
- registration_number: Official registration/license number
- issuing_authority: Government body that issued the license
- expiration_date: When the license/certificate expires (format: YYYY-MM-DD if found)
- address: Physical address of the organization

Also analyze for:
- Missing or incomplete information
- Expired licenses or certificates
- Inconsistent data (e.g., mismatched names, invalid numbers)
- Signs of document manipulation
- Suspicious patterns

Return ONLY a valid JSON object in this exact format:
{
  "organization_name": "string or null",
  "registration_number": "string or null",
  "issuing_authority": "string or null",
  "expiration_date": "string or null",
  "address": "string or null",
  "issues_found": ["list of issues detected"],
  "suspicious_elements": ["list of suspicious patterns"],
  "overall_assessment": "valid|suspicious|invalid"
}`

// Client implements the document-intelligence collaborator on an
// OpenAI-compatible chat completion API.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.Breaker
	retryPolicy retry.Policy
	configured  bool
}

func NewClient(apiKey, model string, temperature float32, maxTokens, timeoutSec int) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 30
	}

	cb := circuitbreaker.New("intelligence", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         time.Minute,
		Logger:           logger.Named("intelligence"),
	})

	retryPolicy := retry.DefaultPolicy()
	retryPolicy.Logger = logger.Named("intelligence")

	logger.Info("Intelligence client initialized", zap.String("model", model))

	return &Client{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     time.Duration(timeoutSec) * time.Second,
		cb:          cb,
		retryPolicy: retryPolicy,
		configured:  apiKey != "",
	}
}

func (c *Client) Configured() bool {
	return c.configured
}

// Analyze sends the document text for structured extraction and
// assessment and returns the raw model output verbatim. The caller
// owns fallback policy; any failure here surfaces as an error.
func (c *Client) Analyze(ctx context.Context, text string) (string, error) {
	if !c.configured {
		return "", fmt.Errorf("intelligence provider not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf("Document text:\n%s", textutil.Truncate(text, documentWindow))

	var raw string
	err := c.cb.Execute(func() error {
		return c.retryPolicy.Do(ctx, "analyze_document", func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model: c.model,
					Messages: []openai.ChatCompletionMessage{
						{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
						{Role: openai.ChatMessageRoleUser, Content: userPrompt},
					},
					Temperature: c.temperature,
					MaxTokens:   c.maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
				return fmt.Errorf("empty response from intelligence provider")
			}

			logger.Debug("Document analysis completed",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			raw = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return "", err
	}

	return raw, nil
}

// Healthy probes the provider with a minimal request.
func (c *Client) Healthy(ctx context.Context) bool {
	if !c.configured {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: "ping"},
			},
			MaxTokens: 1,
		},
	)
	if err != nil {
		logger.Warn("Intelligence health probe failed", zap.Error(err))
		return false
	}
	return len(resp.Choices) > 0
}
