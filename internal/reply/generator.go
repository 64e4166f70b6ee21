package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/orivon/pagerelay/internal/models"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// noReplySentinel is what the model outputs when a message warrants no
// response (greetings already answered, spam, receipts pasted as text).
const noReplySentinel = "NO_REPLY"

// GPTGenerator produces customer-facing replies with a chat completion.
type GPTGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewGPTGenerator(apiKey, model string, maxTokens int, temperature float64, logger *zap.Logger) *GPTGenerator {
	return &GPTGenerator{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

// Generate returns the reply text for an inbound customer message, or ""
// when the model decides no reply is needed.
func (g *GPTGenerator) Generate(ctx context.Context, t *models.Tenant, messageText string) (string, error) {
	systemPrompt := fmt.Sprintf(`You are the customer-service assistant for the business %q.
Answer the customer's message briefly and helpfully, in the language the customer used.
If the message does not call for any response, reply with exactly %s.`, t.Name, noReplySentinel)

	resp, err := g.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: messageText,
				},
			},
			MaxTokens:   g.maxTokens,
			Temperature: float32(g.temperature),
		},
	)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" || strings.EqualFold(text, noReplySentinel) {
		g.logger.Debug("Model declined to reply", zap.String("tenant_id", t.ID))
		return "", nil
	}

	return text, nil
}
