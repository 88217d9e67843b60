package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/spigell/bpmatch/internal/ai"
	"github.com/spigell/bpmatch/internal/logger"
)

const defaultModel = "gpt-4o-mini"

// A zero temperature is dropped by omitempty and the server falls back to its
// own default, so the smallest positive value stands in for zero.
const zeroTemperature = math.SmallestNonzeroFloat32

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Client talks to OpenAI or any OpenAI-compatible server, such as a local
// inference backend reachable through BaseURL.
type Client struct {
	client    chatCompleter
	model     string
	maxLogLen int
	logger    *zap.Logger
}

var _ ai.Completer = (*Client)(nil)

type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxLogLength int
}

func New(opts Options, log *zap.Logger) (*Client, error) {
	baseURL := strings.TrimSpace(opts.BaseURL)
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" && baseURL == "" {
		return nil, errors.New("openai api key is required unless a local base url is configured")
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = 200
	}

	return &Client{
		client:    goopenai.NewClientWithConfig(cfg),
		model:     model,
		maxLogLen: maxLogLen,
		logger:    logger.WithCommonFields(log, ai.ProviderOpenAI, model),
	}, nil
}

func (c *Client) Provider() string { return ai.ProviderOpenAI }

func (c *Client) Model() string { return c.model }

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	log := c.logger
	if log == nil {
		log = zap.NewNop()
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if system = strings.TrimSpace(system); system != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: user})

	log.Debug("openai request", zap.String("message_preview", logger.TruncateForLog(user, c.maxLogLen)))

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: zeroTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("openai api returned no choices")
	}

	output := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.Debug("openai response", zap.String("response_preview", logger.TruncateForLog(output, c.maxLogLen)))

	return output, nil
}
