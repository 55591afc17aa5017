package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	ctxpkg "github.com/stupiduntilnot/investbot/internal/context"
	modelpkg "github.com/stupiduntilnot/investbot/internal/model"
)

// DefaultBaseURL is the public OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1/"

// Client is an OpenAI chat completions provider.
type Client struct {
	client      sdk.Client
	model       string
	temperature float64
}

// NewClient creates an OpenAI client. A zero timeout leaves the SDK default
// in place; per-call deadlines still come from the caller's context.
func NewClient(apiKey, baseURL, model string, timeout time.Duration, maxRetries int) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(maxRetries),
	}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &Client{
		client:      sdk.NewClient(opts...),
		model:       model,
		temperature: 0.2,
	}
}

// ChatCompletion sends a chat completion request and returns a CompletionResponse.
func (c *Client) ChatCompletion(ctx context.Context, messages []ctxpkg.Message) (modelpkg.CompletionResponse, error) {
	resp, err := c.client.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(c.model),
		Messages:    toParams(messages),
		Temperature: sdk.Float(c.temperature),
	})
	if err != nil {
		return modelpkg.CompletionResponse{}, fmt.Errorf("openai chat completion failed: %w", err)
	}

	result := modelpkg.CompletionResponse{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) == 0 {
		result.Content = modelpkg.EmptyResponse
		return result, nil
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		result.Content = modelpkg.EmptyResponse
		return result, nil
	}
	result.Content = content
	return result, nil
}

func toParams(messages []ctxpkg.Message) []sdk.ChatCompletionMessageParamUnion {
	params := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case ctxpkg.RoleSystem:
			params = append(params, sdk.SystemMessage(m.Content))
		case ctxpkg.RoleAssistant:
			params = append(params, sdk.AssistantMessage(m.Content))
		default:
			params = append(params, sdk.UserMessage(m.Content))
		}
	}
	return params
}
