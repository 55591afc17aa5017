package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	ctxpkg "github.com/stupiduntilnot/investbot/internal/context"
	modelpkg "github.com/stupiduntilnot/investbot/internal/model"
)

// DefaultMaxTokens bounds each reply.
const DefaultMaxTokens = 1024

// Client is an Anthropic Messages API provider.
type Client struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewClient creates an Anthropic client. baseURL may be empty.
func NewClient(apiKey, baseURL, model string, timeout time.Duration, maxRetries int) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(maxRetries),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &Client{
		client:    sdk.NewClient(opts...),
		model:     model,
		maxTokens: DefaultMaxTokens,
	}
}

// ChatCompletion sends the conversation to the Messages API.
func (c *Client) ChatCompletion(ctx context.Context, messages []ctxpkg.Message) (modelpkg.CompletionResponse, error) {
	system, params := toParams(messages)
	if len(params) == 0 {
		return modelpkg.CompletionResponse{}, fmt.Errorf("anthropic request has no user message")
	}

	req := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  params,
	}
	if system != "" {
		req.System = []sdk.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, req)
	if err != nil {
		return modelpkg.CompletionResponse{}, fmt.Errorf("anthropic messages request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	result := modelpkg.CompletionResponse{
		Content:      strings.TrimSpace(text.String()),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	if result.Content == "" {
		result.Content = modelpkg.EmptyResponse
	}
	return result, nil
}

// toParams splits system entries into the system prompt and folds the rest
// into the strictly alternating user/assistant list the API expects: leading
// assistant entries are dropped and consecutive same-role entries merged.
func toParams(messages []ctxpkg.Message) (string, []sdk.MessageParam) {
	var systemParts []string
	type turn struct {
		role  ctxpkg.Role
		parts []string
	}
	var turns []turn
	for _, m := range messages {
		switch m.Role {
		case ctxpkg.RoleSystem:
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}
			continue
		case ctxpkg.RoleAssistant:
			if len(turns) == 0 {
				continue
			}
		default:
			m.Role = ctxpkg.RoleUser
		}
		if n := len(turns); n > 0 && turns[n-1].role == m.Role {
			turns[n-1].parts = append(turns[n-1].parts, m.Content)
			continue
		}
		turns = append(turns, turn{role: m.Role, parts: []string{m.Content}})
	}

	params := make([]sdk.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := sdk.NewTextBlock(strings.Join(t.parts, "\n\n"))
		if t.role == ctxpkg.RoleAssistant {
			params = append(params, sdk.NewAssistantMessage(block))
		} else {
			params = append(params, sdk.NewUserMessage(block))
		}
	}
	return strings.Join(systemParts, "\n\n"), params
}
