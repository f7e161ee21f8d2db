// Package llm provides the Anthropic completion client used by the pipeline
// agents and the conversation API. It wraps anthropic-sdk-go behind a small
// message-list surface so callers never touch SDK types.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/warden-ci/warden/pkg/config"
)

// Role identifies a conversation participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// CallOptions carries per-call overrides. Zero values fall back to the
// configured defaults.
type CallOptions struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is a completed (non-streaming) model reply.
type Response struct {
	Content    string
	StopReason string
	Usage      Usage
}

// Caller is the single-completion surface agents depend on. Satisfied by
// *Client; tests inject stubs.
type Caller interface {
	Call(ctx context.Context, messages []Message, opts CallOptions) (*Response, error)
}

// MessagesClient captures the subset of the Anthropic SDK used by the
// client. It is satisfied by *sdk.MessageService so tests can pass fakes.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client issues completions against the Anthropic Messages API.
type Client struct {
	msg       MessagesClient
	model     string
	maxTokens int64
	timeout   time.Duration
}

// NewClient builds a Client from an Anthropic Messages client and resolved
// configuration.
func NewClient(msg MessagesClient, cfg *config.AnthropicConfig) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if cfg == nil || cfg.Model == "" {
		return nil, errors.New("anthropic model identifier is required")
	}
	return &Client{
		msg:       msg,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.RequestTimeout,
	}, nil
}

// NewFromConfig constructs a Client with the real Anthropic HTTP client,
// reading the API key from the configured environment variable.
func NewFromConfig(cfg *config.AnthropicConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("anthropic config is required")
	}
	apiKey := cfg.APIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key: %s is not set", cfg.APIKeyEnv)
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	ac := sdk.NewClient(opts...)
	return NewClient(&ac.Messages, cfg)
}

// Call issues a non-streaming completion and returns the concatenated
// assistant text. The configured request timeout bounds the call.
func (c *Client) Call(ctx context.Context, messages []Message, opts CallOptions) (*Response, error) {
	params, err := c.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg, err := c.msg.New(callCtx, *params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateResponse(msg)
}

// Stream issues a streaming completion. The returned Stream delivers text
// deltas until the model finishes; the caller's context bounds its
// lifetime, not the configured request timeout.
func (c *Client) Stream(ctx context.Context, messages []Message, opts CallOptions) (*Stream, error) {
	params, err := c.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}

	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic messages.new stream: %w", err)
	}
	return newStream(ctx, stream), nil
}

// buildParams encodes the message list. System messages become system
// blocks; the conversation needs at least one user or assistant turn.
func (c *Client) buildParams(messages []Message, opts CallOptions) (*sdk.MessageNewParams, error) {
	conversation := make([]sdk.MessageParam, 0, len(messages))
	var system []sdk.TextBlockParam

	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("at least one user or assistant message is required")
	}

	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := c.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	if maxTokens <= 0 {
		return nil, errors.New("max_tokens must be positive")
	}

	params := sdk.MessageNewParams{
		MaxTokens: maxTokens,
		Messages:  conversation,
		Model:     sdk.Model(model),
	}
	if len(system) > 0 {
		params.System = system
	}
	if opts.Temperature > 0 {
		params.Temperature = sdk.Float(opts.Temperature)
	}
	return &params, nil
}

func translateResponse(msg *sdk.Message) (*Response, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return &Response{
		Content:    content.String(),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}
