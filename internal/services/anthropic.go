package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/chat-relay/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Anthropic provides an interface to the Anthropic API for large language model interactions. It implements
// the LLM interface and handles streaming chat completions using Claude models.
type Anthropic struct {
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	params    LLMParameters

	client *http.Client

	logger *slog.Logger
}

// AnthropicOption configures an Anthropic instance.
type AnthropicOption func(*Anthropic)

type anthropicChatRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	Stop        []string           `json:"stop_sequences,omitempty"`
	Stream      bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint = "https://api.anthropic.com/v1"
	anthropicAPIVersion  = "2023-06-01"
)

// WithAnthropicBaseURL points the client at a different API root, e.g. a proxy or a test server.
func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(a *Anthropic) {
		a.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithAnthropicHTTPClient replaces the default HTTP client.
func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(a *Anthropic) {
		a.client = client
	}
}

// WithAnthropicParameters sets the sampling parameters sent with every request.
func WithAnthropicParameters(params LLMParameters) AnthropicOption {
	return func(a *Anthropic) {
		a.params = params
	}
}

// NewAnthropic creates a new Anthropic instance with the specified API key, model name, and maximum
// token limit.
func NewAnthropic(apiKey, model string, maxTokens int, logger *slog.Logger, opts ...AnthropicOption) Anthropic {
	a := Anthropic{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		baseURL:   anthropicAPIEndpoint,
		client:    &http.Client{},
		logger:    logger.With(slog.String("module", "anthropic")),
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// extractSystemMessage splits the system messages off the conversation, since the messages API takes
// them as a separate field. Multiple system messages are joined with a blank line.
func extractSystemMessage(messages []models.Message) (string, []models.Message) {
	var system []string
	rest := make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}

// Chat streams responses from the Anthropic API for a given sequence of messages. It processes system
// messages separately and returns an iterator that yields response chunks and potential errors. The
// context can be used to cancel ongoing requests.
func (a Anthropic) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		systemMessage, ms := extractSystemMessage(messages)

		msgs := make([]anthropicMessage, len(ms))
		for i, msg := range ms {
			msgs[i] = anthropicMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			}
		}

		reqBody := anthropicChatRequest{
			Model:       a.model,
			Messages:    msgs,
			Stream:      true,
			System:      systemMessage,
			MaxTokens:   a.maxTokens,
			Temperature: a.params.Temperature,
			TopP:        a.params.TopP,
			Stop:        a.params.Stop,
		}

		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			yield("", fmt.Errorf("error marshaling request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			a.baseURL+"/messages", bytes.NewBuffer(jsonBody))
		if err != nil {
			yield("", fmt.Errorf("error creating request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", anthropicAPIVersion)

		resp, err := a.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield("", fmt.Errorf("anthropic error: %w", decodeAnthropicError(resp)))
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}
			switch ev.Type {
			case "error":
				var e anthropicError
				if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
					yield("", fmt.Errorf("error unmarshaling error: %w", err))
					return
				}
				yield("", fmt.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message))
				return
			case "message_stop":
				return
			case "content_block_delta":
				var res anthropicStreamResponse
				if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
					yield("", fmt.Errorf("error unmarshaling response: %w", err))
					return
				}
				if res.Delta.Text == "" {
					continue
				}
				if !yield(res.Delta.Text, nil) {
					return
				}
			default:
				a.logger.Debug("Skipping event", slog.String("type", ev.Type))
			}
		}
	}
}

func decodeAnthropicError(resp *http.Response) error {
	var e anthropicError
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error.Message == "" {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return fmt.Errorf("%s (status %d): %s", e.Error.Type, resp.StatusCode, e.Error.Message)
}
