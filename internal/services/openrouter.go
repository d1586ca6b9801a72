package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/chat-relay/internal/models"
	"github.com/tmaxmax/go-sse"
)

// OpenRouter provides an implementation of the LLM interface for interacting with OpenRouter's language models.
type OpenRouter struct {
	apiKey  string
	model   string
	baseURL string
	params  LLMParameters

	client *http.Client

	logger *slog.Logger
}

// OpenRouterOption configures an OpenRouter instance.
type OpenRouterOption func(*OpenRouter)

type openRouterChatRequest struct {
	Model            string              `json:"model"`
	Messages         []openRouterMessage `json:"messages"`
	Stream           bool                `json:"stream"`
	Temperature      *float32            `json:"temperature,omitempty"`
	TopP             *float32            `json:"top_p,omitempty"`
	Stop             []string            `json:"stop,omitempty"`
	PresencePenalty  *float32            `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float32            `json:"frequency_penalty,omitempty"`
	Seed             *int                `json:"seed,omitempty"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterStreamingResponse struct {
	Choices []openRouterStreamingChoice `json:"choices"`
	Error   *openRouterError            `json:"error,omitempty"`
}

type openRouterStreamingChoice struct {
	Delta openRouterMessage `json:"delta"`
}

type openRouterError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

const (
	openRouterAPIEndpoint = "https://openrouter.ai/api/v1"
)

// WithOpenRouterBaseURL points the client at a different API root.
func WithOpenRouterBaseURL(baseURL string) OpenRouterOption {
	return func(o *OpenRouter) {
		o.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithOpenRouterParameters sets the sampling parameters sent with every request.
func WithOpenRouterParameters(params LLMParameters) OpenRouterOption {
	return func(o *OpenRouter) {
		o.params = params
	}
}

// NewOpenRouter creates a new OpenRouter instance with the specified API key and model name.
func NewOpenRouter(apiKey, model string, logger *slog.Logger, opts ...OpenRouterOption) OpenRouter {
	o := OpenRouter{
		apiKey:  apiKey,
		model:   model,
		baseURL: openRouterAPIEndpoint,
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "openrouter")),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Chat streams responses from the OpenRouter API for a given sequence of messages. It returns an
// iterator that yields response chunks and potential errors. The context can be used to cancel
// ongoing requests.
func (o OpenRouter) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := o.doRequest(ctx, messages)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}

			o.logger.Debug("Received event", slog.String("event", ev.Data))

			if ev.Data == "[DONE]" {
				return
			}
			if ev.Data == "" {
				continue
			}

			var res openRouterStreamingResponse
			if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
				yield("", fmt.Errorf("error unmarshaling response: %w", err))
				return
			}
			if res.Error != nil {
				yield("", fmt.Errorf("openrouter error %v: %s", res.Error.Code, res.Error.Message))
				return
			}

			if len(res.Choices) == 0 {
				continue
			}
			if content := res.Choices[0].Delta.Content; content != "" {
				if !yield(content, nil) {
					return
				}
			}
		}
	}
}

func (o OpenRouter) doRequest(ctx context.Context, messages []models.Message) (*http.Response, error) {
	msgs := make([]openRouterMessage, len(messages))
	for i, msg := range messages {
		msgs[i] = openRouterMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	reqBody := openRouterChatRequest{
		Model:            o.model,
		Messages:         msgs,
		Stream:           true,
		Temperature:      o.params.Temperature,
		TopP:             o.params.TopP,
		Stop:             o.params.Stop,
		PresencePenalty:  o.params.PresencePenalty,
		FrequencyPenalty: o.params.FrequencyPenalty,
		Seed:             o.params.Seed,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	o.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/MegaGrindStone/chat-relay/")
	req.Header.Set("X-Title", "Chat Relay")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}
