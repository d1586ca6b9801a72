package services

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/chat-relay/internal/models"
	"github.com/ollama/ollama/api"
)

// Ollama provides an implementation of the LLM interface for interacting with Ollama's language models.
// It manages connections to an Ollama server instance and handles streaming chat completions.
type Ollama struct {
	host  string
	model string

	params LLMParameters

	client *api.Client

	logger *slog.Logger
}

// DefaultOllamaHost is used when neither the configuration nor OLLAMA_HOST name a server.
const DefaultOllamaHost = "http://127.0.0.1:11434"

// NewOllama creates a new Ollama instance with the specified host URL and model name. The host
// parameter should be a valid URL pointing to an Ollama server.
func NewOllama(host, model string, params LLMParameters, logger *slog.Logger) (Ollama, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return Ollama{
		host:   host,
		model:  model,
		params: params,
		client: api.NewClient(u, &http.Client{}),
		logger: logger.With(slog.String("module", "ollama")),
	}, nil
}

// Chat implements the LLM interface by streaming responses from the Ollama model. It accepts a context
// for cancellation and a slice of messages representing the conversation history. The function returns
// an iterator that yields response chunks as strings and potential errors.
func (o Ollama) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := make([]api.Message, len(messages))
		for i, msg := range messages {
			msgs[i] = api.Message{
				Role:    string(msg.Role),
				Content: msg.Content,
			}
		}

		t := true
		req := api.ChatRequest{
			Model:    o.model,
			Messages: msgs,
			Stream:   &t,
			Options:  o.options(),
		}

		o.logger.Debug("Request",
			slog.String("host", o.host),
			slog.String("model", o.model),
			slog.Int("messages", len(msgs)))

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if stopped || res.Message.Content == "" {
				return nil
			}
			if !yield(res.Message.Content, nil) {
				stopped = true
				cancel()
			}
			return nil
		}); err != nil {
			if stopped || ctx.Err() != nil {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
		}
	}
}

func (o Ollama) options() map[string]any {
	opts := map[string]any{}
	if o.params.Temperature != nil {
		opts["temperature"] = *o.params.Temperature
	}
	if o.params.TopP != nil {
		opts["top_p"] = *o.params.TopP
	}
	if o.params.Stop != nil {
		opts["stop"] = o.params.Stop
	}
	if o.params.PresencePenalty != nil {
		opts["presence_penalty"] = *o.params.PresencePenalty
	}
	if o.params.FrequencyPenalty != nil {
		opts["frequency_penalty"] = *o.params.FrequencyPenalty
	}
	if o.params.Seed != nil {
		opts["seed"] = *o.params.Seed
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}
