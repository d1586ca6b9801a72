package handlers

import (
	"context"
	"iter"
	"log/slog"

	"github.com/MegaGrindStone/chat-relay/internal/models"
)

// LLM represents a large language model interface that provides chat functionality. It accepts a context
// and a sequence of messages, returning an iterator that yields response chunks and potential errors.
// Implementations must end the iterator without an error when ctx is cancelled.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// Journal records one entry per relay request. It never receives conversation content, only the
// counters and timings collected while streaming.
type Journal interface {
	Exchanges(ctx context.Context) ([]models.Exchange, error)
	AddExchange(ctx context.Context, exchange models.Exchange) (string, error)
}

// Main handles the relay: it accepts a conversation from a client, forwards it to the LLM, and streams
// each delta back as a line-delimited event.
type Main struct {
	llm     LLM
	journal Journal

	systemPrompt  string
	allowedOrigin string

	// streamsCtx is the parent of every stream context; cancelling it ends all streams on shutdown.
	streamsCtx    context.Context
	cancelStreams context.CancelFunc

	logger *slog.Logger
}

// Option configures Main.
type Option func(*Main)

const errLoggerKey = "err"

// WithSystemPrompt makes the relay prepend a system message to every conversation that lacks one.
func WithSystemPrompt(prompt string) Option {
	return func(m *Main) {
		m.systemPrompt = prompt
	}
}

// WithAllowedOrigin sets the value of the Access-Control-Allow-Origin header. The default is "*".
func WithAllowedOrigin(origin string) Option {
	return func(m *Main) {
		m.allowedOrigin = origin
	}
}

// NewMain creates a new Main instance with the provided LLM and Journal implementations.
func NewMain(llm LLM, journal Journal, logger *slog.Logger, opts ...Option) Main {
	ctx, cancel := context.WithCancel(context.Background())

	m := Main{
		llm:           llm,
		journal:       journal,
		allowedOrigin: "*",
		streamsCtx:    ctx,
		cancelStreams: cancel,
		logger:        logger.With(slog.String("module", "main")),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Shutdown ends every in-flight stream so that the HTTP server's own shutdown doesn't wait for the
// language model to finish talking.
func (m Main) Shutdown(context.Context) error {
	m.cancelStreams()
	return nil
}
