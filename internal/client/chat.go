// Package client implements the consuming side of the relay: it owns one conversation, posts the whole
// history to the relay on every send, and folds the streamed deltas into a growing assistant message.
//
// A Chat is the only writer of its conversation. At most one stream is active at a time; sending while a
// stream is in flight cancels that stream first, and a cancelled stream never writes again.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/MegaGrindStone/chat-relay/internal/eventstream"
	"github.com/MegaGrindStone/chat-relay/internal/models"
)

// Chat is a single conversation bound to a relay endpoint. All methods are safe for concurrent use.
type Chat struct {
	endpoint   string
	httpClient *http.Client
	headers    http.Header
	onChange   func()

	logger *slog.Logger

	// sendMu serializes SendMessage, CancelStream and Close so that supersession is deterministic.
	sendMu sync.Mutex

	mu       sync.Mutex
	messages []models.Message
	loading  bool
	err      error
	active   *session
	closed   bool
}

// State is a point-in-time copy of a Chat.
type State struct {
	Messages []models.Message
	Loading  bool
	Err      error
}

// Option configures a Chat.
type Option func(*Chat)

type session struct {
	cancel context.CancelFunc
	done   chan struct{}

	text strings.Builder
}

type chatRequest struct {
	Messages []models.Message `json:"messages"`
}

// WithHTTPClient sets the client used to reach the relay. The default client has no timeout, since a
// stream lasts as long as the model keeps talking.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Chat) {
		c.httpClient = httpClient
	}
}

// WithHeaders adds headers to every relay request.
func WithHeaders(headers http.Header) Option {
	return func(c *Chat) {
		c.headers = headers.Clone()
	}
}

// WithInitialMessages seeds the conversation, e.g. with a system message.
func WithInitialMessages(messages []models.Message) Option {
	return func(c *Chat) {
		c.messages = slices.Clone(messages)
	}
}

// WithLogger sets the logger. Malformed event lines and transport failures are reported there.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chat) {
		c.logger = logger
	}
}

// WithOnChange registers fn to be called after every state change. fn runs on the goroutine that made
// the change and must not block on the Chat's own send or cancel methods.
func WithOnChange(fn func()) Option {
	return func(c *Chat) {
		c.onChange = fn
	}
}

// New creates a Chat that posts to endpoint.
func New(endpoint string, opts ...Option) *Chat {
	c := &Chat{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		headers:    http.Header{},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("module", "client"))
	return c
}

// SendMessage appends text as a user message and starts streaming the assistant's reply. It returns
// false without doing anything when text is empty or whitespace-only, or when the Chat is closed. Any
// stream still in flight is cancelled and waited for before the new one starts.
func (c *Chat) SendMessage(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}

	c.cancelActive()

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	c.messages = append(c.messages, models.Message{Role: models.RoleUser, Content: text})
	history := slices.Clone(c.messages)
	c.loading = true
	c.err = nil
	c.active = s
	c.mu.Unlock()
	c.notify()

	go c.run(ctx, s, history)
	return true
}

// CancelStream stops the stream in flight, if any, and returns once it has stopped writing. Partial
// assistant content stays in the conversation and no error is recorded. It is a no-op when idle.
func (c *Chat) CancelStream() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.cancelActive()
}

// Close cancels the stream in flight and makes every later SendMessage a no-op. It is the teardown
// path of whatever owns the Chat and must run so no connection is left open.
func (c *Chat) Close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancelActive()
}

// Wait blocks until the current stream, if any, has finished.
func (c *Chat) Wait() {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()

	if s != nil {
		<-s.done
	}
}

// State returns a consistent snapshot of the conversation, the loading flag and the error slot.
func (c *Chat) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Messages: slices.Clone(c.messages),
		Loading:  c.loading,
		Err:      c.err,
	}
}

// Messages returns a copy of the conversation.
func (c *Chat) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.messages)
}

// Loading reports whether a stream is in flight.
func (c *Chat) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loading
}

// Err returns the error of the last send attempt, or nil.
func (c *Chat) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

// cancelActive must be called with sendMu held.
func (c *Chat) cancelActive() {
	c.mu.Lock()
	s := c.active
	if s == nil {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.loading = false
	c.mu.Unlock()

	s.cancel()
	<-s.done
	c.notify()
}

func (c *Chat) run(ctx context.Context, s *session, history []models.Message) {
	defer close(s.done)
	defer s.cancel()

	err := c.stream(ctx, s, history)

	c.mu.Lock()
	if c.active != s {
		// Cancelled or superseded: whoever detached the session already cleared the loading flag.
		c.mu.Unlock()
		c.logger.Debug("Stream cancelled", slog.Int("chars", s.text.Len()))
		return
	}
	c.active = nil
	c.loading = false
	if err != nil && ctx.Err() == nil {
		c.err = err
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("Stream failed", slog.String("err", err.Error()))
	} else {
		c.logger.Debug("Stream finished", slog.Int("chars", s.text.Len()))
	}
	c.notify()
}

func (c *Chat) stream(ctx context.Context, s *session, history []models.Message) error {
	body, err := json.Marshal(chatRequest{Messages: history})
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return relayErrorFromResponse(resp)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return ErrNoResponseBody
	}

	for ev, err := range eventstream.Read(resp.Body, c.logger) {
		if err != nil {
			return fmt.Errorf("error reading response: %w", err)
		}
		if ev.Err != "" {
			return &RelayError{StatusCode: resp.StatusCode, Message: ev.Err}
		}
		if !c.applyDelta(s, ev.Content) {
			return ctx.Err()
		}
	}

	return nil
}

// applyDelta reports false once s no longer owns the conversation.
func (c *Chat) applyDelta(s *session, delta string) bool {
	c.mu.Lock()
	if c.active != s {
		c.mu.Unlock()
		return false
	}
	s.text.WriteString(delta)
	c.messages = models.ApplyDelta(c.messages, delta)
	c.mu.Unlock()

	c.notify()
	return true
}

func (c *Chat) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
