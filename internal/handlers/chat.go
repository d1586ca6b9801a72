package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/MegaGrindStone/chat-relay/internal/models"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

type chatRequest struct {
	Messages []models.Message `json:"messages"`
}

type contentEvent struct {
	Content string `json:"content"`
}

type errorBody struct {
	Error string `json:"error"`
}

const (
	doneSentinel = "[DONE]"

	invalidRequestMessage = "Invalid request: messages array is required"
	upstreamErrorMessage  = "Something went wrong"
)

var errorSSEType = sse.Type("error")

// HandleChat relays a conversation to the LLM and streams the reply back to the client.
//
// The handler expects a JSON body of the form {"messages": [{"role": ..., "content": ...}, ...]} carrying
// the full transcript. Every non-empty delta is written as a `data: {"content": ...}` event and the
// stream is terminated by `data: [DONE]`. If the LLM fails before the first delta, the client gets a
// 500 response with a JSON error body instead of a stream. If it fails after the stream has been
// committed, an `error` event is written and the stream is closed without the sentinel.
func (m Main) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		if err != nil {
			m.logger.Error("Failed to decode request", slog.String(errLoggerKey, err.Error()))
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: invalidRequestMessage})
		return
	}
	if err := models.ValidateMessages(req.Messages); err != nil {
		m.logger.Error("Invalid messages", slog.String(errLoggerKey, err.Error()))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("Invalid request: %s", err)})
		return
	}

	m.logger.Debug("Incoming request", slog.Int("messages", len(req.Messages)))

	messages := req.Messages
	if m.systemPrompt != "" && !models.HasSystemMessage(messages) {
		messages = slices.Insert(slices.Clone(messages), 0, models.Message{
			Role:    models.RoleSystem,
			Content: m.systemPrompt,
		})
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(m.streamsCtx, cancel)
	defer stop()

	ex := models.Exchange{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Messages:  len(messages),
	}
	defer func() {
		ex.FinishedAt = time.Now()
		m.recordExchange(ex)
	}()

	rc := http.NewResponseController(w)
	committed := false

	for delta, err := range m.llm.Chat(ctx, messages) {
		if err != nil {
			ex.Status = models.ExchangeFailed
			ex.Error = err.Error()
			m.logger.Error("Error from llm provider",
				slog.String("exchangeID", ex.ID),
				slog.Bool("committed", committed),
				slog.String(errLoggerKey, err.Error()))

			if !committed {
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: upstreamErrorMessage})
				return
			}
			msg := sse.Message{Type: errorSSEType}
			msg.AppendData(mustJSON(errorBody{Error: err.Error()}))
			if err := m.writeEvent(w, rc, &msg); err != nil {
				m.logger.Error("Failed to write error event", slog.String(errLoggerKey, err.Error()))
			}
			return
		}
		if delta == "" {
			continue
		}

		if !committed {
			startStream(w)
			committed = true
		}

		ex.Deltas++
		ex.OutputChars += len(delta)

		msg := sse.Message{}
		msg.AppendData(mustJSON(contentEvent{Content: delta}))
		if err := m.writeEvent(w, rc, &msg); err != nil {
			ex.Status = models.ExchangeAborted
			m.logger.Error("Failed to write event",
				slog.String("exchangeID", ex.ID),
				slog.String(errLoggerKey, err.Error()))
			return
		}
	}

	if ctx.Err() != nil {
		ex.Status = models.ExchangeAborted
		m.logger.Debug("Stream aborted",
			slog.String("exchangeID", ex.ID),
			slog.String(errLoggerKey, context.Cause(ctx).Error()))
		return
	}

	if !committed {
		startStream(w)
	}
	msg := sse.Message{}
	msg.AppendData(doneSentinel)
	if err := m.writeEvent(w, rc, &msg); err != nil {
		ex.Status = models.ExchangeAborted
		m.logger.Error("Failed to write done event", slog.String(errLoggerKey, err.Error()))
		return
	}
	ex.Status = models.ExchangeCompleted
}

func startStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

func (m Main) writeEvent(w http.ResponseWriter, rc *http.ResponseController, msg *sse.Message) error {
	if _, err := msg.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

func (m Main) recordExchange(ex models.Exchange) {
	if m.journal == nil {
		return
	}
	if _, err := m.journal.AddExchange(context.Background(), ex); err != nil {
		m.logger.Error("Failed to record exchange",
			slog.String("exchange", fmt.Sprintf("%+v", ex)),
			slog.String(errLoggerKey, err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
