package handlers

import (
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/chat-relay/internal/models"
)

type exchangesResponse struct {
	Exchanges []models.Exchange `json:"exchanges"`
}

// HandleExchanges lists the journal entries, newest first. It responds with an empty list when the
// relay runs without a journal.
func (m Main) HandleExchanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}

	res := exchangesResponse{Exchanges: []models.Exchange{}}
	if m.journal != nil {
		exs, err := m.journal.Exchanges(r.Context())
		if err != nil {
			m.logger.Error("Failed to get exchanges", slog.String(errLoggerKey, err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: upstreamErrorMessage})
			return
		}
		if exs != nil {
			res.Exchanges = exs
		}
	}

	writeJSON(w, http.StatusOK, res)
}
