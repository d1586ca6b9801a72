package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoResponseBody is recorded when the relay answers without a readable stream.
var ErrNoResponseBody = errors.New("no response body")

// RelayError captures a failure reported by the relay, either as a non-2xx response or as an error
// event after the stream was committed (StatusCode is then http.StatusOK).
type RelayError struct {
	StatusCode int
	Message    string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay error (status %d): %s", e.StatusCode, e.Message)
}

type relayErrorBody struct {
	Error string `json:"error"`
}

const maxErrorBodySize = 4096

func relayErrorFromResponse(resp *http.Response) *RelayError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	msg := strings.TrimSpace(string(body))
	var eb relayErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		msg = eb.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &RelayError{StatusCode: resp.StatusCode, Message: msg}
}
