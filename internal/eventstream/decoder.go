// Package eventstream decodes the line-delimited event stream emitted by the relay. Each relevant
// line starts with "data:" and carries either a JSON object with a content delta or the literal
// termination sentinel.
package eventstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
)

const (
	// DataPrefix marks the lines the decoder looks at. Every other line is ignored.
	DataPrefix = "data:"
	// DoneSentinel is the payload that terminates a stream.
	DoneSentinel = "[DONE]"

	readBufferSize = 4096
)

// Event is one decoded payload. Exactly one of Content and Err is set.
type Event struct {
	// Content is a non-empty fragment of assistant text.
	Content string
	// Err is an error message the relay reported after the stream was already committed.
	Err string
}

type payload struct {
	Content string `json:"content"`
	Error   string `json:"error"`
}

// Decoder turns raw response bytes, delivered at arbitrary chunk boundaries, into events. It keeps any
// unterminated trailing line, including a multi-byte character cut in half, until the next chunk
// arrives. A Decoder is not safe for concurrent use.
type Decoder struct {
	pending []byte
	done    bool

	logger *slog.Logger
}

// NewDecoder creates a Decoder that reports discarded lines to logger. A nil logger discards them.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Decoder{logger: logger}
}

// Feed consumes one chunk and returns the events completed by it, in the order they appear. Once the
// sentinel has been seen, the remainder of the chunk and every later chunk is ignored.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.done {
		return nil
	}
	d.pending = append(d.pending, chunk...)

	var events []Event
	for !d.done {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		line := d.pending[:idx]
		d.pending = d.pending[idx+1:]
		if ev, ok := d.decodeLine(line); ok {
			events = append(events, ev)
		}
	}

	if d.done {
		d.pending = nil
	} else if len(d.pending) == 0 {
		// Drop the consumed prefix so the backing array doesn't grow for the whole stream.
		d.pending = d.pending[:0:0]
	}
	return events
}

// Flush decodes the final unterminated line, if any. It is called once the transport closes.
func (d *Decoder) Flush() []Event {
	if d.done || len(d.pending) == 0 {
		return nil
	}
	line := d.pending
	d.pending = nil
	if ev, ok := d.decodeLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// Done reports whether the termination sentinel has been decoded.
func (d *Decoder) Done() bool {
	return d.done
}

func (d *Decoder) decodeLine(raw []byte) (Event, bool) {
	line := strings.ToValidUTF8(string(raw), "\uFFFD")
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, DataPrefix) {
		return Event{}, false
	}

	data := strings.TrimSpace(line[len(DataPrefix):])
	if data == DoneSentinel {
		d.done = true
		return Event{}, false
	}

	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		d.logger.Warn("Discarding malformed event line",
			slog.String("line", data),
			slog.String("err", err.Error()))
		return Event{}, false
	}

	switch {
	case p.Error != "":
		return Event{Err: p.Error}, true
	case p.Content != "":
		return Event{Content: p.Content}, true
	}
	return Event{}, false
}

// Read decodes r until the sentinel, the end of r, or a read error. A stream that ends without the
// sentinel is treated as complete. A read error is yielded once and ends the sequence.
func Read(r io.Reader, logger *slog.Logger) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		dec := NewDecoder(logger)
		buf := make([]byte, readBufferSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, ev := range dec.Feed(buf[:n]) {
					if !yield(ev, nil) {
						return
					}
				}
				if dec.Done() {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(Event{}, err)
					return
				}
				for _, ev := range dec.Flush() {
					if !yield(ev, nil) {
						return
					}
				}
				return
			}
		}
	}
}
