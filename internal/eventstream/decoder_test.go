package eventstream_test

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/MegaGrindStone/chat-relay/internal/eventstream"
	"github.com/stretchr/testify/require"
)

const helloStream = "data: {\"content\":\"Hel\"}\n\n" +
	"data: {\"content\":\"lo, wörld ✓\"}\n\n" +
	"data: [DONE]\n\n"

func contents(events []eventstream.Event) string {
	var sb strings.Builder
	for _, ev := range events {
		sb.WriteString(ev.Content)
	}
	return sb.String()
}

func TestDecoderScenario(t *testing.T) {
	dec := eventstream.NewDecoder(nil)

	events := dec.Feed([]byte(helloStream))

	require.Len(t, events, 2)
	require.Equal(t, "Hel", events[0].Content)
	require.Equal(t, "lo, wörld ✓", events[1].Content)
	require.True(t, dec.Done())
}

func TestDecoderChunkBoundaryIndependence(t *testing.T) {
	raw := []byte(helloStream)

	for split := 0; split <= len(raw); split++ {
		dec := eventstream.NewDecoder(nil)
		var events []eventstream.Event
		events = append(events, dec.Feed(raw[:split])...)
		events = append(events, dec.Feed(raw[split:])...)
		events = append(events, dec.Flush()...)

		require.Equal(t, "Hello, wörld ✓", contents(events), "split at byte %d", split)
		require.True(t, dec.Done(), "split at byte %d", split)
	}
}

func TestDecoderByteByByte(t *testing.T) {
	dec := eventstream.NewDecoder(nil)
	var events []eventstream.Event
	for _, b := range []byte(helloStream) {
		events = append(events, dec.Feed([]byte{b})...)
	}

	require.Equal(t, "Hello, wörld ✓", contents(events))
}

func TestDecoderMalformedLineIsSkipped(t *testing.T) {
	dec := eventstream.NewDecoder(nil)

	events := dec.Feed([]byte("data: {\"content\":\"Hel\"}\n" +
		"data: {not json\n" +
		"data: {\"content\":\"lo\"}\n"))

	require.Equal(t, "Hello", contents(events))
	require.False(t, dec.Done())
}

func TestDecoderIgnoresOtherLines(t *testing.T) {
	dec := eventstream.NewDecoder(nil)

	events := dec.Feed([]byte(": keep-alive\r\n" +
		"event: message\r\n" +
		"id: 7\r\n" +
		"data: {\"content\":\"Hi\"}\r\n" +
		"data: {\"other\":\"field\"}\r\n" +
		"data: {\"content\":\"\"}\r\n\r\n"))

	require.Len(t, events, 1)
	require.Equal(t, "Hi", events[0].Content)
}

func TestDecoderStopsAtSentinel(t *testing.T) {
	dec := eventstream.NewDecoder(nil)

	events := dec.Feed([]byte("data: {\"content\":\"A\"}\ndata: [DONE]\ndata: {\"content\":\"B\"}\n"))
	require.Equal(t, "A", contents(events))

	require.Empty(t, dec.Feed([]byte("data: {\"content\":\"C\"}\n")))
	require.Empty(t, dec.Flush())
}

func TestDecoderErrorPayload(t *testing.T) {
	dec := eventstream.NewDecoder(nil)

	events := dec.Feed([]byte("event: error\ndata: {\"error\":\"vendor unavailable\"}\n\n"))

	require.Len(t, events, 1)
	require.Equal(t, "vendor unavailable", events[0].Err)
	require.Empty(t, events[0].Content)
}

func TestDecoderFlushUnterminatedLine(t *testing.T) {
	dec := eventstream.NewDecoder(nil)

	require.Empty(t, dec.Feed([]byte("data: {\"content\":\"Hi\"}")))
	events := dec.Flush()

	require.Len(t, events, 1)
	require.Equal(t, "Hi", events[0].Content)
	require.False(t, dec.Done())
}

func TestReadWithoutSentinel(t *testing.T) {
	r := iotest.OneByteReader(strings.NewReader("data: {\"content\":\"Hi\"}\n\n"))

	var events []eventstream.Event
	for ev, err := range eventstream.Read(r, nil) {
		require.NoError(t, err)
		events = append(events, ev)
	}

	require.Equal(t, "Hi", contents(events))
}

func TestReadStopsAtSentinel(t *testing.T) {
	r := io.MultiReader(
		strings.NewReader(helloStream),
		iotest.ErrReader(errors.New("must not be read")),
	)

	var events []eventstream.Event
	for ev, err := range eventstream.Read(iotest.HalfReader(r), nil) {
		require.NoError(t, err)
		events = append(events, ev)
	}

	require.Equal(t, "Hello, wörld ✓", contents(events))
}

func TestReadError(t *testing.T) {
	wantErr := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader("data: {\"content\":\"Hi\"}\n"),
		iotest.ErrReader(wantErr),
	)

	var (
		events []eventstream.Event
		gotErr error
	)
	for ev, err := range eventstream.Read(r, nil) {
		if err != nil {
			gotErr = err
			continue
		}
		events = append(events, ev)
	}

	require.Equal(t, "Hi", contents(events))
	require.ErrorIs(t, gotErr, wantErr)
}
