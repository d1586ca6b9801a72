package render_test

import (
	"strings"
	"testing"

	"github.com/MegaGrindStone/chat-relay/internal/models"
	"github.com/MegaGrindStone/chat-relay/internal/render"
)

func TestTranscript(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: "Show me **Go**"},
		{Role: models.RoleAssistant, Content: "Here:\n\n```go\nfunc main() {}\n```\n\n| a | b |\n|---|---|\n| 1 | 2 |"},
		{Role: models.RoleUser, Content: "<script>alert(1)</script>"},
	}

	got, err := render.Transcript(messages)
	if err != nil {
		t.Fatalf("Transcript() error = %v", err)
	}

	tests := []struct {
		name string
		want string
	}{
		{name: "Role heading", want: "<h2>You</h2>"},
		{name: "Assistant heading", want: "<h2>Assistant</h2>"},
		{name: "Emphasis", want: "<strong>Go</strong>"},
		{name: "Highlighted code", want: "<pre"},
		{name: "Inline styles", want: "style=\""},
		{name: "Table", want: "<table>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(got, tt.want) {
				t.Errorf("Transcript() missing %q in:\n%s", tt.want, got)
			}
		})
	}

	if strings.Contains(got, "<script>") {
		t.Error("Transcript() passed raw HTML through")
	}
	if strings.Index(got, "<h2>You</h2>") > strings.Index(got, "<h2>Assistant</h2>") {
		t.Error("Transcript() changed message order")
	}
}

func TestPlainText(t *testing.T) {
	got := render.PlainText([]models.Message{
		{Role: models.RoleUser, Content: "Hi"},
		{Role: models.RoleAssistant, Content: "Hello"},
	})
	want := "You:\nHi\n\nAssistant:\nHello\n"
	if got != want {
		t.Errorf("PlainText() = %q, want %q", got, want)
	}
}
