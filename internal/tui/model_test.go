package tui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/MegaGrindStone/chat-relay/internal/client"
	"github.com/MegaGrindStone/chat-relay/internal/models"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeConversation struct {
	mu      sync.Mutex
	state   client.State
	sent    []string
	cancels int
}

func (f *fakeConversation) SendMessage(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return true
}

func (f *fakeConversation) CancelStream() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeConversation) State() client.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return client.State{
		Messages: append([]models.Message(nil), f.state.Messages...),
		Loading:  f.state.Loading,
		Err:      f.state.Err,
	}
}

func (f *fakeConversation) set(state client.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

func newTestModel(t *testing.T, conv *fakeConversation) Model {
	t.Helper()
	m := New(conv)
	result, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 10})
	return result.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	result, cmd := m.Update(msg)
	return result.(Model), cmd
}

func manyMessages(n int) []models.Message {
	msgs := make([]models.Message, n)
	for i := range msgs {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs[i] = models.Message{Role: role, Content: fmt.Sprintf("message %d", i)}
	}
	return msgs
}

func TestShouldFollow(t *testing.T) {
	tests := []struct {
		name                             string
		total, offset, height, threshold int
		want                             bool
	}{
		{name: "Content shorter than viewport", total: 3, offset: 0, height: 10, threshold: 3, want: true},
		{name: "At bottom", total: 50, offset: 40, height: 10, threshold: 3, want: true},
		{name: "Within threshold", total: 50, offset: 37, height: 10, threshold: 3, want: true},
		{name: "Just outside threshold", total: 50, offset: 36, height: 10, threshold: 3, want: false},
		{name: "At top", total: 50, offset: 0, height: 10, threshold: 3, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldFollow(tt.total, tt.offset, tt.height, tt.threshold); got != tt.want {
				t.Errorf("ShouldFollow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAutoscrollFollowsOnlyAtBottom(t *testing.T) {
	conv := &fakeConversation{}
	m := newTestModel(t, conv)

	conv.set(client.State{Messages: manyMessages(20)})
	m, _ = update(t, m, StateChangedMsg{})
	if !m.viewport.AtBottom() {
		t.Fatal("viewport should follow new content from the bottom")
	}

	m.viewport.GotoTop()
	conv.set(client.State{Messages: manyMessages(30)})
	m, _ = update(t, m, StateChangedMsg{})
	if m.viewport.YOffset != 0 {
		t.Errorf("scrolled-up viewport moved to offset %d", m.viewport.YOffset)
	}

	m.viewport.GotoBottom()
	conv.set(client.State{Messages: manyMessages(40)})
	m, _ = update(t, m, StateChangedMsg{})
	if !m.viewport.AtBottom() {
		t.Error("viewport at the bottom should keep following")
	}
}

func TestEnterSendsThroughCommand(t *testing.T) {
	conv := &fakeConversation{}
	m := newTestModel(t, conv)
	m.input.SetValue("Hello")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if got := m.input.Value(); got != "" {
		t.Errorf("input should be cleared, got %q", got)
	}
	if len(conv.sent) != 0 {
		t.Fatal("SendMessage must not run inside Update")
	}
	if cmd == nil {
		t.Fatal("expected a send command")
	}
	cmd()
	if len(conv.sent) != 1 || conv.sent[0] != "Hello" {
		t.Errorf("sent = %v", conv.sent)
	}
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	conv := &fakeConversation{}
	m := newTestModel(t, conv)
	m.input.SetValue("   ")

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if cmd != nil {
		t.Error("blank input should not produce a command")
	}
}

func TestEscCancelsOnlyWhileLoading(t *testing.T) {
	conv := &fakeConversation{}
	m := newTestModel(t, conv)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if cmd != nil {
		t.Error("Esc while idle should do nothing")
	}

	conv.set(client.State{Loading: true, Messages: manyMessages(1)})
	m, _ = update(t, m, StateChangedMsg{})
	if !strings.Contains(m.View(), "Streaming") {
		t.Error("footer should show the streaming indicator")
	}

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("expected a cancel command")
	}
	cmd()
	if conv.cancels != 1 {
		t.Errorf("CancelStream called %d times, want 1", conv.cancels)
	}
}

func TestErrorIsRendered(t *testing.T) {
	conv := &fakeConversation{}
	m := newTestModel(t, conv)

	conv.set(client.State{
		Messages: []models.Message{{Role: models.RoleUser, Content: "Hi"}},
		Err:      errors.New("relay error (status 500): Something went wrong"),
	})
	m, _ = update(t, m, StateChangedMsg{})

	if !strings.Contains(m.View(), "Something went wrong") {
		t.Errorf("error not rendered:\n%s", m.View())
	}
}

func TestExportCommand(t *testing.T) {
	conv := &fakeConversation{}
	conv.set(client.State{Messages: []models.Message{
		{Role: models.RoleUser, Content: "Hi"},
		{Role: models.RoleAssistant, Content: "**Hello**"},
	}})
	m := newTestModel(t, conv)

	path := filepath.Join(t.TempDir(), "chat.html")
	m.input.SetValue("/export " + path)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected an export command")
	}
	if len(conv.sent) != 0 {
		t.Error("export must not be sent to the relay")
	}

	m, _ = update(t, m, cmd())
	if !strings.Contains(m.status, "Exported") {
		t.Errorf("status = %q", m.status)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "<strong>Hello</strong>") {
		t.Errorf("export content = %s", b)
	}
}

func TestExportCommandWithoutPath(t *testing.T) {
	conv := &fakeConversation{}
	m := newTestModel(t, conv)
	m.input.SetValue("/export")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if cmd != nil {
		t.Error("expected no command")
	}
	if !strings.Contains(m.status, "Usage") {
		t.Errorf("status = %q", m.status)
	}
}
