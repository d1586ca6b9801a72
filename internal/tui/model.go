// Package tui is the terminal front-end of the chat client. It renders a conversation in a scrolling
// viewport, follows the tail of the transcript while the user is at the bottom, and forwards input to
// a Conversation.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/MegaGrindStone/chat-relay/internal/client"
	"github.com/MegaGrindStone/chat-relay/internal/models"
	"github.com/MegaGrindStone/chat-relay/internal/render"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Conversation is the part of client.Chat the front-end drives. SendMessage and CancelStream may block,
// so the model only calls them from commands, never from Update.
type Conversation interface {
	SendMessage(text string) bool
	CancelStream()
	State() client.State
}

// StateChangedMsg tells the model to take a fresh snapshot of the conversation.
type StateChangedMsg struct{}

type exportDoneMsg struct {
	path string
	err  error
}

// ScrollThreshold is how close to the bottom, in lines, the viewport must be for new content to pull it
// down.
const ScrollThreshold = 3

const exportCommand = "/export"

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Model is the bubbletea model of the chat screen.
type Model struct {
	conv Conversation

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	state  client.State
	status string
	ready  bool
}

// New creates a Model bound to conv.
func New(conv Conversation) Model {
	ti := textinput.New()
	ti.Placeholder = "Send a message (Esc stops, /export <file> saves)"
	ti.Focus()
	ti.Prompt = "> "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		conv:    conv,
		input:   ti,
		spinner: sp,
		state:   conv.State(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		footerHeight := lipgloss.Height(m.footerView())
		if !m.ready {
			m.viewport = viewport.New(msg.Width, max(msg.Height-footerHeight, 1))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = max(msg.Height-footerHeight, 1)
		}
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 1)
		m.refresh()
		return m, nil

	case StateChangedMsg:
		m.state = m.conv.State()
		m.refresh()
		return m, nil

	case exportDoneMsg:
		if msg.err != nil {
			m.status = errorStyle.Render(fmt.Sprintf("Export failed: %v", msg.err))
		} else {
			m.status = statusStyle.Render("Exported to " + msg.path)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.state.Loading {
				return m, m.cancelCmd()
			}
			return m, nil
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if _, ok := msg.(tea.MouseMsg); ok {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return m.viewport.View() + "\n" + m.footerView()
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return m, nil
	}
	m.input.SetValue("")
	m.status = ""

	if trimmed == exportCommand || strings.HasPrefix(trimmed, exportCommand+" ") {
		path := strings.TrimSpace(strings.TrimPrefix(trimmed, exportCommand))
		if path == "" {
			m.status = errorStyle.Render("Usage: /export <file>")
			return m, nil
		}
		return m, exportCmd(path, m.state.Messages)
	}

	conv := m.conv
	return m, func() tea.Msg {
		conv.SendMessage(text)
		return nil
	}
}

func (m Model) cancelCmd() tea.Cmd {
	conv := m.conv
	return func() tea.Msg {
		conv.CancelStream()
		return nil
	}
}

func exportCmd(path string, messages []models.Message) tea.Cmd {
	return func() tea.Msg {
		doc, err := render.Transcript(messages)
		if err != nil {
			return exportDoneMsg{path: path, err: err}
		}
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			return exportDoneMsg{path: path, err: fmt.Errorf("failed to write %s: %w", path, err)}
		}
		return exportDoneMsg{path: path}
	}
}

// refresh re-renders the transcript into the viewport, following the tail when the viewport was at or
// near the bottom before the update.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	follow := ShouldFollow(m.viewport.TotalLineCount(), m.viewport.YOffset, m.viewport.Height, ScrollThreshold)
	m.viewport.SetContent(m.transcriptView())
	if follow {
		m.viewport.GotoBottom()
	}
}

// ShouldFollow reports whether a viewport showing lines [offset, offset+height) of total lines is within
// threshold lines of the bottom.
func ShouldFollow(total, offset, height, threshold int) bool {
	return total-(offset+height) <= threshold
}

func (m Model) transcriptView() string {
	width := max(m.viewport.Width, 1)
	body := lipgloss.NewStyle().Width(width)

	var sb strings.Builder
	for i, msg := range m.state.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch msg.Role {
		case models.RoleUser:
			sb.WriteString(userStyle.Render("You"))
		case models.RoleAssistant:
			sb.WriteString(assistantStyle.Render("Assistant"))
		default:
			sb.WriteString(systemStyle.Render(string(msg.Role)))
		}
		sb.WriteString("\n")
		sb.WriteString(body.Render(msg.Content))
		sb.WriteString("\n")
	}
	if m.state.Err != nil {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Width(width).Render("Error: " + m.state.Err.Error()))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) footerView() string {
	status := m.status
	if m.state.Loading {
		status = m.spinner.View() + statusStyle.Render(" Streaming... (Esc to stop)")
	}
	return status + "\n" + m.input.View()
}
