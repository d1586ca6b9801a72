package tui

import (
	"fmt"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
)

// Notifier forwards conversation changes to the running program. Its Notify method is meant to be
// passed to client.WithOnChange before the program exists.
type Notifier struct {
	program atomic.Pointer[tea.Program]
}

// Notify asks the running program, if any, to re-render.
func (n *Notifier) Notify() {
	if p := n.program.Load(); p != nil {
		p.Send(StateChangedMsg{})
	}
}

// Run shows the chat screen until the user quits.
func Run(conv Conversation, n *Notifier, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithMouseCellMotion()}, opts...)
	p := tea.NewProgram(New(conv), opts...)

	n.program.Store(p)
	defer n.program.Store(nil)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running chat screen: %w", err)
	}
	return nil
}
