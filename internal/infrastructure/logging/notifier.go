package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	infoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("46"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
)

// TerminalNotifier shows transient notifications on a terminal
type TerminalNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminalNotifier creates a notifier writing to w (os.Stderr when nil)
func NewTerminalNotifier(w io.Writer) *TerminalNotifier {
	if w == nil {
		w = os.Stderr
	}
	return &TerminalNotifier{w: w}
}

// Info shows a success or progress message
func (n *TerminalNotifier) Info(message string) {
	n.write(infoStyle.Render("✔") + " " + message)
}

// Error shows an error message
func (n *TerminalNotifier) Error(message string) {
	n.write(errorStyle.Render("✖") + " " + message)
}

func (n *TerminalNotifier) write(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintln(n.w, text)
}
