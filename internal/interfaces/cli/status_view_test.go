package cli

import (
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gbnf.dev/client/internal/core/domain"
	"gbnf.dev/client/internal/infrastructure/logging"
)

func update(t *testing.T, m statusModel, msg tea.Msg) statusModel {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(statusModel)
	require.True(t, ok)
	return model
}

func TestStatusModel_Lifecycle(t *testing.T) {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	m := newStatusModel("GBNF LSP", start)
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})

	assert.Contains(t, m.View(), "ACTIVATING")
	assert.Contains(t, m.View(), "Waiting for server output")

	m = update(t, m, stateMsg{state: domain.StateStarting})
	m = update(t, m, activatedMsg{sessionID: "0f8fad5b-d9cb-469f-a165-70867728950e", binaryPath: "/cache/bin/linux-x64-gbnf-engine"})
	m = update(t, m, stateMsg{state: domain.StateRunning})
	m = update(t, m, lineMsg(logging.Line{Time: start, Text: "LSP client started successfully"}))
	m = update(t, m, noticeMsg("GBNF LSP connected successfully"))
	m = update(t, m, tickMsg(start.Add(90*time.Second)))

	view := m.View()
	assert.Contains(t, view, "GBNF LSP")
	assert.Contains(t, view, "RUNNING")
	assert.Contains(t, view, "Session: 0f8fad5b...")
	assert.Contains(t, view, "Up: 1m30s")
	assert.Contains(t, view, "Server: /cache/bin/linux-x64-gbnf-engine")
	assert.Contains(t, view, "LSP client started successfully")
	assert.Contains(t, view, "GBNF LSP connected successfully")
	assert.NotContains(t, view, "Error:")
}

func TestStatusModel_Failure(t *testing.T) {
	m := newStatusModel("GBNF LSP", time.Now())
	m = update(t, m, activatedMsg{err: errors.New("Unsupported platform: plan9")})
	m = update(t, m, stateMsg{state: domain.StateFailed, err: domain.ErrServerExited})

	view := m.View()
	assert.Contains(t, view, "FAILED")
	assert.Contains(t, view, "Error: "+domain.ErrServerExited.Error())
}

func TestStatusModel_KeepsTail(t *testing.T) {
	m := newStatusModel("GBNF LSP", time.Now())
	for i := 0; i < maxStatusLines+10; i++ {
		m = update(t, m, lineMsg(logging.Line{Text: fmt.Sprintf("line %d", i)}))
	}
	for i := 0; i < maxStatusNotices+2; i++ {
		m = update(t, m, noticeMsg(fmt.Sprintf("notice %d", i)))
	}

	require.Len(t, m.lines, maxStatusLines)
	assert.Contains(t, m.lines[0], "line 10")
	require.Len(t, m.notices, maxStatusNotices)
	assert.Equal(t, "notice 2", m.notices[0])

	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	view := m.View()
	assert.Contains(t, view, fmt.Sprintf("line %d", maxStatusLines+9))
	assert.NotContains(t, view, "line 10\n")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.Empty(t, m.lines)
}

func TestStatusModel_Quit(t *testing.T) {
	m := newStatusModel("GBNF LSP", time.Now())

	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := m.Update(key)
		require.NotNil(t, cmd)
		_, ok := cmd().(tea.QuitMsg)
		assert.True(t, ok, "key %s quits", key.String())
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "diagnos...", truncateString("diagnostics for file", 10))
	assert.Equal(t, "ab", truncateString("abcdef", 2))
}

func TestStatusModel_SpinnerWhileBusy(t *testing.T) {
	m := newStatusModel("GBNF LSP", time.Now())
	assert.True(t, m.busy())

	m = update(t, m, activatedMsg{sessionID: "id"})
	m = update(t, m, stateMsg{state: domain.StateStarting})
	assert.True(t, m.busy())

	m = update(t, m, stateMsg{state: domain.StateRunning})
	assert.False(t, m.busy())
	assert.NotContains(t, m.View(), m.spinner.View()+" ")
}
