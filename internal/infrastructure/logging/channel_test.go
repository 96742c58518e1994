package logging

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestChannel_AppendsInOrderWithTimestamps(t *testing.T) {
	var out bytes.Buffer
	channel := NewChannel(ChannelOptions{Name: "GBNF LSP", Writer: &out})

	channel.AppendLine("Extension activating...")
	channel.Appendf("Found LSP server at: %s", "/opt/gbnf/bin/linux-x64-gbnf-engine")

	lines := channel.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "Extension activating...", lines[0].Text)
	assert.Equal(t, "Found LSP server at: /opt/gbnf/bin/linux-x64-gbnf-engine", lines[1].Text)
	assert.False(t, lines[0].Time.IsZero())
	assert.False(t, lines[1].Time.Before(lines[0].Time))

	written := out.String()
	assert.Contains(t, written, "[GBNF LSP] Extension activating...")
	assert.Less(t, strings.Index(written, "activating"), strings.Index(written, "Found LSP server"))
}

func TestChannel_BoundsHistory(t *testing.T) {
	var out bytes.Buffer
	channel := NewChannel(ChannelOptions{Writer: &out, MaxLines: 3})

	for i := 0; i < 5; i++ {
		channel.Appendf("line %d", i)
	}

	lines := channel.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "line 2", lines[0].Text)
	assert.Equal(t, "line 4", lines[2].Text)
}

func TestChannel_WriterFailureNeverReachesCaller(t *testing.T) {
	channel := NewChannel(ChannelOptions{Writer: failingWriter{}})

	assert.NotPanics(t, func() {
		channel.AppendLine("still recorded")
	})
	require.Len(t, channel.Lines(), 1)
}

func TestChannel_SubscribeReceivesNewLines(t *testing.T) {
	var out bytes.Buffer
	channel := NewChannel(ChannelOptions{Writer: &out})
	channel.AppendLine("before")

	lines, cancel := channel.Subscribe(4)
	defer cancel()

	channel.AppendLine("after")

	select {
	case line := <-lines:
		assert.Equal(t, "after", line.Text)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive line")
	}

	cancel()
	assert.NotPanics(t, func() { channel.AppendLine("after cancel") })
}

func TestChannel_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gbnf-client.log")
	channel := NewChannel(ChannelOptions{
		Name:   "GBNF LSP",
		Writer: &bytes.Buffer{},
		File:   &FileOptions{Path: path, MaxSizeMB: 1},
	})

	channel.AppendLine("Starting LSP client...")
	require.NoError(t, channel.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Starting LSP client...")
}

func TestLine_String(t *testing.T) {
	line := Line{Time: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC), Text: "ready"}
	assert.Equal(t, "[09:30:00.000] ready", line.String())
}

func TestTerminalNotifier_WritesMessages(t *testing.T) {
	var out bytes.Buffer
	notifier := NewTerminalNotifier(&out)

	notifier.Info("GBNF LSP connected successfully")
	notifier.Error(fmt.Sprintf("Failed to start GBNF LSP: %s", "boom"))

	text := out.String()
	assert.Contains(t, text, "GBNF LSP connected successfully")
	assert.Contains(t, text, "Failed to start GBNF LSP: boom")
	assert.Equal(t, 2, strings.Count(text, "\n"))
}
