package logging

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// LineFormatter renders one log entry per line.
// Format: [2026-10-18 20:14:04] [info ] [GBNF LSP] Starting LSP client... | pid=4242
type LineFormatter struct{}

// Format renders a single log entry.
func (f *LineFormatter) Format(entry *log.Entry) ([]byte, error) {
	var buffer *bytes.Buffer
	if entry.Buffer != nil {
		buffer = entry.Buffer
	} else {
		buffer = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	channel := "-"
	if name, ok := entry.Data["channel"].(string); ok && name != "" {
		channel = name
	}

	fmt.Fprintf(buffer, "[%s] [%-5s] [%s] %s", timestamp, level, channel, message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "channel" {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		buffer.WriteString(" |")
		for i, k := range keys {
			if i > 0 {
				buffer.WriteString(",")
			}
			fmt.Fprintf(buffer, " %s=%v", k, entry.Data[k])
		}
	}
	buffer.WriteString("\n")

	return buffer.Bytes(), nil
}
