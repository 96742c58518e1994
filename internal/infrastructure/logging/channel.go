// Package logging provides the output channel and notification surfaces the
// client reports through. Neither ever returns an error to its caller.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultMaxLines bounds the in-memory history of a channel
const DefaultMaxLines = 1000

// Line is one appended channel entry
type Line struct {
	Time time.Time
	Text string
}

// String renders the line with its timestamp
func (l Line) String() string {
	return fmt.Sprintf("[%s] %s", l.Time.Format("15:04:05.000"), l.Text)
}

// FileOptions configures the rotating log file
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ChannelOptions configures a Channel
type ChannelOptions struct {
	Name     string
	Writer   io.Writer // defaults to os.Stderr; io.Discard silences the console
	File     *FileOptions
	MaxLines int
	Debug    bool
}

// Channel is an append-only, ordered log of timestamped lines
type Channel struct {
	name   string
	logger *log.Logger
	file   *lumberjack.Logger
	now    func() time.Time

	mu       sync.Mutex
	lines    []Line
	maxLines int
	subs     map[int]chan Line
	nextSub  int
}

// NewChannel creates an output channel
func NewChannel(opts ChannelOptions) *Channel {
	if opts.Name == "" {
		opts.Name = "output"
	}
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}

	logger := log.New()
	logger.SetFormatter(&LineFormatter{})
	logger.SetLevel(log.InfoLevel)
	if opts.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	c := &Channel{
		name:     opts.Name,
		logger:   logger,
		now:      time.Now,
		maxLines: opts.MaxLines,
		subs:     make(map[int]chan Line),
	}

	out := opts.Writer
	if opts.File != nil && opts.File.Path != "" {
		c.file = &lumberjack.Logger{
			Filename:   opts.File.Path,
			MaxSize:    opts.File.MaxSizeMB,
			MaxBackups: opts.File.MaxBackups,
			MaxAge:     opts.File.MaxAgeDays,
			Compress:   opts.File.Compress,
		}
		out = io.MultiWriter(opts.Writer, c.file)
	}
	logger.SetOutput(out)

	return c
}

// Name returns the channel name
func (c *Channel) Name() string {
	return c.name
}

// AppendLine appends one timestamped line.
func (c *Channel) AppendLine(text string) {
	defer func() {
		// A failing writer or subscriber must not reach the caller.
		_ = recover()
	}()

	line := Line{Time: c.now(), Text: text}

	c.mu.Lock()
	c.lines = append(c.lines, line)
	if len(c.lines) > c.maxLines {
		c.lines = append([]Line(nil), c.lines[len(c.lines)-c.maxLines:]...)
	}
	for _, ch := range c.subs {
		select {
		case ch <- line:
		default:
		}
	}
	c.mu.Unlock()

	c.logger.WithTime(line.Time).WithField("channel", c.name).Info(text)
}

// Appendf formats and appends one line
func (c *Channel) Appendf(format string, args ...interface{}) {
	c.AppendLine(fmt.Sprintf(format, args...))
}

// Debugf writes to the log output only when debug logging is enabled; it is
// not recorded in the channel history.
func (c *Channel) Debugf(format string, args ...interface{}) {
	defer func() { _ = recover() }()
	c.logger.WithField("channel", c.name).Debugf(format, args...)
}

// Lines returns a snapshot of the retained history, oldest first
func (c *Channel) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Line(nil), c.lines...)
}

// Subscribe returns a channel receiving every subsequently appended line and a
// function that ends the subscription. Lines are dropped when the buffer is full.
func (c *Channel) Subscribe(buffer int) (<-chan Line, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Line, buffer)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Close releases the log file, if any
func (c *Channel) Close() error {
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
