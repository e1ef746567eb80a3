package main

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// logMsg is sent when there's a new log entry
type logMsg struct {
	text  string
	style string // "info", "success", "error", "warn"
}

// tuiWriter turns zerolog events into TUI log entries
type tuiWriter struct {
	ch chan logMsg
}

func (w tuiWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

func (w tuiWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.InfoLevel {
		return len(p), nil
	}
	var buf bytes.Buffer
	cw := zerolog.ConsoleWriter{
		Out:          &buf,
		NoColor:      true,
		PartsExclude: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName},
	}
	if _, err := cw.Write(p); err != nil {
		return 0, err
	}
	sendLog(w.ch, logMsg{text: strings.TrimSpace(buf.String()), style: levelStyle(level)})
	return len(p), nil
}

func levelStyle(level zerolog.Level) string {
	switch {
	case level == zerolog.NoLevel:
		return "info"
	case level >= zerolog.ErrorLevel:
		return "error"
	case level == zerolog.WarnLevel:
		return "warn"
	default:
		return "info"
	}
}

// sendLog sends without blocking; the entry is dropped when the channel is full
func sendLog(ch chan logMsg, msg logMsg) {
	if ch == nil {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

// newTUILogger logs into the TUI log pane
func newTUILogger(ch chan logMsg) zerolog.Logger {
	return zerolog.New(tuiWriter{ch: ch}).With().Timestamp().Logger()
}

// newConsoleLogger logs human readable lines to w
func newConsoleLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}
