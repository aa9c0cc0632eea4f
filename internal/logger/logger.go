// Package logger is the process-wide logging facade: slog text output
// behind printf helpers, with runtime level and output switching and a
// venue-scoped variant for code paths that act on one exchange.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"log/slog"
)

// swapWriter lets SetOutput retarget running loggers without
// rebuilding the handler under concurrent writers.
type swapWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *swapWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *swapWriter) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

var (
	out      = &swapWriter{w: os.Stdout}
	levelVar slog.LevelVar
	root     = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: &levelVar}))
)

// SetOutput redirects all subsequent log lines to w.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	out.set(w)
}

func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info":
		levelVar.Set(slog.LevelInfo)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func Debugf(format string, v ...any) {
	root.Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	root.Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	root.Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	root.Error(fmt.Sprintf(format, v...))
}

// VenueLog stamps every line with the venue it concerns, keeping
// interleaved multi-venue output attributable.
type VenueLog struct {
	venue string
}

func ForVenue(name string) VenueLog { return VenueLog{venue: name} }

func (l VenueLog) Debugf(format string, v ...any) {
	root.Debug(fmt.Sprintf(format, v...), slog.String("venue", l.venue))
}

func (l VenueLog) Infof(format string, v ...any) {
	root.Info(fmt.Sprintf(format, v...), slog.String("venue", l.venue))
}

func (l VenueLog) Warnf(format string, v ...any) {
	root.Warn(fmt.Sprintf(format, v...), slog.String("venue", l.venue))
}

func (l VenueLog) Errorf(format string, v ...any) {
	root.Error(fmt.Sprintf(format, v...), slog.String("venue", l.venue))
}
