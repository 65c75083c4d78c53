package badger

import (
	"fmt"
	"log/slog"
	"strings"
)

// SlogAdapter adapts slog.Logger to badger's Logger interface.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new slog adapter.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger.With("component", "badger")}
}

func (l *SlogAdapter) Debugf(format string, v ...any) {
	l.logger.Debug(line(format, v...))
}

func (l *SlogAdapter) Infof(format string, v ...any) {
	l.logger.Info(line(format, v...))
}

func (l *SlogAdapter) Warningf(format string, v ...any) {
	l.logger.Warn(line(format, v...))
}

func (l *SlogAdapter) Errorf(format string, v ...any) {
	l.logger.Error(line(format, v...))
}

// badger terminates its messages with a newline
func line(format string, v ...any) string {
	return strings.TrimRight(fmt.Sprintf(format, v...), "\n")
}
