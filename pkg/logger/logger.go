package logger

import (
	"fmt"
	"log"
	"log/slog"
)

// New returns a stdlib *log.Logger that forwards into slog at error level with a component prefix.
// http.Server.ErrorLog only accepts this type.
func New(base *slog.Logger, component string) *log.Logger {
	prefix := fmt.Sprintf("[%s] ", component)
	l := slog.NewLogLogger(base.With("component", component).Handler(), slog.LevelError)
	l.SetPrefix(prefix)
	return l
}
