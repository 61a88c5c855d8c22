package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	infoTag    = color.New(color.FgGreen).SprintFunc()
	traceTag   = color.New(color.FgCyan).SprintFunc()
	warningTag = color.New(color.FgYellow).SprintFunc()
	errorTag   = color.New(color.FgRed).SprintFunc()
	fatalTag   = color.New(color.FgHiRed, color.Bold).SprintFunc()
)

// ConsoleHandler prints records in the classic UVM layout:
//
//	UVM_WARNING @ 1e-08: top.sqr [SQRUNL] message
type ConsoleHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	attrs []slog.Attr
}

// NewConsoleHandler creates a console handler writing to w. A nil level
// defaults to slog.LevelInfo.
func NewConsoleHandler(w io.Writer, level slog.Leveler) *ConsoleHandler {
	if level == nil {
		level = slog.LevelInfo
	}

	return &ConsoleHandler{mu: &sync.Mutex{}, w: w, level: level}
}

// Enabled reports whether the handler prints records of the given level.
func (h *ConsoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

// Handle prints one record.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var (
		id, reporter string
		simTime      any = "-"
		extra        []string
	)

	visit := func(a slog.Attr) bool {
		switch a.Key {
		case "id":
			id = a.Value.String()
		case "reporter":
			reporter = a.Value.String()
		case "time":
			simTime = a.Value.Any()
		default:
			extra = append(extra, a.Key+"="+a.Value.String())
		}
		return true
	}

	for _, a := range h.attrs {
		visit(a)
	}
	r.Attrs(visit)

	line := fmt.Sprintf("%s @ %v: %s [%s] %s",
		levelTag(r.Level), simTime, reporter, id, r.Message)
	if len(extra) > 0 {
		line += " " + strings.Join(extra, " ")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := fmt.Fprintln(h.w, line)

	return err
}

// WithAttrs returns a handler that prints attrs with every record.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)

	return &h2
}

// WithGroup is a no-op; groups are flattened.
func (h *ConsoleHandler) WithGroup(string) slog.Handler {
	return h
}

func levelTag(l slog.Level) string {
	switch {
	case l >= LevelFatal:
		return fatalTag(Fatal.String())
	case l >= slog.LevelError:
		return errorTag(Error.String())
	case l >= slog.LevelWarn:
		return warningTag(Warning.String())
	case l == LevelTrace:
		return traceTag("UVM_TRACE")
	default:
		return infoTag(Info.String())
	}
}
