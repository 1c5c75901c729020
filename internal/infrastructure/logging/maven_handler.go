package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/term"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// systemKey is lifted out of the attributes into the [SYSTEM] bracket
const systemKey = "system"

// MavenHandler is a slog.Handler that formats logs in Maven-style:
//
//	[LEVEL] [SYSTEM] [HH:MM:SS] message key=value key=value trace_id=...
//
// trace_id is appended when the record's context carries a valid span, so
// pass logs can be joined with their reconcile.* spans.
type MavenHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	colors bool

	system string
	groups []string
	attrs  []slog.Attr // already prefixed with the groups open at With time
}

// NewMavenHandler creates a new Maven-style handler
func NewMavenHandler(w io.Writer, opts *slog.HandlerOptions) *MavenHandler {
	h := &MavenHandler{
		w:      w,
		mu:     &sync.Mutex{},
		level:  slog.LevelInfo,
		colors: isTerminal(w),
	}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

// isTerminal checks if the writer is a terminal (for color output)
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// Enabled reports whether the handler handles records at the given level.
func (h *MavenHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes a log record
func (h *MavenHandler) Handle(ctx context.Context, r slog.Record) error {
	name, color := levelStyle(r.Level)

	buf := make([]byte, 0, 256)
	buf = h.paint(buf, color, "["+name+"]")
	if h.system != "" {
		buf = append(buf, " ["...)
		buf = append(buf, h.system...)
		buf = append(buf, ']')
	}
	buf = append(buf, ' ')
	buf = h.paint(buf, colorGray, "["+r.Time.Format("15:04:05")+"]")
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	for _, a := range h.attrs {
		buf = appendAttr(buf, "", a)
	}
	prefix := groupPrefix(h.groups)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != systemKey {
			buf = appendAttr(buf, prefix, a)
		}
		return true
	})

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		buf = append(buf, " trace_id="...)
		buf = append(buf, sc.TraceID().String()...)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *MavenHandler) paint(buf []byte, color, s string) []byte {
	if !h.colors {
		return append(buf, s...)
	}
	buf = append(buf, color...)
	buf = append(buf, s...)
	return append(buf, colorReset...)
}

// appendAttr writes " key=value", flattening groups into dotted keys
func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}

	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, inner, ga)
		}
		return buf
	}

	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	return append(buf, formatValue(a.Value)...)
}

// formatValue quotes values containing spaces so lines stay greppable
func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindDuration:
		s = v.Duration().String()
	case slog.KindTime:
		s = v.Time().Format("2006-01-02T15:04:05Z07:00")
	default:
		s = fmt.Sprint(v.Any())
	}
	if strings.ContainsAny(s, " \t\n\"") {
		return strconv.Quote(s)
	}
	return s
}

func groupPrefix(groups []string) string {
	if len(groups) == 0 {
		return ""
	}
	return strings.Join(groups, ".") + "."
}

func (h *MavenHandler) clone() *MavenHandler {
	c := *h
	c.groups = h.groups[:len(h.groups):len(h.groups)]
	c.attrs = h.attrs[:len(h.attrs):len(h.attrs)]
	return &c
}

// WithAttrs returns a new handler with the given attributes added.
// A top-level "system" attribute becomes the [SYSTEM] bracket.
func (h *MavenHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	prefix := groupPrefix(h.groups)
	for _, a := range attrs {
		if a.Key == systemKey && prefix == "" {
			c.system = a.Value.String()
			continue
		}
		if prefix != "" {
			a = slog.Group(strings.TrimSuffix(prefix, "."), a)
		}
		c.attrs = append(c.attrs, a)
	}
	return c
}

// WithGroup returns a new handler with the given group name added
func (h *MavenHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(c.groups, name)
	return c
}

// levelStyle returns the label and color for a level. Levels between the
// standard ones render as e.g. WARN+2.
func levelStyle(level slog.Level) (string, string) {
	switch {
	case level >= slog.LevelError:
		return level.String(), colorRed
	case level >= slog.LevelWarn:
		return level.String(), colorYellow
	case level >= slog.LevelInfo:
		return level.String(), colorCyan
	default:
		return level.String(), colorGray
	}
}
