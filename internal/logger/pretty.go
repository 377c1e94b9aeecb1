package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// PrettyHandler renders records as a single coloured line:
//
//	[2026-08-31 14:02:11] INFO  converted path=a.dat container=a.dcf
//
// Attribute groups flatten to dotted keys.
type PrettyHandler struct {
	mu     sync.Mutex
	w      io.Writer
	level  slog.Level
	prefix string      // dotted group path for open groups
	attrs  []slog.Attr // pre-bound attrs, keys already prefixed
}

func NewPrettyHandler(w io.Writer, level slog.Level) *PrettyHandler {
	return &PrettyHandler{w: w, level: level}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&b, "%s[%s]%s ", ansiGray, ts.Format(time.DateTime), ansiReset)
	fmt.Fprintf(&b, "%s%s%-5s%s ", levelColour(r.Level), ansiBold, r.Level.String(), ansiReset)
	b.WriteString(r.Message)

	n := len(h.attrs) + r.NumAttrs()
	if n > 0 {
		b.WriteByte(' ')
		b.WriteString(ansiCyan)
		first := true
		for _, a := range h.attrs {
			writeAttr(&b, a, "", &first)
		}
		r.Attrs(func(a slog.Attr) bool {
			writeAttr(&b, a, h.prefix, &first)
			return true
		})
		b.WriteString(ansiReset)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	for _, a := range attrs {
		a.Key = joinKey(h.prefix, a.Key)
		nh.attrs = append(nh.attrs, a)
	}
	return nh
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	nh.prefix = joinKey(h.prefix, name)
	return nh
}

func (h *PrettyHandler) clone() *PrettyHandler {
	return &PrettyHandler{
		w:      h.w,
		level:  h.level,
		prefix: h.prefix,
		attrs:  append([]slog.Attr(nil), h.attrs...),
	}
}

func levelColour(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiBlue
	default:
		return ansiGray
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func writeAttr(b *strings.Builder, a slog.Attr, prefix string, first *bool) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, ga, joinKey(prefix, a.Key), first)
		}
		return
	}
	if !*first {
		b.WriteByte(' ')
	}
	*first = false

	b.WriteString(joinKey(prefix, a.Key))
	b.WriteByte('=')
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if strings.ContainsAny(s, " \t\n\"") {
			fmt.Fprintf(b, "%q", s)
		} else {
			b.WriteString(s)
		}
	case slog.KindTime:
		b.WriteString(a.Value.Time().Format(time.RFC3339))
	default:
		fmt.Fprint(b, a.Value.Any())
	}
}
