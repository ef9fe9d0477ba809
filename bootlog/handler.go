package bootlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
)

// Handler is a slog.Handler that renders one record per line in the form
//
//	INF slot=0 msg key=value key=value
//
// There are no timestamps: the target environment has no wall clock before
// the application starts.
type Handler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewHandler creates a handler writing to w (typically the serial console).
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{
		mu:    &sync.Mutex{},
		out:   w,
		level: level,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.level != nil {
		minLevel = h.level.Level()
	}
	return level >= minLevel
}

// Handle renders the record to the output writer.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 128)

	buf = append(buf, levelTag(r.Level)...)
	buf = append(buf, " slot="...)
	buf = strconv.AppendInt(buf, int64(CurrentSlot()), 10)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	for _, attr := range h.attrs {
		buf = appendAttr(buf, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		buf = appendAttr(buf, slog.Attr{
			Key:   h.prefixKey(attr.Key),
			Value: attr.Value,
		})
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf)
	return err
}

// WithAttrs returns a new Handler with the given attributes added. Keys are
// prefixed with the group open at the time of the call.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for i, attr := range attrs {
		newAttrs[len(h.attrs)+i] = slog.Attr{
			Key:   h.prefixKey(attr.Key),
			Value: attr.Value,
		}
	}

	return &Handler{
		mu:    h.mu,
		out:   h.out,
		level: h.level,
		attrs: newAttrs,
		group: h.group,
	}
}

// WithGroup returns a new Handler with the given group name prefixed onto
// attribute keys.
func (h *Handler) WithGroup(name string) slog.Handler {
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}

	return &Handler{
		mu:    h.mu,
		out:   h.out,
		level: h.level,
		attrs: h.attrs,
		group: newGroup,
	}
}

func (h *Handler) prefixKey(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func appendAttr(buf []byte, attr slog.Attr) []byte {
	if attr.Equal(slog.Attr{}) {
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, attr.Key...)
	buf = append(buf, '=')
	return fmt.Appendf(buf, "%v", attr.Value.Resolve().Any())
}

func levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERR"
	case level >= slog.LevelWarn:
		return "WRN"
	case level >= slog.LevelInfo:
		return "INF"
	}
	return "DBG"
}
