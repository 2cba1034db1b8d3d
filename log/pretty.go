package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// palette holds the styles of one output. The renderer decides whether the
// writer supports colors at all.
type palette struct {
	key, str, num, ok, bad, dur, ts, null lipgloss.Style
	levels                                map[slog.Level]lipgloss.Style
}

func newPalette(w io.Writer) *palette {
	r := lipgloss.NewRenderer(w)
	color := func(c string) lipgloss.Style {
		return r.NewStyle().Foreground(lipgloss.Color(c))
	}
	return &palette{
		key:  color("8"),
		str:  color("6"),
		num:  color("3"),
		ok:   color("2"),
		bad:  color("1"),
		dur:  color("5"),
		ts:   color("4"),
		null: color("8"),
		levels: map[slog.Level]lipgloss.Style{
			slog.Level(LevelTrace): color("4"),
			slog.LevelDebug:        color("4"),
			slog.LevelInfo:         color("2").Bold(true),
			slog.LevelWarn:         color("3").Bold(true),
			slog.LevelError:        color("1").Bold(true),
		},
	}
}

func (p *palette) level(l slog.Level) string {
	style, ok := p.levels[l]
	if !ok {
		switch {
		case l >= slog.LevelError:
			style = p.levels[slog.LevelError]
		case l >= slog.LevelWarn:
			style = p.levels[slog.LevelWarn]
		case l >= slog.LevelInfo:
			style = p.levels[slog.LevelInfo]
		default:
			style = p.levels[slog.LevelDebug]
		}
	}
	return style.Render(strings.ToUpper(Level(l).String()))
}

func (p *palette) value(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return p.str.Render(v.String())
	case slog.KindInt64:
		return p.num.Render(strconv.FormatInt(v.Int64(), 10))
	case slog.KindUint64:
		return p.num.Render(strconv.FormatUint(v.Uint64(), 10))
	case slog.KindFloat64:
		return p.num.Render(strconv.FormatFloat(v.Float64(), 'g', -1, 64))
	case slog.KindBool:
		if v.Bool() {
			return p.ok.Render("true")
		}
		return p.bad.Render("false")
	case slog.KindDuration:
		return p.dur.Render(v.Duration().String())
	case slog.KindTime:
		return p.ts.Render(v.Time().Format(time.RFC3339))
	case slog.KindAny:
		if v.Any() == nil {
			return p.null.Render("null")
		}
		if err, ok := v.Any().(error); ok {
			return p.bad.Render(err.Error())
		}
	}
	return p.str.Render(v.String())
}

// prettyTextHandler writes one colorized key=value line per record.
type prettyTextHandler struct {
	opts       slog.HandlerOptions
	formatTime func(time.Time) string
	pal        *palette
	mu         *sync.Mutex
	w          io.Writer
	prefix     string
	attrs      []slog.Attr
}

func newPrettyTextHandler(w io.Writer, opts *slog.HandlerOptions, formatTime func(time.Time) string) *prettyTextHandler {
	return &prettyTextHandler{
		opts:       *opts,
		formatTime: formatTime,
		pal:        newPalette(w),
		mu:         &sync.Mutex{},
		w:          w,
	}
}

func (h *prettyTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *prettyTextHandler) Handle(_ context.Context, r slog.Record) error {
	buf := new(bytes.Buffer)

	if ts := h.formatTime(r.Time); !r.Time.IsZero() && ts != "" {
		buf.WriteString(h.pal.ts.Render(ts))
		buf.WriteByte(' ')
	}
	buf.WriteString(h.pal.level(r.Level))
	if h.opts.AddSource {
		if src := r.Source(); src != nil {
			buf.WriteByte(' ')
			buf.WriteString(h.pal.key.Render(fmt.Sprintf("%s:%d", src.File, src.Line)))
		}
	}
	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		h.writeAttr(buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(buf, h.prefix, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *prettyTextHandler) writeAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		group := prefix
		if a.Key != "" {
			group += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.writeAttr(buf, group, ga)
		}
		return
	}
	buf.WriteByte(' ')
	buf.WriteString(h.pal.key.Render(prefix + a.Key))
	buf.WriteByte('=')
	buf.WriteString(h.pal.value(a.Value))
}

func (h *prettyTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *prettyTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// prettyJSONHandler writes indented, colorized JSON-like records.
type prettyJSONHandler struct {
	opts       slog.HandlerOptions
	formatTime func(time.Time) string
	pal        *palette
	mu         *sync.Mutex
	w          io.Writer
	prefix     string
	attrs      []slog.Attr
}

func newPrettyJSONHandler(w io.Writer, opts *slog.HandlerOptions, formatTime func(time.Time) string) *prettyJSONHandler {
	return &prettyJSONHandler{
		opts:       *opts,
		formatTime: formatTime,
		pal:        newPalette(w),
		mu:         &sync.Mutex{},
		w:          w,
	}
}

func (h *prettyJSONHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *prettyJSONHandler) Handle(_ context.Context, r slog.Record) error {
	buf := new(bytes.Buffer)
	buf.WriteString("{")
	first := true
	field := func(key, rendered string) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString("\n  ")
		buf.WriteString(h.pal.key.Render(strconv.Quote(key)))
		buf.WriteString(": ")
		buf.WriteString(rendered)
	}

	if ts := h.formatTime(r.Time); !r.Time.IsZero() && ts != "" {
		field(slog.TimeKey, h.pal.ts.Render(strconv.Quote(ts)))
	}
	field(slog.LevelKey, h.pal.level(r.Level))
	if h.opts.AddSource {
		if src := r.Source(); src != nil {
			field(slog.SourceKey, h.pal.str.Render(strconv.Quote(fmt.Sprintf("%s:%d", src.File, src.Line))))
		}
	}
	field(slog.MessageKey, h.pal.str.Render(strconv.Quote(r.Message)))

	var emit func(prefix string, a slog.Attr)
	emit = func(prefix string, a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		a.Value = a.Value.Resolve()
		if a.Value.Kind() == slog.KindGroup {
			for _, ga := range a.Value.Group() {
				emit(prefix+a.Key+".", ga)
			}
			return
		}
		rendered := h.pal.value(a.Value)
		if a.Value.Kind() == slog.KindString {
			rendered = h.pal.str.Render(strconv.Quote(a.Value.String()))
		}
		field(prefix+a.Key, rendered)
	}
	for _, a := range h.attrs {
		emit("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		emit(h.prefix, a)
		return true
	})
	buf.WriteString("\n}\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *prettyJSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *prettyJSONHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}
