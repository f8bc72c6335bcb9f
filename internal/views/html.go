// Package views renders competition frames as HTML. Components are plain
// templ.Component values; every server- or user-supplied string goes through
// templ's escaping.
package views

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"

	appI18n "github.com/medsim/osce/internal/i18n"
)

// htmlWriter keeps the first write error so components can write straight
// through and check once.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(parts ...string) {
	for _, p := range parts {
		if h.err != nil {
			return
		}
		_, h.err = io.WriteString(h.w, p)
	}
}

// text writes s escaped, keeping line breaks.
func (h *htmlWriter) text(s string) {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if i > 0 {
			h.raw("<br>")
		}
		h.raw(templ.EscapeString(line))
	}
}

func (h *htmlWriter) attr(name, value string) {
	h.raw(" ", name, `="`, templ.EscapeString(value), `"`)
}

func (h *htmlWriter) url(name, value string) {
	h.attr(name, string(templ.URL(value)))
}

func (h *htmlWriter) render(ctx context.Context, c templ.Component) {
	if h.err != nil || c == nil {
		return
	}
	h.err = c.Render(ctx, h.w)
}

func component(f func(ctx context.Context, h *htmlWriter)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		f(ctx, h)
		return h.err
	})
}

func t(ctx context.Context, id string) string { return appI18n.T(ctx, id) }

func td(ctx context.Context, id string, data map[string]any) string { return appI18n.Td(ctx, id, data) }
