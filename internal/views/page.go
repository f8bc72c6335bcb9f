package views

import (
	"context"
	"fmt"
	"time"

	"github.com/a-h/templ"

	"github.com/medsim/osce/internal/competition"
	"github.com/medsim/osce/internal/timer"
)

const style = `body{font-family:system-ui,sans-serif;margin:0 auto;max-width:56rem;padding:1rem;color:#1d2530}
header{display:flex;justify-content:space-between;align-items:center;border-bottom:1px solid #d5dbe3;margin-bottom:1rem}
.timer{font-variant-numeric:tabular-nums;font-size:1.6rem;font-weight:600}
.progress{height:.5rem;background:#e6eaf0;border-radius:.25rem}.progress span{display:block;height:100%;background:#2f7d5b;border-radius:.25rem}
.notice{padding:.6rem 1rem;border-radius:.3rem;margin-bottom:1rem}.notice-info{background:#e7f1fb}.notice-error{background:#fbe7e7}
.transcript{max-height:26rem;overflow-y:auto;border:1px solid #d5dbe3;border-radius:.3rem;padding:.5rem}
.msg{margin:.4rem 0}.msg-user{text-align:right}.msg-system{color:#5b6672;font-style:italic}
.thumb img{max-width:8rem;max-height:8rem;border:1px solid #d5dbe3;cursor:zoom-in}
.overlay{display:none;position:fixed;inset:0;overflow:auto;overscroll-behavior:contain;background:rgba(0,0,0,.8)}
.overlay:target{display:flex}.overlay img{margin:auto;max-width:none}.overlay a.close{position:fixed;top:1rem;right:1.5rem;color:#fff;z-index:1}
table{border-collapse:collapse;width:100%}td,th{padding:.3rem .5rem;border-bottom:1px solid #e6eaf0;text-align:left}tr.me{font-weight:600;background:#f3f8f5}`

// Page wraps body in a complete document. A positive refresh reloads the
// page every refresh seconds.
func Page(title string, refresh int, body templ.Component) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<!DOCTYPE html><html><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		if refresh > 0 {
			h.raw(fmt.Sprintf(`<meta http-equiv="refresh" content="%d">`, refresh))
		}
		h.raw("<title>")
		h.text(title)
		h.raw("</title><style>", style, "</style></head><body>")
		h.render(ctx, body)
		h.raw("</body></html>")
	})
}

// FramePage renders the whole student screen for f. csrf is put in every form.
func FramePage(f competition.Frame, csrf string) templ.Component {
	// The station view counts down in the browser so typing is not lost to a reload.
	refresh := 0
	switch f.View {
	case competition.ViewWaitingRoom:
		refresh = 3
	case competition.ViewBetweenStations:
		refresh = 1
	}
	return component(func(ctx context.Context, h *htmlWriter) {
		h.render(ctx, Page(t(ctx, "AppTitle"), refresh, component(func(ctx context.Context, h *htmlWriter) {
			h.raw("<header><h1>")
			h.text(t(ctx, "AppTitle"))
			h.raw("</h1>")
			if f.Status != nil && f.Status.SessionName != "" {
				h.raw("<span>")
				h.text(f.Status.SessionName)
				h.raw("</span>")
			}
			h.raw("</header>")
			h.render(ctx, NoticeBanner(f.Notice))
			h.render(ctx, Body(f, csrf))
		})))
	})
}

// Body selects the view for f.
func Body(f competition.Frame, csrf string) templ.Component {
	switch f.View {
	case competition.ViewWaitingRoom:
		return WaitingRoom(f)
	case competition.ViewStation:
		return StationPanel(f, csrf)
	case competition.ViewBetweenStations:
		return BetweenStations(f, csrf)
	case competition.ViewResults:
		return Results(f, csrf)
	}
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<p class="empty">`)
		h.text(t(ctx, "NoCompetition"))
		h.raw("</p>")
	})
}

// NoticeBanner shows a transient notice, or nothing.
func NoticeBanner(n *competition.Notice) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		if n == nil {
			return
		}
		h.raw(`<div role="alert"`)
		h.attr("class", "notice notice-"+string(n.Level))
		h.raw(">")
		h.text(n.Message)
		h.raw("</div>")
	})
}

// Progress renders the completed/total bar of the competition.
func Progress(f competition.Frame) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		completed, total, pct := f.Progress()
		if total == 0 {
			return
		}
		h.raw(`<p class="progress-label">`)
		h.text(td(ctx, "Progress", map[string]any{"Completed": completed, "Total": total}))
		h.raw(`</p><div class="progress"><span`)
		h.attr("style", fmt.Sprintf("width:%.0f%%", clampPct(pct)))
		h.raw("></span></div>")
	})
}

func clampPct(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

func csrfField(h *htmlWriter, csrf string) {
	h.raw(`<input type="hidden" name="csrf_token"`)
	h.attr("value", csrf)
	h.raw(">")
}

func postButton(ctx context.Context, h *htmlWriter, action, labelID, csrf string, disabled bool) {
	h.raw(`<form method="post"`)
	h.attr("action", action)
	h.raw(">")
	csrfField(h, csrf)
	h.raw(`<button type="submit"`)
	if disabled {
		h.raw(" disabled")
	}
	h.raw(">")
	h.text(t(ctx, labelID))
	h.raw("</button></form>")
}

func clock(h *htmlWriter, id string, left time.Duration) {
	h.raw(`<div class="timer"`)
	h.attr("id", id)
	h.raw(">")
	h.text(timer.Format(left))
	h.raw("</div>")
}

// SessionExpired replaces the dashboard once the server asked for a new
// login. hint tells the student how to log in again.
func SessionExpired(hint string) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.render(ctx, Page(t(ctx, "AppTitle"), 0, component(func(ctx context.Context, h *htmlWriter) {
			h.raw(`<section class="expired"><p role="alert" class="notice notice-error">`)
			h.text(t(ctx, "SessionExpired"))
			h.raw("</p>")
			if hint != "" {
				h.raw("<p><code>")
				h.text(hint)
				h.raw("</code></p>")
			}
			h.raw("</section>")
		})))
	})
}
