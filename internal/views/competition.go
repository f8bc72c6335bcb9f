package views

import (
	"context"
	"fmt"
	"net/url"

	"github.com/a-h/templ"

	"github.com/medsim/osce/internal/competition"
	"github.com/medsim/osce/internal/model"
	"github.com/medsim/osce/internal/timer"
)

const countdownScript = `<script>(function(){var el=document.getElementById("station-timer");if(!el)return;
var left=parseInt(el.dataset.seconds,10);var pad=function(n){return (n<10?"0":"")+n};
var tick=function(){if(left<=0){setTimeout(function(){location.reload()},1500);return}left--;
el.textContent=pad(Math.floor(left/60))+":"+pad(left%60);setTimeout(tick,1000)};setTimeout(tick,1000)})();</script>`

// WaitingRoom is shown until the competition starts.
func WaitingRoom(f competition.Frame) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<section class="waiting-room"><h2>`)
		h.text(t(ctx, "WaitingRoom"))
		h.raw("</h2><p>")
		h.text(t(ctx, "WaitingForStart"))
		h.raw("</p>")
		h.render(ctx, Progress(f))
		h.raw("</section>")
	})
}

// StationPanel is the consultation screen of the current station.
func StationPanel(f competition.Frame, csrf string) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<section class="station">`)
		if st := f.Station; st != nil {
			h.raw("<h2>")
			h.text(td(ctx, "StationN", map[string]any{"Order": st.StationOrder}))
			h.raw("</h2><p>")
			h.text(t(ctx, "Specialty") + ": " + st.Specialty)
			h.raw(" &middot; ")
			h.text(td(ctx, "CaseN", map[string]any{"Case": st.CaseNumber.String()}))
			h.raw("</p>")
		}
		h.raw(`<p>`)
		h.text(t(ctx, "TimeLeft"))
		h.raw(`</p><div class="timer" id="station-timer"`)
		h.attr("data-seconds", fmt.Sprintf("%d", int(f.StationRemaining.Seconds())))
		h.raw(">")
		h.text(timer.Format(f.StationRemaining))
		h.raw("</div>")
		h.render(ctx, Progress(f))

		h.render(ctx, Transcript(f.Transcript))

		if f.Completing {
			h.raw(`<p class="completing">`)
			h.text(t(ctx, "Completing"))
			h.raw("</p>")
		} else {
			h.raw(`<form method="post" action="/chat" class="chat-form">`)
			csrfField(h, csrf)
			h.raw(`<input type="text" name="message" autocomplete="off" autofocus required`)
			h.attr("placeholder", t(ctx, "MessagePlaceholder"))
			h.raw(`><button type="submit">`)
			h.text(t(ctx, "Send"))
			h.raw("</button></form>")
			postButton(ctx, h, "/complete", "CompleteStation", csrf, false)
		}
		h.raw("</section>")
		if !f.Completing {
			h.raw(countdownScript)
		}
	})
}

// BetweenStations is the rest screen. The next-station button stays disabled
// until the rest countdown has expired.
func BetweenStations(f competition.Frame, csrf string) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<section class="between"><h2>`)
		h.text(t(ctx, "BetweenStations"))
		h.raw("</h2>")
		h.render(ctx, Progress(f))
		if ev := f.Evaluation; ev != nil {
			h.raw(`<p class="evaluation">`)
			h.text(fmt.Sprintf("%s: %s / %s", t(ctx, "LastEvaluation"), score(ev.Score), score(ev.MaxScore)))
			h.raw("</p>")
		}
		if f.NextStationReady {
			postButton(ctx, h, "/next", "NextStation", csrf, false)
		} else {
			h.raw("<p>")
			h.text(t(ctx, "RestLeft"))
			h.raw("</p>")
			clock(h, "rest-timer", f.RestRemaining)
			h.raw("<p>")
			h.text(t(ctx, "NextStationWait"))
			h.raw("</p>")
			postButton(ctx, h, "/next", "NextStation", csrf, true)
		}
		h.raw("</section>")
	})
}

// Results is the final screen with per-station scores and the leaderboard.
func Results(f competition.Frame, csrf string) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<section class="results"><h2>`)
		h.text(t(ctx, "Results"))
		h.raw("</h2>")
		res := f.Results
		if res == nil {
			h.render(ctx, Progress(f))
			postButton(ctx, h, "/leave", "LeaveCompetition", csrf, false)
			h.raw("</section>")
			return
		}

		h.raw(`<p class="total">`)
		h.text(fmt.Sprintf("%s: %s / %s (%.0f%%)", t(ctx, "TotalScore"), score(res.TotalScore), score(res.MaxScore), res.Percentage))
		h.raw("</p>")
		if res.ReportURL != "" {
			h.raw("<p><a")
			h.url("href", reportLink(res.ReportURL))
			h.raw(">")
			h.text(t(ctx, "DownloadReport"))
			h.raw("</a></p>")
		}

		if len(res.Stations) > 0 {
			h.raw("<table class=\"stations\"><thead><tr><th>#</th><th>")
			h.text(t(ctx, "Specialty"))
			h.raw("</th><th>")
			h.text(t(ctx, "Score"))
			h.raw("</th><th>")
			h.text(t(ctx, "Feedback"))
			h.raw("</th><th></th></tr></thead><tbody>")
			for _, st := range res.Stations {
				h.raw("<tr><td>")
				h.text(fmt.Sprintf("%d", st.StationOrder))
				h.raw("</td><td>")
				h.text(st.Specialty)
				h.raw("</td><td>")
				h.text(fmt.Sprintf("%s / %s", score(st.Score), score(st.MaxScore)))
				h.raw("</td><td>")
				h.text(st.Feedback)
				h.raw("</td><td>")
				if st.ReportURL != "" {
					h.raw("<a")
					h.url("href", reportLink(st.ReportURL))
					h.raw(">PDF</a>")
				}
				h.raw("</td></tr>")
			}
			h.raw("</tbody></table>")
		}

		if res.ShowRankings && len(res.Leaderboard) > 0 {
			h.render(ctx, Leaderboard(res.Leaderboard))
		}
		postButton(ctx, h, "/leave", "LeaveCompetition", csrf, false)
		h.raw("</section>")
	})
}

// Leaderboard ranks the participants and highlights the current student.
func Leaderboard(entries []model.LeaderboardEntry) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<h3>`)
		h.text(t(ctx, "Leaderboard"))
		h.raw(`</h3><table class="leaderboard"><thead><tr><th>`)
		h.text(t(ctx, "Rank"))
		h.raw("</th><th>")
		h.text(t(ctx, "Student"))
		h.raw("</th><th>")
		h.text(t(ctx, "Score"))
		h.raw("</th><th>")
		h.text(t(ctx, "Stations"))
		h.raw("</th></tr></thead><tbody>")
		for _, e := range entries {
			if e.IsCurrentUser {
				h.raw(`<tr class="me">`)
			} else {
				h.raw("<tr>")
			}
			h.raw("<td>")
			h.text(fmt.Sprintf("%d", e.Rank))
			h.raw("</td><td>")
			name := e.StudentName
			if e.IsCurrentUser {
				name += " " + t(ctx, "You")
			}
			h.text(name)
			h.raw("</td><td>")
			h.text(fmt.Sprintf("%s (%.0f%%)", score(e.TotalScore), e.Percentage))
			h.raw("</td><td>")
			h.text(fmt.Sprintf("%d", e.CompletedStations))
			h.raw("</td></tr>")
		}
		h.raw("</tbody></table>")
	})
}

// reportLink points at the dashboard route that fetches a report with the
// student's server session.
func reportLink(link string) string {
	return "/report?link=" + url.QueryEscape(link)
}

func score(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}
