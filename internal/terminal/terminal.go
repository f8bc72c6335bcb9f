// Package terminal renders competition frames as plain text.
package terminal

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/medsim/osce/internal/chat"
	"github.com/medsim/osce/internal/competition"
	appI18n "github.com/medsim/osce/internal/i18n"
	"github.com/medsim/osce/internal/model"
	"github.com/medsim/osce/internal/timer"
)

// View prints a block of text when the screen changes and keeps countdown
// ticks on a single status line. It is safe for concurrent use.
type View struct {
	w   io.Writer
	ctx context.Context

	mu         sync.Mutex
	view       competition.ViewKind
	caseNumber model.CaseNumber
	printed    int
	noticeAt   time.Time
	evaluated  bool
	statusLine string
}

// New returns a View writing to w. Labels are translated with the localizer
// carried by ctx.
func New(ctx context.Context, w io.Writer) *View {
	return &View{w: w, ctx: ctx}
}

// Render implements competition.View.
func (v *View) Render(f competition.Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var caseNumber model.CaseNumber
	if f.Station != nil {
		caseNumber = f.Station.CaseNumber
	}
	if f.View != v.view || caseNumber != v.caseNumber {
		v.view, v.caseNumber = f.View, caseNumber
		v.printed = 0
		v.evaluated = false
		v.block(f)
	}

	if n := f.Notice; n != nil && !n.At.Equal(v.noticeAt) {
		v.noticeAt = n.At
		prefix := "!"
		if n.Level == competition.NoticeInfo {
			prefix = "*"
		}
		v.line(prefix + " " + n.Message)
	}

	if f.View == competition.ViewStation {
		for _, m := range f.Transcript[min(v.printed, len(f.Transcript)):] {
			v.line(v.message(m))
		}
		v.printed = len(f.Transcript)
	}
	if f.View == competition.ViewBetweenStations && f.Evaluation != nil && !v.evaluated {
		v.evaluated = true
		v.line(fmt.Sprintf("%s: %s / %s", v.t("LastEvaluation"), score(f.Evaluation.Score), score(f.Evaluation.MaxScore)))
	}

	v.status(f)
}

// block prints the heading of a new screen.
func (v *View) block(f competition.Frame) {
	v.clearStatus()
	var b strings.Builder
	b.WriteString("\n")
	switch f.View {
	case competition.ViewWaitingRoom:
		fmt.Fprintf(&b, "== %s ==\n%s\n", v.t("WaitingRoom"), v.t("WaitingForStart"))
	case competition.ViewStation:
		if st := f.Station; st != nil {
			fmt.Fprintf(&b, "== %s ==\n%s: %s, %s\n",
				v.td("StationN", map[string]any{"Order": st.StationOrder}),
				v.t("Specialty"), st.Specialty,
				v.td("CaseN", map[string]any{"Case": st.CaseNumber.String()}))
		}
	case competition.ViewBetweenStations:
		fmt.Fprintf(&b, "== %s ==\n", v.t("BetweenStations"))
	case competition.ViewResults:
		b.WriteString(v.results(f.Results))
	default:
		b.WriteString(v.t("NoCompetition") + "\n")
	}
	if completed, total, _ := f.Progress(); total > 0 {
		b.WriteString(v.td("Progress", map[string]any{"Completed": completed, "Total": total}) + "\n")
	}
	io.WriteString(v.w, b.String())
}

func (v *View) results(res *model.CompetitionResults) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", v.t("Results"))
	if res == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "%s: %s / %s (%.0f%%)\n", v.t("TotalScore"), score(res.TotalScore), score(res.MaxScore), res.Percentage)
	if len(res.Stations) > 0 {
		b.WriteString(appI18n.Tp(v.ctx, "StationsCompleted", len(res.Stations)) + "\n")
	}
	for _, st := range res.Stations {
		fmt.Fprintf(&b, "  %d. %-20s %s / %s\n", st.StationOrder, st.Specialty, score(st.Score), score(st.MaxScore))
		if st.Feedback != "" {
			fmt.Fprintf(&b, "     %s\n", st.Feedback)
		}
	}
	if res.ShowRankings && len(res.Leaderboard) > 0 {
		fmt.Fprintf(&b, "%s:\n", v.t("Leaderboard"))
		for _, e := range res.Leaderboard {
			mark := " "
			name := e.StudentName
			if e.IsCurrentUser {
				mark = ">"
				name += " " + v.t("You")
			}
			fmt.Fprintf(&b, "%s %3d  %-24s %s (%.0f%%)\n", mark, e.Rank, name, score(e.TotalScore), e.Percentage)
		}
	}
	if res.ReportURL != "" {
		fmt.Fprintf(&b, "%s: %s\n", v.t("DownloadReport"), res.ReportURL)
	}
	return b.String()
}

func (v *View) message(m model.ChatMessage) string { return Message(v.ctx, m) }

// Message formats one transcript turn as "Label: text". Inline images are
// written as [description: path].
func Message(ctx context.Context, m model.ChatMessage) string {
	var label string
	switch m.Role {
	case model.RoleUser:
		label = appI18n.T(ctx, "RoleUser")
	case model.RoleAssistant:
		label = appI18n.T(ctx, "RoleAssistant")
	default:
		label = appI18n.T(ctx, "RoleSystem")
	}
	var b strings.Builder
	for _, seg := range chat.Segments(m.Content) {
		if seg.Kind == chat.SegmentText {
			b.WriteString(seg.Text)
			continue
		}
		if seg.Description != "" {
			fmt.Fprintf(&b, "[%s: %s]", seg.Description, seg.Path)
		} else {
			fmt.Fprintf(&b, "[%s]", seg.Path)
		}
	}
	return label + ": " + strings.TrimSpace(b.String())
}

// status rewrites the single countdown line.
func (v *View) status(f competition.Frame) {
	var s string
	switch f.View {
	case competition.ViewStation:
		if f.Completing {
			s = v.t("Completing")
		} else {
			s = fmt.Sprintf("%s %s", v.t("TimeLeft"), timer.Format(f.StationRemaining))
		}
	case competition.ViewBetweenStations:
		if f.NextStationReady {
			s = v.t("NextStation") + " (/next)"
		} else {
			s = fmt.Sprintf("%s %s", v.t("RestLeft"), timer.Format(f.RestRemaining))
		}
	}
	if s == v.statusLine {
		return
	}
	v.clearStatus()
	if s != "" {
		io.WriteString(v.w, s)
		v.statusLine = s
	}
}

func (v *View) clearStatus() {
	if v.statusLine == "" {
		return
	}
	io.WriteString(v.w, "\r"+strings.Repeat(" ", len(v.statusLine))+"\r")
	v.statusLine = ""
}

func (v *View) line(s string) {
	v.clearStatus()
	io.WriteString(v.w, s+"\n")
}

func (v *View) t(id string) string { return appI18n.T(v.ctx, id) }

func (v *View) td(id string, data map[string]any) string { return appI18n.Td(v.ctx, id, data) }

func score(x float64) string {
	if x == float64(int64(x)) {
		return fmt.Sprintf("%d", int64(x))
	}
	return fmt.Sprintf("%.1f", x)
}
