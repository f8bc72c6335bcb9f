package views

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	"github.com/medsim/osce/internal/competition"
	appI18n "github.com/medsim/osce/internal/i18n"
	"github.com/medsim/osce/internal/model"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	if ctx == nil {
		ctx = appI18n.Context("en")
	}
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return sb.String()
}

func stationFrame() competition.Frame {
	return competition.Frame{
		View:          competition.ViewStation,
		CompetitionID: 7,
		Status: &model.CompetitionStatus{
			SessionName:        "Spring OSCE",
			StudentStatus:      model.StatusActive,
			CompletedStations:  1,
			TotalStations:      3,
			ProgressPercentage: 33.3,
		},
		Station:          &model.CurrentStation{CaseNumber: "42", Specialty: "Cardiology", StationOrder: 2},
		StationRemaining: 9*time.Minute + 5*time.Second,
	}
}

func TestStationPanel(t *testing.T) {
	out := render(t, nil, FramePage(stationFrame(), "tok"))

	for _, want := range []string{
		"Station 2",
		"Case 42",
		"Cardiology",
		`data-seconds="545"`,
		"09:05",
		"1 of 3 stations completed",
		`action="/chat"`,
		`action="/complete"`,
		`name="csrf_token" value="tok"`,
		"Spring OSCE",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("station page missing %q", want)
		}
	}
	if strings.Contains(out, `http-equiv="refresh"`) {
		t.Error("station page must not reload itself")
	}
}

func TestStationPanelWhileCompleting(t *testing.T) {
	f := stationFrame()
	f.Completing = true
	out := render(t, nil, Body(f, "tok"))
	if !strings.Contains(out, "Submitting your consultation") {
		t.Error("expected the completing label")
	}
	if strings.Contains(out, `action="/chat"`) || strings.Contains(out, `action="/complete"`) {
		t.Error("chat and finish controls should be hidden while completing")
	}
}

func TestTranscriptEscapesContent(t *testing.T) {
	msgs := []model.ChatMessage{
		{Role: model.RoleUser, Content: "<script>alert(1)</script>"},
		{Role: model.RoleAssistant, Content: "first line\nsecond line"},
	}
	out := render(t, nil, Transcript(msgs))
	if strings.Contains(out, "<script>alert") {
		t.Error("message content was not escaped")
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Errorf("expected escaped script tag, got %s", out)
	}
	if !strings.Contains(out, "first line<br>second line") {
		t.Error("line breaks should become <br>")
	}
	if !strings.Contains(out, "Patient:") || !strings.Contains(out, "You:") {
		t.Error("expected role labels")
	}
}

func TestTranscriptImages(t *testing.T) {
	msgs := []model.ChatMessage{
		{Role: model.RoleAssistant, Content: "Here is my ECG [IMAGE:/static/images/ecg.png|12-lead ECG] and more."},
		{Role: model.RoleAssistant, Content: "[IMAGE:javascript:alert(1)|bad]"},
	}
	ctx := WithAssetBase(appI18n.Context("en"), "https://osce.example.org/")
	out := render(t, ctx, Transcript(msgs))

	if !strings.Contains(out, `src="https://osce.example.org/static/images/ecg.png"`) {
		t.Errorf("image should resolve against the server, got %s", out)
	}
	if !strings.Contains(out, `href="#zoom-1"`) || !strings.Contains(out, `id="zoom-1"`) {
		t.Error("expected a thumbnail linked to its overlay")
	}
	if !strings.Contains(out, `alt="12-lead ECG"`) {
		t.Error("expected the description as alt text")
	}
	if strings.Contains(out, "javascript:alert") {
		t.Error("javascript URL was not sanitized")
	}
	if !strings.Contains(out, "and more.") {
		t.Error("text around an image must be kept")
	}
}

func TestBetweenStations(t *testing.T) {
	tests := []struct {
		name     string
		ready    bool
		disabled bool
	}{
		{"resting", false, true},
		{"ready", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := competition.Frame{
				View:             competition.ViewBetweenStations,
				RestRemaining:    75 * time.Second,
				NextStationReady: tt.ready,
				Evaluation:       &model.Evaluation{Score: 7.5, MaxScore: 10},
			}
			out := render(t, nil, Body(f, "tok"))
			if got := strings.Contains(out, "<button type=\"submit\" disabled>"); got != tt.disabled {
				t.Errorf("disabled button = %v, want %v", got, tt.disabled)
			}
			if !strings.Contains(out, "Last station score: 7.5 / 10") {
				t.Errorf("expected last evaluation, got %s", out)
			}
			if !tt.ready && !strings.Contains(out, "01:15") {
				t.Error("expected the rest countdown")
			}
		})
	}
}

func TestResultsLeaderboard(t *testing.T) {
	f := competition.Frame{
		View: competition.ViewResults,
		Results: &model.CompetitionResults{
			TotalScore:   15,
			MaxScore:     20,
			Percentage:   75,
			ShowRankings: true,
			ReportURL:    "/reports/7.pdf",
			Stations: []model.StationResult{
				{StationOrder: 1, Specialty: "Cardiology", Score: 8, MaxScore: 10, ReportURL: "/reports/7-1.pdf"},
			},
			Leaderboard: []model.LeaderboardEntry{
				{Rank: 1, StudentName: "Alice", TotalScore: 18, Percentage: 90, CompletedStations: 2},
				{Rank: 2, StudentName: "Bob", TotalScore: 15, Percentage: 75, CompletedStations: 2, IsCurrentUser: true},
			},
		},
	}
	out := render(t, nil, FramePage(f, "tok"))

	for _, want := range []string{
		"Total score: 15 / 20 (75%)",
		`href="/report?link=%2Freports%2F7.pdf"`,
		`href="/report?link=%2Freports%2F7-1.pdf"`,
		`<tr class="me">`,
		"Bob (you)",
		`action="/leave"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("results page missing %q", want)
		}
	}
	if strings.Contains(out, "Alice (you)") {
		t.Error("only the current user is marked")
	}

	f.Results.ShowRankings = false
	if out := render(t, nil, Body(f, "tok")); strings.Contains(out, "Leaderboard") {
		t.Error("leaderboard should be hidden when rankings are off")
	}
}

func TestWaitingRoomRefreshes(t *testing.T) {
	out := render(t, nil, FramePage(competition.Frame{View: competition.ViewWaitingRoom}, ""))
	if !strings.Contains(out, `<meta http-equiv="refresh" content="3">`) {
		t.Error("waiting room should reload itself")
	}
	if !strings.Contains(out, "Waiting room") {
		t.Error("expected the waiting room heading")
	}
}

func TestNoticeBanner(t *testing.T) {
	if out := render(t, nil, NoticeBanner(nil)); out != "" {
		t.Errorf("nil notice rendered %q", out)
	}
	out := render(t, nil, NoticeBanner(&competition.Notice{Level: competition.NoticeError, Message: "a < b"}))
	if !strings.Contains(out, `class="notice notice-error"`) || !strings.Contains(out, "a &lt; b") {
		t.Errorf("unexpected notice %q", out)
	}
}

func TestNoCompetition(t *testing.T) {
	out := render(t, nil, Body(competition.Frame{}, ""))
	if !strings.Contains(out, "No competition in progress.") {
		t.Errorf("unexpected body %q", out)
	}
}

func TestZoomOverlayScrolls(t *testing.T) {
	out := render(t, nil, Page("Station", 0, Transcript([]model.ChatMessage{
		{Role: model.RoleAssistant, Content: "[IMAGE:/static/images/xray.png|chest X-ray]"},
	})))
	if !strings.Contains(out, ".overlay{display:none;position:fixed;inset:0;overflow:auto") {
		t.Error("overlay should scroll so a full-size image can be panned")
	}
	if !strings.Contains(out, ".overlay img{margin:auto;max-width:none") {
		t.Error("zoomed image should keep its natural size")
	}
	if !strings.Contains(out, `<div class="overlay" id="zoom-1">`) {
		t.Errorf("expected the overlay markup, got %s", out)
	}
}
