package competition

import (
	"time"

	"github.com/medsim/osce/internal/model"
)

// NoticeLevel is the severity of a transient on-screen notification.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a transient notification shown on top of the current view.
type Notice struct {
	Level   NoticeLevel
	Message string
	At      time.Time
}

// Frame is the complete view model of the student's competition screen.
type Frame struct {
	View             ViewKind
	CompetitionID    int64
	Status           *model.CompetitionStatus
	Station          *model.CurrentStation
	StationRemaining time.Duration
	RestRemaining    time.Duration
	NextStationReady bool
	Completing       bool
	Transcript       []model.ChatMessage
	Evaluation       *model.Evaluation
	Results          *model.CompetitionResults
	Notice           *Notice
}

// Progress returns completed and total station counts and the percentage.
func (f Frame) Progress() (completed, total int, pct float64) {
	if f.Status == nil {
		return 0, 0, 0
	}
	return f.Status.CompletedStations, f.Status.TotalStations, f.Status.ProgressPercentage
}

// View receives every frame the controller renders. Render is called with
// the controller's lock held, so it must not call back into the controller.
type View interface {
	Render(Frame)
}

// ViewFunc adapts a function to View.
type ViewFunc func(Frame)

// Render calls f.
func (f ViewFunc) Render(fr Frame) { f(fr) }
