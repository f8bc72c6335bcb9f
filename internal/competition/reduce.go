// Package competition keeps a student's screen in step with the
// server-authoritative progress of a timed multi-station competition.
package competition

import (
	"time"

	"github.com/medsim/osce/internal/model"
)

// ViewKind selects which screen a frame shows.
type ViewKind string

const (
	ViewNone            ViewKind = ""
	ViewWaitingRoom     ViewKind = "waiting_room"
	ViewStation         ViewKind = "station"
	ViewBetweenStations ViewKind = "between_stations"
	ViewResults         ViewKind = "results"
)

// State is the client-held mirror of the last applied status. It only
// exists to de-duplicate side effects when the same status arrives again.
type State struct {
	CompetitionID int64
	View          ViewKind
	Status        *model.CompetitionStatus
	Station       *model.CurrentStation // station the chat and timer were set up for
	TimerRunning  bool
	Resting       bool
	Submitted     model.CaseNumber // station already sent for completion
}

// EffectKind names a side effect requested by Reduce.
type EffectKind int

const (
	EffectEnterStation EffectKind = iota + 1
	EffectStopStationTimer
	EffectStartRest
	EffectStopRest
	EffectStopAll
	EffectShowResults
)

func (k EffectKind) String() string {
	switch k {
	case EffectEnterStation:
		return "enter_station"
	case EffectStopStationTimer:
		return "stop_station_timer"
	case EffectStartRest:
		return "start_rest"
	case EffectStopRest:
		return "stop_rest"
	case EffectStopAll:
		return "stop_all"
	case EffectShowResults:
		return "show_results"
	}
	return "unknown"
}

// Effect is one side effect for the controller to run.
type Effect struct {
	Kind     EffectKind
	Station  model.CurrentStation // EffectEnterStation
	Duration time.Duration        // EffectEnterStation, EffectStartRest
}

// Durations are used when a status carries no timing of its own.
type Durations struct {
	Station time.Duration
	Rest    time.Duration
}

func (d Durations) station(st model.CompetitionStatus) time.Duration {
	if st.TimePerStation > 0 {
		return time.Duration(st.TimePerStation) * time.Minute
	}
	return d.Station
}

func (d Durations) rest(st model.CompetitionStatus) time.Duration {
	if st.TimeBetweenStations > 0 {
		return time.Duration(st.TimeBetweenStations) * time.Minute
	}
	return d.Rest
}

// Reduce computes the next mirror state and the side effects needed to reach
// it from s. It never changes st.StudentStatus and has no side effects of its
// own. A status the client does not know returns s unchanged with no effects.
func Reduce(s State, st model.CompetitionStatus, d Durations) (State, []Effect) {
	if !st.StudentStatus.Known() {
		return s, nil
	}

	next := s
	status := st
	next.Status = &status
	var effects []Effect

	stopRunning := func() {
		if next.TimerRunning {
			effects = append(effects, Effect{Kind: EffectStopStationTimer})
			next.TimerRunning = false
		}
		if next.Resting {
			effects = append(effects, Effect{Kind: EffectStopRest})
			next.Resting = false
		}
	}

	switch st.StudentStatus {
	case model.StatusRegistered, model.StatusLoggedIn:
		stopRunning()
		next.View = ViewWaitingRoom
		next.Station = nil
		next.Submitted = ""

	case model.StatusActive:
		if st.CurrentStation == nil {
			stopRunning()
			next.View = ViewWaitingRoom
			next.Station = nil
			break
		}
		cur := *st.CurrentStation
		next.View = ViewStation
		sameStation := s.Station != nil && s.Station.CaseNumber == cur.CaseNumber
		if sameStation && (s.TimerRunning || s.Submitted == cur.CaseNumber) {
			// Redundant poll of the station already set up.
			next.Station = &cur
			break
		}
		if next.Resting {
			effects = append(effects, Effect{Kind: EffectStopRest})
			next.Resting = false
		}
		if next.TimerRunning {
			effects = append(effects, Effect{Kind: EffectStopStationTimer})
		}
		effects = append(effects, Effect{Kind: EffectEnterStation, Station: cur, Duration: d.station(st)})
		next.Station = &cur
		next.TimerRunning = true
		next.Submitted = ""

	case model.StatusBetweenStations:
		next.View = ViewBetweenStations
		next.Station = nil
		next.Submitted = ""
		if s.View == ViewBetweenStations {
			break
		}
		if next.TimerRunning {
			effects = append(effects, Effect{Kind: EffectStopStationTimer})
			next.TimerRunning = false
		}
		effects = append(effects, Effect{Kind: EffectStartRest, Duration: d.rest(st)})
		next.Resting = true

	case model.StatusCompleted:
		next.Station = nil
		next.Submitted = ""
		next.TimerRunning = false
		next.Resting = false
		if s.View != ViewResults {
			effects = append(effects, Effect{Kind: EffectStopAll}, Effect{Kind: EffectShowResults})
		}
		next.View = ViewResults
	}

	return next, effects
}
