package competition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/medsim/osce/internal/api"
	"github.com/medsim/osce/internal/chat"
	"github.com/medsim/osce/internal/model"
	"github.com/medsim/osce/internal/timer"
)

var (
	ErrNotStarted   = errors.New("no competition in progress")
	ErrNoStation    = errors.New("no station in progress")
	ErrNotResting   = errors.New("not between stations")
	ErrRestNotOver  = errors.New("rest period is not over yet")
	ErrCompleting   = errors.New("station completion already in progress")
	ErrTimeUp       = errors.New("station time is up")
	errStaleSession = errors.New("competition was left")
)

const noticeTTL = 5 * time.Second

// Backend is the part of the OSCE server API the controller drives.
type Backend interface {
	JoinCompetition(ctx context.Context, id int64) error
	CompetitionStatus(ctx context.Context, id int64) (*model.CompetitionStatus, error)
	StartStation(ctx context.Context, id int64, caseNumber model.CaseNumber) error
	CompleteStation(ctx context.Context, id int64, caseNumber model.CaseNumber, conversation []model.ChatMessage) (*model.Evaluation, error)
	NextStation(ctx context.Context, id int64) error
	CompetitionResults(ctx context.Context, id int64) (*model.CompetitionResults, error)
}

// Options tune a Controller. Zero values take the defaults.
type Options struct {
	Clock          clockwork.Clock
	PollInterval   time.Duration // default 3s
	RequestTimeout time.Duration // default 10s
	Durations      Durations     // defaults 10m station, 2m rest

	// Greeting returns the system message that opens a station's chat.
	Greeting func(model.CurrentStation) string
	// OnAuthRequired runs once when the server asks for a new login. The
	// controller has already halted; the hook must not call Stop.
	OnAuthRequired func(redirect string)
	// OnStationComplete runs after the server accepted a station completion.
	OnStationComplete func(competitionID int64, station model.CurrentStation, transcript []model.ChatMessage, ev *model.Evaluation)
}

func (o *Options) setDefaults() {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.Durations.Station <= 0 {
		o.Durations.Station = 10 * time.Minute
	}
	if o.Durations.Rest <= 0 {
		o.Durations.Rest = 2 * time.Minute
	}
}

// Controller owns everything that runs while a student is inside a
// competition: the status poll loop, the station timer, the rest countdown
// and the station chat. Every handle is tagged with a generation; Stop bumps
// it, so callbacks from old handles find a mismatch and do nothing.
type Controller struct {
	backend Backend
	view    View
	chat    *chat.Session
	opts    Options

	mu           sync.Mutex
	gen          uint64
	state        State
	sessCtx      context.Context
	sessCancel   context.CancelFunc
	pollCancel   context.CancelFunc
	pollDone     chan struct{}
	stationTimer *timer.Countdown
	restTimer    *timer.Countdown
	retired      []*timer.Countdown
	stationLeft  time.Duration
	restLeft     time.Duration
	nextReady    bool
	completing   bool
	overdue      model.CaseNumber // time ran out, completion not yet accepted
	evaluation   *model.Evaluation
	results      *model.CompetitionResults
	notice       *Notice
}

// New creates an idle controller.
func New(backend Backend, responder chat.Responder, view View, opts Options) *Controller {
	opts.setDefaults()
	return &Controller{
		backend: backend,
		view:    view,
		chat:    chat.NewSession(responder, opts.Clock),
		opts:    opts,
	}
}

// Chat returns the station consultation session.
func (c *Controller) Chat() *chat.Session { return c.chat }

// Join registers the student in a competition and starts polling it.
func (c *Controller) Join(ctx context.Context, id int64) error {
	if err := c.backend.JoinCompetition(ctx, id); err != nil {
		if errors.Is(err, api.ErrAuthRequired) {
			c.authRequired(c.generation(), err)
		}
		return fmt.Errorf("join competition: %w", err)
	}
	slog.Info("joined competition", "competition_id", id)
	c.Start(ctx, id)
	return nil
}

// Start fetches the competition status immediately and then once per poll
// interval until Stop, a terminal status or ctx cancellation. A loop that is
// already running is stopped first, so at most one loop exists.
func (c *Controller) Start(ctx context.Context, id int64) {
	c.Stop()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = State{CompetitionID: id}
	c.evaluation, c.results, c.notice = nil, nil, nil
	sessCtx, sessCancel := context.WithCancel(ctx)
	loopCtx, cancel := context.WithCancel(sessCtx)
	done := make(chan struct{})
	c.sessCtx, c.sessCancel = sessCtx, sessCancel
	c.pollCancel, c.pollDone = cancel, done
	c.mu.Unlock()

	slog.Debug("competition polling started", "competition_id", id, "interval", c.opts.PollInterval)
	go c.pollLoop(loopCtx, gen, done)
}

func (c *Controller) pollLoop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	ticker := c.opts.Clock.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	c.poll(ctx, gen)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.poll(ctx, gen)
		}
	}
}

// Poll runs one status fetch outside the loop. Failures are logged and skipped.
func (c *Controller) Poll(ctx context.Context) {
	c.poll(ctx, c.generation())
}

func (c *Controller) poll(ctx context.Context, gen uint64) {
	id, ok := c.competitionID(gen)
	if !ok {
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	st, err := c.backend.CompetitionStatus(reqCtx, id)
	if err != nil {
		if errors.Is(err, api.ErrAuthRequired) {
			c.authRequired(gen, err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		slog.Warn("competition status poll failed", "competition_id", id, "error", err)
		return
	}
	c.apply(gen, *st)

	if c.completionOverdue(gen) {
		slog.Info("retrying station completion", "competition_id", id)
		if err := c.complete(ctx, gen, true); err != nil && !errors.Is(err, errStaleSession) {
			slog.Warn("station completion retry failed", "competition_id", id, "error", err)
		}
	}
}

// completionOverdue reports whether the polled station ran out of time
// without the server accepting its completion.
func (c *Controller) completionOverdue(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && c.overdue != "" && !c.completing &&
		c.state.View == ViewStation && c.state.Station != nil && c.state.Station.CaseNumber == c.overdue
}

// Apply renders one status as if it had just been polled.
func (c *Controller) Apply(st model.CompetitionStatus) {
	c.apply(c.generation(), st)
}

func (c *Controller) apply(gen uint64, st model.CompetitionStatus) {
	c.mu.Lock()
	if gen != c.gen || c.state.CompetitionID == 0 {
		c.mu.Unlock()
		return
	}
	if !st.StudentStatus.Known() {
		c.mu.Unlock()
		slog.Warn("ignoring unknown competition status", "competition_id", st.SessionID, "status", st.StudentStatus)
		return
	}

	next, effects := Reduce(c.state, st, c.opts.Durations)
	if st.StudentStatus == model.StatusActive && st.CurrentStation == nil {
		slog.Warn("active status without a current station", "competition_id", c.state.CompetitionID)
	}
	c.state = next
	if c.overdue != "" && (next.Station == nil || next.Station.CaseNumber != c.overdue) {
		c.overdue = ""
	}

	var followups []func()
	for _, e := range effects {
		slog.Debug("competition effect", "effect", e.Kind.String(), "case_number", e.Station.CaseNumber)
		if f := c.runEffectLocked(gen, e); f != nil {
			followups = append(followups, f)
		}
	}
	c.renderLocked()
	c.mu.Unlock()

	for _, f := range followups {
		f()
	}
}

// runEffectLocked applies the local part of an effect and returns the part
// that needs the network, if any.
func (c *Controller) runEffectLocked(gen uint64, e Effect) func() {
	id := c.state.CompetitionID
	switch e.Kind {
	case EffectEnterStation:
		c.retireLocked(c.stationTimer)
		greeting := ""
		if c.opts.Greeting != nil {
			greeting = c.opts.Greeting(e.Station)
		}
		c.chat.Start(e.Station.CaseNumber, greeting)
		c.evaluation = nil
		c.stationLeft = e.Duration
		c.stationTimer = c.newStationTimer(gen, e.Duration)
		c.stationTimer.Start()
		slog.Info("entered station", "competition_id", id, "case_number", e.Station.CaseNumber, "order", e.Station.StationOrder, "duration", e.Duration)
		caseNumber := e.Station.CaseNumber
		return func() {
			ctx, cancel := c.requestContext()
			defer cancel()
			if err := c.backend.StartStation(ctx, id, caseNumber); err != nil {
				if errors.Is(err, api.ErrAuthRequired) {
					c.authRequired(gen, err)
					return
				}
				slog.Warn("start station failed", "competition_id", id, "case_number", caseNumber, "error", err)
			}
		}

	case EffectStopStationTimer:
		c.retireLocked(c.stationTimer)
		c.stationTimer = nil

	case EffectStartRest:
		c.retireLocked(c.restTimer)
		c.restLeft = e.Duration
		c.nextReady = false
		c.restTimer = c.newRestTimer(gen, e.Duration)
		c.restTimer.Start()

	case EffectStopRest:
		c.retireLocked(c.restTimer)
		c.restTimer = nil
		c.nextReady = false

	case EffectStopAll:
		c.haltLocked()

	case EffectShowResults:
		return func() {
			ctx, cancel := c.requestContext()
			defer cancel()
			res, err := c.backend.CompetitionResults(ctx, id)
			if err != nil {
				if errors.Is(err, api.ErrAuthRequired) {
					c.authRequired(gen, err)
					return
				}
				slog.Warn("fetch competition results failed", "competition_id", id, "error", err)
				return
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.gen {
				return
			}
			c.results = res
			c.renderLocked()
		}
	}
	return nil
}

func (c *Controller) newStationTimer(gen uint64, d time.Duration) *timer.Countdown {
	var cd *timer.Countdown
	cd = timer.NewCountdown(c.opts.Clock, d,
		func(left time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.gen || c.stationTimer != cd {
				return
			}
			c.stationLeft = left
			c.renderLocked()
		},
		func() {
			c.mu.Lock()
			if gen != c.gen || c.stationTimer != cd {
				c.mu.Unlock()
				return
			}
			c.retireLocked(cd)
			c.stationTimer = nil
			c.state.TimerRunning = false
			if c.state.Station != nil {
				c.state.Submitted = c.state.Station.CaseNumber
			}
			ctx, id := c.sessCtx, c.state.CompetitionID
			c.mu.Unlock()

			slog.Info("station time is up, completing station", "competition_id", id)
			if err := c.complete(ctx, gen, true); err != nil && !errors.Is(err, errStaleSession) {
				slog.Warn("automatic station completion failed", "error", err)
			}
		})
	return cd
}

func (c *Controller) newRestTimer(gen uint64, d time.Duration) *timer.Countdown {
	var cd *timer.Countdown
	cd = timer.NewCountdown(c.opts.Clock, d,
		func(left time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.gen || c.restTimer != cd {
				return
			}
			c.restLeft = left
			c.renderLocked()
		},
		func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen != c.gen || c.restTimer != cd {
				return
			}
			c.retireLocked(cd)
			c.restTimer = nil
			c.nextReady = true
			c.renderLocked()
		})
	return cd
}

// CompleteStation submits the current station before its timer runs out.
func (c *Controller) CompleteStation(ctx context.Context) error {
	if err := c.complete(ctx, c.generation(), false); err != nil {
		if errors.Is(err, errStaleSession) {
			return ErrNotStarted
		}
		return err
	}
	return nil
}

// complete submits the current station. expired marks a station whose time
// is up: if the server rejects it, the station stays closed to chat and the
// next poll submits it again. Otherwise a rejected completion resumes the
// countdown where it stopped.
func (c *Controller) complete(ctx context.Context, gen uint64, expired bool) error {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return errStaleSession
	}
	if c.state.View != ViewStation || c.state.Station == nil {
		c.mu.Unlock()
		return ErrNoStation
	}
	if c.completing {
		c.mu.Unlock()
		return ErrCompleting
	}
	station := *c.state.Station
	id := c.state.CompetitionID
	expired = expired || c.overdue == station.CaseNumber || c.stationLeft <= 0
	c.completing = true
	c.retireLocked(c.stationTimer)
	c.stationTimer = nil
	c.state.TimerRunning = false
	c.state.Submitted = station.CaseNumber
	transcript := c.chat.Transcript().Messages()
	c.renderLocked()
	c.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()
	ev, err := c.backend.CompleteStation(reqCtx, id, station.CaseNumber, transcript)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return errStaleSession
	}
	c.completing = false
	if err != nil {
		c.resumeStationLocked(gen, station.CaseNumber, expired)
		c.mu.Unlock()
		if errors.Is(err, api.ErrAuthRequired) {
			c.authRequired(gen, err)
			return fmt.Errorf("complete station: %w", err)
		}
		c.Notify(NoticeError, err.Error())
		return fmt.Errorf("complete station: %w", err)
	}
	c.overdue = ""
	c.evaluation = ev
	c.renderLocked()
	c.mu.Unlock()

	slog.Info("station completed", "competition_id", id, "case_number", station.CaseNumber)
	if c.opts.OnStationComplete != nil {
		c.opts.OnStationComplete(id, station, transcript, ev)
	}
	c.poll(ctx, gen)
	return nil
}

func (c *Controller) resumeStationLocked(gen uint64, caseNumber model.CaseNumber, expired bool) {
	if c.state.View != ViewStation || c.state.Station == nil || c.state.Station.CaseNumber != caseNumber {
		return
	}
	if expired {
		c.overdue = caseNumber
		return
	}
	c.state.Submitted = ""
	c.state.TimerRunning = true
	c.stationTimer = c.newStationTimer(gen, c.stationLeft)
	c.stationTimer.Start()
}

// NextStation starts the next station once the rest countdown has expired.
func (c *Controller) NextStation(ctx context.Context) error {
	c.mu.Lock()
	gen, id := c.gen, c.state.CompetitionID
	switch {
	case id == 0:
		c.mu.Unlock()
		return ErrNotStarted
	case c.state.View != ViewBetweenStations:
		c.mu.Unlock()
		return ErrNotResting
	case !c.nextReady:
		c.mu.Unlock()
		return ErrRestNotOver
	}
	c.mu.Unlock()

	if err := c.backend.NextStation(ctx, id); err != nil {
		if errors.Is(err, api.ErrAuthRequired) {
			c.authRequired(gen, err)
		} else {
			c.Notify(NoticeError, err.Error())
		}
		return fmt.Errorf("next station: %w", err)
	}
	c.poll(ctx, gen)
	return nil
}

// SendMessage posts a chat message for the current station.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	gen := c.gen
	if c.state.View != ViewStation || c.state.Station == nil || c.completing {
		c.mu.Unlock()
		return ErrNoStation
	}
	if c.overdue != "" {
		c.mu.Unlock()
		return ErrTimeUp
	}
	c.mu.Unlock()

	_, err := c.chat.Send(ctx, text)
	if err != nil {
		if errors.Is(err, api.ErrAuthRequired) {
			c.authRequired(gen, err)
			return err
		}
		if !errors.Is(err, chat.ErrStationChanged) {
			c.Notify(NoticeError, err.Error())
		}
		return err
	}
	c.mu.Lock()
	if gen == c.gen {
		c.renderLocked()
	}
	c.mu.Unlock()
	return nil
}

// Notify shows a transient notification on the current view.
func (c *Controller) Notify(level NoticeLevel, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.CompetitionID == 0 {
		return
	}
	c.notice = &Notice{Level: level, Message: msg, At: c.opts.Clock.Now()}
	c.renderLocked()
}

// Snapshot returns the frame that would be rendered now.
func (c *Controller) Snapshot() Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameLocked()
}

// State returns a copy of the mirror state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stop cancels the poll loop, the station timer and the rest countdown in
// one step, resets the de-duplication guards and waits for every goroutine
// the controller started. It must not be called from a View or a hook.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.gen++
	c.haltLocked()
	if c.sessCancel != nil {
		c.sessCancel()
		c.sessCancel = nil
	}
	done := c.pollDone
	c.pollDone = nil
	retired := c.retired
	c.retired = nil
	c.state.Station = nil
	c.state.TimerRunning = false
	c.state.Resting = false
	c.state.Submitted = ""
	c.completing = false
	c.overdue = ""
	c.nextReady = false
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	for _, t := range retired {
		<-t.Done()
	}
}

// Leave stops everything and discards the mirror state ("return to competitions").
func (c *Controller) Leave() {
	c.Stop()
	c.chat.Reset()
	c.mu.Lock()
	c.state = State{}
	c.evaluation, c.results, c.notice = nil, nil, nil
	c.stationLeft, c.restLeft = 0, 0
	c.mu.Unlock()
}

// haltLocked cancels the loop and both timers without waiting for them.
func (c *Controller) haltLocked() {
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	c.retireLocked(c.stationTimer)
	c.retireLocked(c.restTimer)
	c.stationTimer, c.restTimer = nil, nil
}

// retireLocked stops t and keeps it until its goroutine exits, so Stop can
// wait for it. Countdowns that already exited are dropped.
func (c *Controller) retireLocked(t *timer.Countdown) {
	if t == nil {
		return
	}
	t.Stop()
	all := append(c.retired, t)
	live := all[:0]
	for _, r := range all {
		select {
		case <-r.Done():
		default:
			live = append(live, r)
		}
	}
	clear(all[len(live):])
	c.retired = live
}

func (c *Controller) authRequired(gen uint64, err error) {
	redirect := "/login"
	var ae *api.AuthError
	if errors.As(err, &ae) {
		redirect = ae.Redirect
	}
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.haltLocked()
	if c.sessCancel != nil {
		c.sessCancel()
		c.sessCancel = nil
	}
	c.mu.Unlock()

	slog.Warn("session expired, login required", "redirect", redirect)
	if c.opts.OnAuthRequired != nil {
		c.opts.OnAuthRequired(redirect)
	}
}

func (c *Controller) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Controller) competitionID(gen uint64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state.CompetitionID == 0 {
		return 0, false
	}
	return c.state.CompetitionID, true
}

// requestContext bounds a follow-up request. It outlives the poll loop so
// results can still load after the terminal status halted polling, and is
// cancelled by Stop.
func (c *Controller) requestContext() (context.Context, context.CancelFunc) {
	c.mu.Lock()
	base := c.sessCtx
	c.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, c.opts.RequestTimeout)
}

func (c *Controller) renderLocked() {
	if c.view != nil {
		c.view.Render(c.frameLocked())
	}
}

func (c *Controller) frameLocked() Frame {
	f := Frame{
		View:             c.state.View,
		CompetitionID:    c.state.CompetitionID,
		StationRemaining: c.stationLeft,
		RestRemaining:    c.restLeft,
		NextStationReady: c.nextReady,
		Completing:       c.completing || c.overdue != "",
		Evaluation:       c.evaluation,
		Results:          c.results,
	}
	if c.state.Status != nil {
		st := *c.state.Status
		f.Status = &st
	}
	if c.state.Station != nil {
		s := *c.state.Station
		f.Station = &s
	}
	if f.View == ViewStation {
		f.Transcript = c.chat.Transcript().Messages()
	}
	if c.notice != nil && c.opts.Clock.Since(c.notice.At) < noticeTTL {
		n := *c.notice
		f.Notice = &n
	}
	return f
}
