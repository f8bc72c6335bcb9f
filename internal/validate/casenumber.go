// Package validate checks station case numbers while a form is being edited.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

var (
	ErrEmpty  = errors.New("case number is required")
	ErrFormat = errors.New("case number must be a positive whole number")
	ErrTaken  = errors.New("case number is already used by another station")
)

// State of a case-number field.
type State int

const (
	StateIdle State = iota
	StateChecking
	StateValid
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateValid:
		return "valid"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result is the outcome shown next to the field.
type Result struct {
	State State
	Value string
	Err   error
}

// Checker reports whether a case number is already taken on the server.
type Checker interface {
	CaseNumberExists(ctx context.Context, caseNumber string) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, caseNumber string) (bool, error)

func (f CheckerFunc) CaseNumberExists(ctx context.Context, caseNumber string) (bool, error) {
	return f(ctx, caseNumber)
}

// CheckFormat accepts digits only with at least one non-zero digit.
func CheckFormat(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmpty
	}
	nonZero := false
	for _, r := range value {
		if r < '0' || r > '9' {
			return ErrFormat
		}
		if r != '0' {
			nonZero = true
		}
	}
	if !nonZero {
		return ErrFormat
	}
	return nil
}

// Options tune a CaseNumber validator.
type Options struct {
	Clock    clockwork.Clock
	Debounce time.Duration // default 500ms
	Timeout  time.Duration // per lookup, default 10s
	// Exclude is the case number of the station being edited. It is always
	// valid, so renumbering a station back to itself passes.
	Exclude string
	// OnChange is called after a debounced lookup settles.
	OnChange func(Result)
}

// CaseNumber validates one case-number field. Input is debounced and answers
// from a per-value cache; Check is the blocking re-check used on blur and on
// submit and always asks the server, refreshing the cache. Concurrent lookups
// of the same value share one request.
type CaseNumber struct {
	checker Checker
	opts    Options
	group   singleflight.Group

	mu      sync.Mutex
	cache   map[string]bool
	pending clockwork.Timer
	seq     uint64
	result  Result
	wg      sync.WaitGroup
}

// NewCaseNumber creates a validator backed by checker.
func NewCaseNumber(checker Checker, opts Options) *CaseNumber {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &CaseNumber{checker: checker, opts: opts, cache: make(map[string]bool)}
}

// Input records a keystroke. Format errors and cached answers come back at
// once; otherwise the result is StateChecking and the lookup runs after the
// debounce interval passes without further input.
func (v *CaseNumber) Input(value string) Result {
	value = strings.TrimSpace(value)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancelPendingLocked()
	v.seq++

	if value == "" {
		v.result = Result{State: StateIdle}
		return v.result
	}
	if r, ok := v.localLocked(value); ok {
		v.result = r
		return r
	}
	if exists, ok := v.cache[value]; ok {
		v.result = taken(value, exists)
		return v.result
	}

	seq := v.seq
	v.wg.Add(1)
	v.pending = v.opts.Clock.AfterFunc(v.opts.Debounce, func() {
		defer v.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), v.opts.Timeout)
		defer cancel()
		r := v.lookup(ctx, value)

		v.mu.Lock()
		if seq != v.seq {
			v.mu.Unlock()
			return
		}
		v.pending = nil
		v.result = r
		v.mu.Unlock()
		if v.opts.OnChange != nil {
			v.opts.OnChange(r)
		}
	})
	v.result = Result{State: StateChecking, Value: value}
	return v.result
}

// Check validates value now and waits for the server's answer. Cached
// answers are not trusted here, since another user may have taken the
// number since.
func (v *CaseNumber) Check(ctx context.Context, value string) Result {
	value = strings.TrimSpace(value)

	v.mu.Lock()
	v.cancelPendingLocked()
	v.seq++
	seq := v.seq
	if value == "" {
		v.result = Result{State: StateError, Err: ErrEmpty}
		v.mu.Unlock()
		return Result{State: StateError, Err: ErrEmpty}
	}
	if r, ok := v.localLocked(value); ok {
		v.result = r
		v.mu.Unlock()
		return r
	}
	v.result = Result{State: StateChecking, Value: value}
	v.mu.Unlock()

	r := v.lookup(ctx, value)
	v.mu.Lock()
	if seq == v.seq {
		v.result = r
	}
	v.mu.Unlock()
	return r
}

// Result returns the latest state of the field.
func (v *CaseNumber) Result() Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.result
}

// Close cancels a pending lookup and waits for one already running.
func (v *CaseNumber) Close() {
	v.mu.Lock()
	v.cancelPendingLocked()
	v.seq++
	v.mu.Unlock()
	v.wg.Wait()
}

func (v *CaseNumber) cancelPendingLocked() {
	if v.pending != nil && v.pending.Stop() {
		v.wg.Done()
	}
	v.pending = nil
}

// localLocked answers what needs no server: format errors and the excluded
// case number.
func (v *CaseNumber) localLocked(value string) (Result, bool) {
	if err := CheckFormat(value); err != nil {
		return Result{State: StateError, Value: value, Err: err}, true
	}
	if v.opts.Exclude != "" && value == v.opts.Exclude {
		return Result{State: StateValid, Value: value}, true
	}
	return Result{}, false
}

func (v *CaseNumber) lookup(ctx context.Context, value string) Result {
	out, err, shared := v.group.Do(value, func() (any, error) {
		return v.checker.CaseNumberExists(ctx, value)
	})
	if err != nil {
		slog.Warn("case number lookup failed", "case_number", value, "error", err)
		return Result{State: StateError, Value: value, Err: fmt.Errorf("check case number: %w", err)}
	}
	exists := out.(bool)
	slog.Debug("case number checked", "case_number", value, "exists", exists, "shared", shared)

	v.mu.Lock()
	v.cache[value] = exists
	v.mu.Unlock()
	return taken(value, exists)
}

func taken(value string, exists bool) Result {
	if exists {
		return Result{State: StateError, Value: value, Err: ErrTaken}
	}
	return Result{State: StateValid, Value: value}
}
