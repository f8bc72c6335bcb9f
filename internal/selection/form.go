package selection

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/medsim/osce/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Problem is one rejected form field.
type Problem struct {
	Field string
	Rule  string
}

// InvalidError lists every rejected field of a form.
type InvalidError struct {
	Problems []Problem
}

func (e *InvalidError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+" ("+p.Rule+")")
	}
	return "invalid form: " + strings.Join(parts, ", ")
}

// Has reports whether field was rejected.
func (e *InvalidError) Has(field string) bool {
	for _, p := range e.Problems {
		if p.Field == field {
			return true
		}
	}
	return false
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	inv := &InvalidError{}
	for _, fe := range verrs {
		inv.Problems = append(inv.Problems, Problem{Field: fe.Field(), Rule: fe.Tag()})
	}
	return inv
}

// ValidateStation checks a station record before it is sent to the server.
func ValidateStation(st model.Station) error {
	return check(st)
}

// SessionForm is the admin's session-creation form. The payload is built
// from the current selections only, never from stale copies.
type SessionForm struct {
	Name                string
	Description         string
	StartTime           time.Time
	EndTime             time.Time
	StationsPerSession  int // 0 means every selected station
	TimePerStation      int
	TimeBetweenStations int

	Students *Set[int64, model.Student]
	Stations *Set[model.CaseNumber, model.Station]
}

// NewSessionForm creates an empty form with the usual timings.
func NewSessionForm() *SessionForm {
	return &SessionForm{
		TimePerStation:      10,
		TimeBetweenStations: 2,
		Students:            NewSet(func(s model.Student) int64 { return s.ID }),
		Stations:            NewSet(func(s model.Station) model.CaseNumber { return s.CaseNumber }),
	}
}

// Payload builds and validates the session request.
func (f *SessionForm) Payload() (model.SessionRequest, error) {
	req := model.SessionRequest{
		Name:                strings.TrimSpace(f.Name),
		Description:         strings.TrimSpace(f.Description),
		StartTime:           f.StartTime,
		EndTime:             f.EndTime,
		StudentIDs:          f.Students.Keys(),
		CaseNumbers:         f.Stations.Keys(),
		StationsPerSession:  f.StationsPerSession,
		TimePerStation:      f.TimePerStation,
		TimeBetweenStations: f.TimeBetweenStations,
	}
	if req.StationsPerSession == 0 {
		req.StationsPerSession = len(req.CaseNumbers)
	}
	if err := check(req); err != nil {
		return model.SessionRequest{}, err
	}
	if req.StationsPerSession > len(req.CaseNumbers) {
		return model.SessionRequest{}, &InvalidError{Problems: []Problem{{Field: "StationsPerSession", Rule: "lte_selected"}}}
	}
	return req, nil
}
