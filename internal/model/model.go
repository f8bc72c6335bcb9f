package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UserRole represents a user's access level (distinct from Role which is chat message roles).
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User is the authenticated account reported by the server.
type User struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Role     UserRole `json:"role"`
}

// SessionInfo is the response of the session check endpoint.
type SessionInfo struct {
	LoggedIn bool  `json:"logged_in"`
	User     *User `json:"user,omitempty"`
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Role represents a chat message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one turn of a consultation transcript.
type ChatMessage struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// StudentStatus is the server-authoritative participation status of a
// student inside a competition session.
type StudentStatus string

const (
	StatusRegistered      StudentStatus = "registered"
	StatusLoggedIn        StudentStatus = "logged_in"
	StatusActive          StudentStatus = "active"
	StatusBetweenStations StudentStatus = "between_stations"
	StatusCompleted       StudentStatus = "completed"
)

// Known reports whether s is one of the statuses the client can render.
func (s StudentStatus) Known() bool {
	switch s {
	case StatusRegistered, StatusLoggedIn, StatusActive, StatusBetweenStations, StatusCompleted:
		return true
	}
	return false
}

// CaseNumber identifies a station. Servers send it either as a JSON string or
// as a JSON number; both decode to the same value.
type CaseNumber string

// UnmarshalJSON accepts "42" and 42.
func (c *CaseNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*c = CaseNumber(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("case number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("case number %s is not an integer", n)
	}
	*c = CaseNumber(n.String())
	return nil
}

func (c CaseNumber) String() string { return string(c) }

// CurrentStation is present in a status only while the student is active.
type CurrentStation struct {
	CaseNumber   CaseNumber `json:"case_number"`
	Specialty    string     `json:"specialty"`
	StationOrder int        `json:"station_order"`
}

// CompetitionStatus is one poll result of the competition status endpoint.
type CompetitionStatus struct {
	SessionID           int64           `json:"session_id"`
	SessionName         string          `json:"session_name"`
	StudentStatus       StudentStatus   `json:"student_status"`
	CurrentStation      *CurrentStation `json:"current_station,omitempty"`
	ProgressPercentage  float64         `json:"progress_percentage"`
	CompletedStations   int             `json:"completed_stations"`
	TotalStations       int             `json:"total_stations"`
	TimePerStation      int             `json:"time_per_station"`      // minutes
	TimeBetweenStations int             `json:"time_between_stations"` // minutes
}

// CompetitionState is the scheduling state of a competition session.
type CompetitionState string

const (
	CompetitionScheduled CompetitionState = "scheduled"
	CompetitionActive    CompetitionState = "active"
	CompetitionCompleted CompetitionState = "completed"
)

// Competition is one entry of the student's competition listing.
type Competition struct {
	ID                  int64            `json:"id"`
	Name                string           `json:"name"`
	Description         string           `json:"description"`
	StartTime           time.Time        `json:"start_time"`
	EndTime             time.Time        `json:"end_time"`
	State               CompetitionState `json:"status"`
	StationsPerSession  int              `json:"stations_per_session"`
	TimePerStation      int              `json:"time_per_station"`
	TimeBetweenStations int              `json:"time_between_stations"`
	ParticipantStatus   StudentStatus    `json:"participant_status,omitempty"`
	CanJoin             bool             `json:"can_join"`
}

// ChecklistItem is one expected clinical action of a station's evaluation grid.
type ChecklistItem struct {
	Description string  `json:"description" validate:"required"`
	Points      float64 `json:"points" validate:"gte=0"`
	Category    string  `json:"category,omitempty"`
}

// CaseImage is an image attached to a station.
type CaseImage struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// PatientInfo describes the simulated patient.
type PatientInfo struct {
	Name       string `json:"name"`
	Age        int    `json:"age" validate:"gte=0,lte=130"`
	Gender     string `json:"gender"`
	Occupation string `json:"occupation,omitempty"`
}

// Station is a simulated clinical case.
type Station struct {
	CaseNumber          CaseNumber      `json:"case_number" validate:"required,numeric"`
	Specialty           string          `json:"specialty" validate:"required"`
	Title               string          `json:"title,omitempty"`
	Patient             PatientInfo     `json:"patient_info"`
	Symptoms            []string        `json:"symptoms,omitempty"`
	History             string          `json:"history,omitempty"`
	Directives          string          `json:"directives,omitempty"`
	ConsultationMinutes int             `json:"consultation_minutes" validate:"gte=0"`
	Checklist           []ChecklistItem `json:"evaluation_checklist,omitempty" validate:"dive"`
	Images              []CaseImage     `json:"images,omitempty"`
}

// MaxPoints sums the checklist points.
func (s Station) MaxPoints() float64 {
	var total float64
	for _, it := range s.Checklist {
		total += it.Points
	}
	return total
}

// Student is a student account managed by admins.
type Student struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session is a scheduled OSCE session.
type Session struct {
	ID                  int64            `json:"id"`
	Name                string           `json:"name"`
	Description         string           `json:"description,omitempty"`
	StartTime           time.Time        `json:"start_time"`
	EndTime             time.Time        `json:"end_time"`
	State               CompetitionState `json:"status"`
	StudentCount        int              `json:"student_count"`
	StationCount        int              `json:"station_count"`
	StationsPerSession  int              `json:"stations_per_session"`
	TimePerStation      int              `json:"time_per_station"`
	TimeBetweenStations int              `json:"time_between_stations"`
}

// SessionRequest is the payload of the session-creation form.
type SessionRequest struct {
	Name                string       `json:"name" validate:"required,max=200"`
	Description         string       `json:"description,omitempty"`
	StartTime           time.Time    `json:"start_time" validate:"required"`
	EndTime             time.Time    `json:"end_time" validate:"required,gtfield=StartTime"`
	StudentIDs          []int64      `json:"student_ids" validate:"min=1,unique"`
	CaseNumbers         []CaseNumber `json:"station_ids" validate:"min=1,unique"`
	StationsPerSession  int          `json:"stations_per_session" validate:"gte=1"`
	TimePerStation      int          `json:"time_per_station" validate:"gte=1"`
	TimeBetweenStations int          `json:"time_between_stations" validate:"gte=0"`
}

// ClientConfig holds runtime client parameters set via CLI flags.
type ClientConfig struct {
	ServerURL      string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	StationTime    time.Duration // used when a status carries no time_per_station
	RestTime       time.Duration // used when a status carries no time_between_stations
}
