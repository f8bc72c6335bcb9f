package model

import "time"

// CompetitionResults is the final screen of a competition.
type CompetitionResults struct {
	SessionID    int64              `json:"session_id"`
	SessionName  string             `json:"session_name"`
	TotalScore   float64            `json:"total_score"`
	MaxScore     float64            `json:"max_score"`
	Percentage   float64            `json:"percentage"`
	Stations     []StationResult    `json:"stations"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
	ReportURL    string             `json:"report_url,omitempty"`
	ShowRankings bool               `json:"show_rankings"`
}

// StationResult holds the server-scored evaluation of one station.
type StationResult struct {
	CaseNumber   CaseNumber `json:"case_number"`
	Specialty    string     `json:"specialty"`
	StationOrder int        `json:"station_order"`
	Score        float64    `json:"score"`
	MaxScore     float64    `json:"max_score"`
	Percentage   float64    `json:"percentage"`
	Feedback     string     `json:"feedback,omitempty"`
	ReportURL    string     `json:"report_url,omitempty"`
}

// LeaderboardEntry is one row of the competition ranking.
type LeaderboardEntry struct {
	Rank              int     `json:"rank"`
	StudentName       string  `json:"student_name"`
	TotalScore        float64 `json:"total_score"`
	Percentage        float64 `json:"percentage"`
	CompletedStations int     `json:"completed_stations"`
	IsCurrentUser     bool    `json:"is_current_user"`
}

// Evaluation is returned after completing a station or a practice case.
type Evaluation struct {
	CaseNumber CaseNumber `json:"case_number"`
	Score      float64    `json:"score"`
	MaxScore   float64    `json:"max_score"`
	Percentage float64    `json:"percentage"`
	Feedback   string     `json:"feedback,omitempty"`
	ReportURL  string     `json:"report_url,omitempty"`
}

// SavedTranscript is a station consultation kept in the local journal.
type SavedTranscript struct {
	ID            int64         `json:"id"`
	Server        string        `json:"server"`
	CompetitionID int64         `json:"competition_id,omitempty"`
	CaseNumber    CaseNumber    `json:"case_number"`
	Specialty     string        `json:"specialty,omitempty"`
	Score         float64       `json:"score"`
	MaxScore      float64       `json:"max_score"`
	SavedAt       time.Time     `json:"saved_at"`
	MessageCount  int           `json:"message_count"`
	Messages      []ChatMessage `json:"messages,omitempty"`
}
