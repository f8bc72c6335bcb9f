package model

import (
	"encoding/json"
	"testing"
)

func TestCaseNumberUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    CaseNumber
		wantErr bool
	}{
		{"string", `"42"`, "42", false},
		{"number", `42`, "42", false},
		{"padded string", `" 7 "`, "7", false},
		{"null", `null`, "", false},
		{"float", `4.5`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got CaseNumber
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompetitionStatusDecode(t *testing.T) {
	raw := `{"student_status":"active","current_station":{"case_number":42,"specialty":"Cardiology","station_order":2},"progress_percentage":50,"completed_stations":1,"total_stations":2}`
	var st CompetitionStatus
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.StudentStatus != StatusActive {
		t.Errorf("status = %q, want active", st.StudentStatus)
	}
	if st.CurrentStation == nil || st.CurrentStation.CaseNumber != "42" {
		t.Fatalf("current station = %+v, want case 42", st.CurrentStation)
	}
	if st.CurrentStation.StationOrder != 2 {
		t.Errorf("station order = %d, want 2", st.CurrentStation.StationOrder)
	}
}

func TestStudentStatusKnown(t *testing.T) {
	for _, s := range []StudentStatus{StatusRegistered, StatusLoggedIn, StatusActive, StatusBetweenStations, StatusCompleted} {
		if !s.Known() {
			t.Errorf("%q should be known", s)
		}
	}
	if StudentStatus("paused").Known() {
		t.Error("paused should not be known")
	}
}

func TestStationMaxPoints(t *testing.T) {
	s := Station{Checklist: []ChecklistItem{{Points: 2}, {Points: 1.5}, {Points: 0}}}
	if got := s.MaxPoints(); got != 3.5 {
		t.Errorf("MaxPoints() = %v, want 3.5", got)
	}
}
