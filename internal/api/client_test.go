package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medsim/osce/internal/model"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsBadScheme(t *testing.T) {
	if _, err := New("ftp://example.com"); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestRequestHeaders(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Requested-With"); got != "XMLHttpRequest" {
			t.Errorf("X-Requested-With = %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		_, _ = w.Write([]byte(`{"logged_in":true,"user":{"id":3,"username":"amina","role":"student"}}`))
	}))

	info, err := c.CheckSession(context.Background())
	if err != nil {
		t.Fatalf("CheckSession: %v", err)
	}
	if !info.LoggedIn || info.User.Role != model.UserRoleStudent {
		t.Errorf("unexpected session info %+v", info)
	}
}

func TestAuthErrors(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantAuth     bool
		wantRedirect string
	}{
		{"auth_required flag", `{"auth_required":true}`, true, "/login"},
		{"explicit redirect", `{"redirect":"/login?next=/student"}`, true, "/login?next=/student"},
		{"plain 401", `{"error":"nope"}`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(tt.body))
			}))
			_, err := c.CompetitionStatus(context.Background(), 1)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrAuthRequired); got != tt.wantAuth {
				t.Fatalf("errors.Is(ErrAuthRequired) = %v, want %v (err=%v)", got, tt.wantAuth, err)
			}
			if !tt.wantAuth {
				return
			}
			var ae *AuthError
			if !errors.As(err, &ae) {
				t.Fatalf("expected *AuthError, got %T", err)
			}
			if ae.Redirect != tt.wantRedirect {
				t.Errorf("redirect = %q, want %q", ae.Redirect, tt.wantRedirect)
			}
		})
	}
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		wantMsg string
	}{
		{"error field", http.StatusBadRequest, `{"error":"competition not started"}`, "competition not started"},
		{"message field", http.StatusConflict, `{"message":"already joined"}`, "already joined"},
		{"success false on 200", http.StatusOK, `{"success":false,"error":"closed"}`, "closed"},
		{"no body", http.StatusInternalServerError, ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			err := c.JoinCompetition(context.Background(), 9)
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected *StatusError, got %v", err)
			}
			if se.Code != tt.code {
				t.Errorf("code = %d, want %d", se.Code, tt.code)
			}
			if se.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", se.Message, tt.wantMsg)
			}
		})
	}
}

func TestCompetitionEndpoints(t *testing.T) {
	var completed map[string]json.RawMessage
	mux := http.NewServeMux()
	mux.HandleFunc("GET /student/competitions/7/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"student_status":"active","current_station":{"case_number":"42","specialty":"Neurology","station_order":2},"total_stations":3}`))
	})
	mux.HandleFunc("POST /student/competitions/7/complete_station", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&completed); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true,"evaluation":{"case_number":"42","score":8,"max_score":10}}`))
	})
	mux.HandleFunc("GET /student/competitions", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"competitions":[{"id":7,"name":"Spring OSCE","status":"active","can_join":true}]}`))
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	st, err := c.CompetitionStatus(ctx, 7)
	if err != nil {
		t.Fatalf("CompetitionStatus: %v", err)
	}
	if st.SessionID != 7 {
		t.Errorf("session id = %d, want 7 (filled from request)", st.SessionID)
	}
	if st.CurrentStation.CaseNumber != "42" {
		t.Errorf("case number = %q", st.CurrentStation.CaseNumber)
	}

	ev, err := c.CompleteStation(ctx, 7, "42", []model.ChatMessage{{Role: model.RoleUser, Content: "Where does it hurt?"}})
	if err != nil {
		t.Fatalf("CompleteStation: %v", err)
	}
	if ev.Score != 8 {
		t.Errorf("score = %v, want 8", ev.Score)
	}
	if !bytes.Contains(completed["conversation"], []byte("Where does it hurt?")) {
		t.Errorf("conversation not sent: %s", completed["conversation"])
	}

	list, err := c.ListCompetitions(ctx)
	if err != nil {
		t.Fatalf("ListCompetitions: %v", err)
	}
	if len(list) != 1 || !list[0].CanJoin {
		t.Errorf("unexpected listing %+v", list)
	}
}

func TestLoginKeepsCookie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("username") != "amina" || r.FormValue("password") != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"auth_required":true}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok", Path: "/"})
	})
	mux.HandleFunc("GET /check_session", func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("session"); err != nil || ck.Value != "tok" {
			_, _ = w.Write([]byte(`{"logged_in":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"logged_in":true,"user":{"id":1,"username":"amina","role":"student"}}`))
	})
	c := newTestClient(t, mux)

	u, err := c.Login(context.Background(), "amina", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.Username != "amina" {
		t.Errorf("username = %q", u.Username)
	}
	if len(c.Cookies()) != 1 {
		t.Errorf("expected 1 cookie in jar, got %d", len(c.Cookies()))
	}

	if _, err := c.Login(context.Background(), "amina", "wrong"); !errors.Is(err, ErrAuthRequired) {
		t.Errorf("wrong password: got %v, want ErrAuthRequired", err)
	}
}

func TestCaseNumberExists(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/teacher/check_case_number/12" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"exists":true}`))
	}))
	exists, err := c.CaseNumberExists(context.Background(), AreaTeacher, "12")
	if err != nil {
		t.Fatalf("CaseNumberExists: %v", err)
	}
	if !exists {
		t.Error("expected exists")
	}
}

func TestDownloadReport(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/download_report/5" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))

	var buf bytes.Buffer
	n, err := c.DownloadReport(context.Background(), "/download_report/5", &buf)
	if err != nil {
		t.Fatalf("DownloadReport: %v", err)
	}
	if n != 8 || buf.String() != "%PDF-1.4" {
		t.Errorf("got %d bytes %q", n, buf.String())
	}

	if _, err := c.DownloadReport(context.Background(), "/download_report/6", &buf); err == nil {
		t.Error("expected error for missing report")
	}
}

func TestAdminEndpoints(t *testing.T) {
	var calls []string
	var session model.SessionRequest
	var student map[string]any
	mux := http.NewServeMux()
	record := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, r.Method+" "+r.URL.Path)
			h(w, r)
		}
	}
	ok := func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"success":true}`)) }
	mux.HandleFunc("GET /admin/stations", record(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"stations":[{"case_number":12,"specialty":"Cardiology"},{"case_number":"13","specialty":"Neurology"}]}`))
	}))
	mux.HandleFunc("POST /admin/stations", record(ok))
	mux.HandleFunc("DELETE /admin/stations/{case}", record(ok))
	mux.HandleFunc("POST /teacher/edit_case/{case}", record(ok))
	mux.HandleFunc("DELETE /teacher/delete_case/{case}", record(ok))
	mux.HandleFunc("GET /get_case/{case}", record(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"case_number":"` + r.PathValue("case") + `","specialty":"Cardiology","consultation_minutes":8}`))
	}))
	mux.HandleFunc("GET /admin/students", record(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"students":[{"id":1,"name":"Amina","email":"a@example.org"}]}`))
	}))
	mux.HandleFunc("POST /admin/students", record(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&student)
		_, _ = w.Write([]byte(`{"id":9}`))
	}))
	mux.HandleFunc("DELETE /admin/students/{id}", record(ok))
	mux.HandleFunc("GET /admin/sessions", record(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sessions":[{"id":4,"name":"Spring OSCE","status":"scheduled"}]}`))
	}))
	mux.HandleFunc("POST /admin/sessions", record(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&session)
		_, _ = w.Write([]byte(`{"session_id":5}`))
	}))
	mux.HandleFunc("DELETE /admin/sessions/{id}", record(ok))
	c := newTestClient(t, mux)
	ctx := context.Background()

	stations, err := c.ListStations(ctx)
	if err != nil {
		t.Fatalf("ListStations: %v", err)
	}
	if len(stations) != 2 || stations[0].CaseNumber != "12" || stations[1].CaseNumber != "13" {
		t.Errorf("stations = %+v", stations)
	}
	st, err := c.GetCase(ctx, "12")
	if err != nil || st.ConsultationMinutes != 8 {
		t.Fatalf("GetCase = %+v, %v", st, err)
	}
	if err := c.CreateStation(ctx, *st); err != nil {
		t.Errorf("CreateStation: %v", err)
	}
	if err := c.EditCase(ctx, "12", *st); err != nil {
		t.Errorf("EditCase: %v", err)
	}
	if err := c.DeleteCase(ctx, "12"); err != nil {
		t.Errorf("DeleteCase: %v", err)
	}
	if err := c.DeleteStation(ctx, "13"); err != nil {
		t.Errorf("DeleteStation: %v", err)
	}

	students, err := c.ListStudents(ctx)
	if err != nil || len(students) != 1 || students[0].Name != "Amina" {
		t.Fatalf("ListStudents = %+v, %v", students, err)
	}
	id, err := c.CreateStudent(ctx, model.Student{Name: "Yann", Email: "y@example.org"}, "s3cret")
	if err != nil || id != 9 {
		t.Fatalf("CreateStudent = %d, %v", id, err)
	}
	if student["password"] != "s3cret" || student["name"] != "Yann" {
		t.Errorf("student body = %v", student)
	}
	if err := c.DeleteStudent(ctx, 9); err != nil {
		t.Errorf("DeleteStudent: %v", err)
	}

	sessions, err := c.ListSessions(ctx)
	if err != nil || len(sessions) != 1 || sessions[0].Name != "Spring OSCE" {
		t.Fatalf("ListSessions = %+v, %v", sessions, err)
	}
	sid, err := c.CreateSession(ctx, model.SessionRequest{Name: "Autumn", StudentIDs: []int64{1, 2}, CaseNumbers: []model.CaseNumber{"12"}})
	if err != nil || sid != 5 {
		t.Fatalf("CreateSession = %d, %v", sid, err)
	}
	if session.Name != "Autumn" || len(session.StudentIDs) != 2 {
		t.Errorf("session body = %+v", session)
	}
	if err := c.DeleteSession(ctx, 5); err != nil {
		t.Errorf("DeleteSession: %v", err)
	}

	want := []string{
		"GET /admin/stations", "GET /get_case/12", "POST /admin/stations", "POST /teacher/edit_case/12",
		"DELETE /teacher/delete_case/12", "DELETE /admin/stations/13",
		"GET /admin/students", "POST /admin/students", "DELETE /admin/students/9",
		"GET /admin/sessions", "POST /admin/sessions", "DELETE /admin/sessions/5",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %q", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}
