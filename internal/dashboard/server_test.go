package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type fakeController struct {
	mu       sync.Mutex
	frame    competition.Frame
	messages []string
	complete int
	next     int
	left     int
	notices  []string
	err      error
}

func (f *fakeController) Snapshot() competition.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame
}

func (f *fakeController) SendMessage(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return f.err
}

func (f *fakeController) CompleteStation(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.complete++
	return f.err
}

func (f *fakeController) NextStation(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return f.err
}

func (f *fakeController) Notify(_ competition.NoticeLevel, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, msg)
}

func (f *fakeController) Leave() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left++
}

type fakeReports struct {
	links []string
	err   error
}

func (f *fakeReports) DownloadReport(_ context.Context, link string, w io.Writer) (int64, error) {
	f.links = append(f.links, link)
	if f.err != nil {
		return 0, f.err
	}
	n, err := io.WriteString(w, "%PDF-1.4")
	return int64(n), err
}

func stationFrame() competition.Frame {
	return competition.Frame{
		View:          competition.ViewStation,
		CompetitionID: 7,
		Station:       &model.CurrentStation{CaseNumber: "42", Specialty: "Cardiology", StationOrder: 2},
	}
}

// getToken loads the index page and returns the CSRF cookie it handed out.
func getToken(t *testing.T, s *Server) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName {
			require.Contains(t, rec.Body.String(), `value="`+c.Value+`"`)
			return c
		}
	}
	t.Fatal("no csrf cookie set")
	return nil
}

func post(s *Server, path string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestIndexRendersFrame(t *testing.T) {
	ctrl := &fakeController{frame: stationFrame()}
	s := New(ctrl, nil, Config{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Station 2")

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lang=fr", nil))
	assert.Contains(t, rec.Body.String(), "Simulateur ECOS")
}

func TestCSRF(t *testing.T) {
	ctrl := &fakeController{frame: stationFrame()}
	s := New(ctrl, nil, Config{})
	cookie := getToken(t, s)

	tests := []struct {
		name   string
		cookie *http.Cookie
		token  string
		want   int
	}{
		{"no cookie", nil, cookie.Value, http.StatusForbidden},
		{"no form token", cookie, "", http.StatusForbidden},
		{"mismatch", cookie, strings.Repeat("x", len(cookie.Value)), http.StatusForbidden},
		{"valid", cookie, cookie.Value, http.StatusSeeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(s, "/complete", tt.cookie, url.Values{"csrf_token": {tt.token}})
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, 1, ctrl.complete, "only the valid request reaches the controller")
}

func TestGetKeepsExistingToken(t *testing.T) {
	s := New(&fakeController{frame: stationFrame()}, nil, Config{})
	cookie := getToken(t, s)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Empty(t, rec.Result().Cookies(), "a valid cookie is not rotated on refresh")
	assert.Contains(t, rec.Body.String(), cookie.Value)
}

func TestActions(t *testing.T) {
	ctrl := &fakeController{frame: stationFrame()}
	left := 0
	s := New(ctrl, nil, Config{OnLeave: func() { left++ }})
	cookie := getToken(t, s)
	form := func(extra ...string) url.Values {
		v := url.Values{"csrf_token": {cookie.Value}}
		for i := 0; i+1 < len(extra); i += 2 {
			v.Set(extra[i], extra[i+1])
		}
		return v
	}

	rec := post(s, "/chat", cookie, form("message", "  Where does it hurt?  "))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, []string{"Where does it hurt?"}, ctrl.messages)

	rec = post(s, "/chat", cookie, form("message", "   "))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, ctrl.messages, 1)

	post(s, "/next", cookie, form())
	assert.Equal(t, 1, ctrl.next)

	rec = post(s, "/leave", cookie, form())
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, ctrl.left)
	assert.Equal(t, 1, left)
}

func TestStateErrorsBecomeNotices(t *testing.T) {
	ctrl := &fakeController{frame: stationFrame(), err: competition.ErrRestNotOver}
	s := New(ctrl, nil, Config{})
	cookie := getToken(t, s)

	post(s, "/next", cookie, url.Values{"csrf_token": {cookie.Value}})
	assert.Equal(t, []string{competition.ErrRestNotOver.Error()}, ctrl.notices)

	// Server failures are already reported by the controller.
	ctrl.err = errors.New("boom")
	post(s, "/next", cookie, url.Values{"csrf_token": {cookie.Value}})
	assert.Len(t, ctrl.notices, 1)
}

func TestAuthRequiredRedirects(t *testing.T) {
	ctrl := &fakeController{frame: stationFrame()}
	s := New(ctrl, nil, Config{LoginHint: "osce login"})
	s.AuthRequired("/login")

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/expired", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/expired", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your session has expired")
	assert.Contains(t, rec.Body.String(), "osce login")
}

func TestReport(t *testing.T) {
	reports := &fakeReports{}
	s := New(&fakeController{}, reports, Config{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report?link=%2Freports%2F7.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
	assert.Equal(t, []string{"/reports/7.pdf"}, reports.links)

	for _, link := range []string{"", "https://evil.example.com/x.pdf", "//evil.example.com/x.pdf"} {
		rec = httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report?link="+url.QueryEscape(link), nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "link %q", link)
	}

	reports.err = errors.New("gone")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report?link=%2Fr.pdf", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealth(t *testing.T) {
	s := New(&fakeController{frame: stationFrame()}, nil, Config{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "station", body["view"])
	assert.EqualValues(t, 7, body["competition_id"])
}
