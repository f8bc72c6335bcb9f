// Package dashboard serves the student's competition screen on a local
// address and turns its forms into controller actions.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medsim/osce/internal/competition"
	appI18n "github.com/medsim/osce/internal/i18n"
	"github.com/medsim/osce/internal/model"
	"github.com/medsim/osce/internal/views"
)

// Controller is the part of competition.Controller the dashboard drives.
type Controller interface {
	Snapshot() competition.Frame
	SendMessage(ctx context.Context, text string) error
	CompleteStation(ctx context.Context) error
	NextStation(ctx context.Context) error
	Notify(level competition.NoticeLevel, msg string)
	Leave()
}

// ReportFetcher downloads server-generated reports with the student's session.
type ReportFetcher interface {
	DownloadReport(ctx context.Context, link string, w io.Writer) (int64, error)
}

// Config tunes a Server.
type Config struct {
	Lang          string // empty lets the browser's Accept-Language decide
	AssetBase     string // OSCE server URL; transcript images resolve against it
	LoginHint     string // shown once the session expired
	SecureCookies bool
	// OnLeave runs after the student pressed "return to competitions".
	OnLeave func()
}

// Server is the chi application behind the dashboard.
type Server struct {
	ctrl    Controller
	reports ReportFetcher
	cfg     Config
	router  chi.Router

	mu      sync.Mutex
	expired bool
}

// New creates the dashboard for ctrl. reports may be nil, which disables
// report downloads.
func New(ctrl Controller, reports ReportFetcher, cfg Config) *Server {
	s := &Server{ctrl: ctrl, reports: reports, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(cfg.Lang))
	r.Get("/healthz", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.csrfMiddleware)
		s.Routes(r)
	})
	s.router = r
	return s
}

// Routes registers the student routes.
func (s *Server) Routes(r chi.Router) {
	r.Get("/", s.handleIndex)
	r.Get("/expired", s.handleExpired)
	r.Get("/report", s.handleReport)
	r.Post("/chat", s.handleChat)
	r.Post("/complete", s.handleComplete)
	r.Post("/next", s.handleNext)
	r.Post("/leave", s.handleLeave)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// AuthRequired switches the dashboard to the session-expired page. It is
// meant for competition.Options.OnAuthRequired.
func (s *Server) AuthRequired(redirect string) {
	s.mu.Lock()
	s.expired = true
	s.mu.Unlock()
	slog.Warn("dashboard session expired", "redirect", redirect)
}

func (s *Server) isExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	slog.Info("dashboard listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	ctx := views.WithAssetBase(r.Context(), s.cfg.AssetBase)
	if err := c.Render(ctx, w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.isExpired() {
		http.Redirect(w, r, "/expired", http.StatusSeeOther)
		return
	}
	frame := s.ctrl.Snapshot()
	s.render(w, r, http.StatusOK, views.FramePage(frame, model.CSRFTokenFromContext(r.Context())))
}

func (s *Server) handleExpired(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusUnauthorized, views.SessionExpired(s.cfg.LoginHint))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	f := s.ctrl.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"view":           f.View,
		"competition_id": f.CompetitionID,
		"expired":        s.isExpired(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.FormValue("message"))
	if text == "" {
		http.Error(w, "message cannot be empty", http.StatusBadRequest)
		return
	}
	s.act(w, r, "send message", func(ctx context.Context) error {
		return s.ctrl.SendMessage(ctx, text)
	})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "complete station", s.ctrl.CompleteStation)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, "next station", s.ctrl.NextStation)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Leave()
	slog.Info("student left the competition")
	if s.cfg.OnLeave != nil {
		s.cfg.OnLeave()
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// act runs a student action and sends the browser back to the screen. The
// controller reports server failures as notices itself; state errors (no
// station, rest not over) are surfaced here.
func (s *Server) act(w http.ResponseWriter, r *http.Request, name string, fn func(context.Context) error) {
	if err := fn(r.Context()); err != nil {
		slog.Warn("dashboard action failed", "action", name, "error", err)
		switch {
		case errors.Is(err, competition.ErrNoStation),
			errors.Is(err, competition.ErrNotResting),
			errors.Is(err, competition.ErrRestNotOver),
			errors.Is(err, competition.ErrCompleting),
			errors.Is(err, competition.ErrTimeUp):
			s.ctrl.Notify(competition.NoticeInfo, err.Error())
		}
	}
	target := "/"
	if s.isExpired() {
		target = "/expired"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("link")
	if s.reports == nil || !strings.HasPrefix(link, "/") || strings.HasPrefix(link, "//") {
		http.Error(w, "invalid report link", http.StatusBadRequest)
		return
	}
	var buf bytes.Buffer
	if _, err := s.reports.DownloadReport(r.Context(), link, &buf); err != nil {
		slog.Error("report download failed", "link", link, "error", err)
		http.Error(w, "report unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline")
	_, _ = buf.WriteTo(w)
}
