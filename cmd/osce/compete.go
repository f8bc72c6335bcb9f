package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/medsim/osce/internal/api"
	"github.com/medsim/osce/internal/competition"
	"github.com/medsim/osce/internal/dashboard"
	appI18n "github.com/medsim/osce/internal/i18n"
	"github.com/medsim/osce/internal/model"
	"github.com/medsim/osce/internal/terminal"
)

func competeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compete [competition-id]",
		Short: "Take part in a timed multi-station competition",
		Long: `Join a competition and follow it until the results are published.

Lines typed on stdin are sent to the patient. /done finishes the current
station early, /next starts the next station after the break, /refresh
fetches the status right away and /quit leaves. With --listen the same screen is served as a web dashboard.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompete,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.Bool("join", true, "Register presence before polling")
	f.String("listen", "", "Serve the web dashboard on this address (e.g. 127.0.0.1:8090)")
	f.Bool("secure-cookies", false, "Set the Secure flag on dashboard cookies")
	f.Duration("poll-interval", 3*time.Second, "Competition status poll interval")
	f.Int("station-minutes", 10, "Station time when the server sends none")
	f.Int("rest-minutes", 2, "Break time when the server sends none")
	return cmd
}

func runCompete(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := competitionID(e, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	lctx := e.ctx(ctx)
	out := cmd.OutOrStdout()

	term := terminal.New(lctx, out)
	finished := make(chan struct{}, 1)
	view := competition.ViewFunc(func(f competition.Frame) {
		term.Render(f)
		if f.View == competition.ViewResults && f.Results != nil {
			select {
			case finished <- struct{}{}:
			default:
			}
		}
	})

	var web atomic.Pointer[dashboard.Server]
	expired := make(chan string, 1)
	ctrl := competition.New(e.client, e.client, view, competition.Options{
		PollInterval:   e.v.GetDuration("poll-interval"),
		RequestTimeout: e.v.GetDuration("request-timeout"),
		Durations: competition.Durations{
			Station: time.Duration(e.v.GetInt("station-minutes")) * time.Minute,
			Rest:    time.Duration(e.v.GetInt("rest-minutes")) * time.Minute,
		},
		Greeting: func(st model.CurrentStation) string {
			return appI18n.Td(lctx, "StationGreeting", map[string]any{"Order": st.StationOrder, "Specialty": st.Specialty})
		},
		OnAuthRequired: func(redirect string) {
			if s := web.Load(); s != nil {
				s.AuthRequired(redirect)
			}
			select {
			case expired <- redirect:
			default:
			}
		},
		OnStationComplete: journal(e, id),
	})
	defer ctrl.Stop()

	if e.v.GetBool("join") {
		if err := ctrl.Join(ctx, id); err != nil {
			return err
		}
	} else {
		ctrl.Start(ctx, id)
	}
	if err := e.db.SetLastCompetition(e.client.BaseURL(), id); err != nil {
		slog.Warn("failed to remember competition", "error", err)
	}
	fmt.Fprintln(out, appI18n.T(lctx, "ChatHelp"))

	var served chan error
	if addr := e.v.GetString("listen"); addr != "" {
		s := dashboard.New(ctrl, e.client, dashboard.Config{
			Lang:          e.lang,
			AssetBase:     e.client.BaseURL(),
			LoginHint:     "osce login --server " + e.client.BaseURL(),
			SecureCookies: e.v.GetBool("secure-cookies"),
			OnLeave:       stop,
		})
		web.Store(s)
		served = make(chan error, 1)
		go func() { served <- s.ListenAndServe(ctx, addr) }()
	}

	lines := readLines(ctx, cmd.InOrStdin())
	for {
		select {
		case <-ctx.Done():
			return nil
		case redirect := <-expired:
			return &api.AuthError{Redirect: redirect}
		case err := <-served:
			if err != nil {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		case <-finished:
			if served == nil {
				return nil
			}
			// The dashboard keeps showing the results until the student leaves.
			finished = nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if quit := handleLine(ctx, ctrl, line); quit {
				ctrl.Leave()
				return nil
			}
		}
	}
}

// handleLine runs one stdin line and reports whether the student quit.
func handleLine(ctx context.Context, ctrl *competition.Controller, line string) bool {
	var err error
	switch strings.TrimSpace(line) {
	case "":
		return false
	case "/quit":
		return true
	case "/done":
		err = ctrl.CompleteStation(ctx)
	case "/next":
		err = ctrl.NextStation(ctx)
	case "/refresh":
		ctrl.Poll(ctx)
	default:
		err = ctrl.SendMessage(ctx, line)
	}
	if err != nil {
		slog.Debug("action failed", "error", err)
		switch {
		case errors.Is(err, competition.ErrNoStation),
			errors.Is(err, competition.ErrNotResting),
			errors.Is(err, competition.ErrRestNotOver),
			errors.Is(err, competition.ErrCompleting),
			errors.Is(err, competition.ErrTimeUp):
			ctrl.Notify(competition.NoticeInfo, err.Error())
		}
	}
	return false
}

// journal keeps a local copy of every completed station.
func journal(e *env, competitionID int64) func(int64, model.CurrentStation, []model.ChatMessage, *model.Evaluation) {
	return func(_ int64, st model.CurrentStation, transcript []model.ChatMessage, ev *model.Evaluation) {
		tr := model.SavedTranscript{
			Server:        e.client.BaseURL(),
			CompetitionID: competitionID,
			CaseNumber:    st.CaseNumber,
			Specialty:     st.Specialty,
			SavedAt:       time.Now(),
			Messages:      transcript,
		}
		if ev != nil {
			tr.Score, tr.MaxScore = ev.Score, ev.MaxScore
		}
		if _, err := e.db.SaveTranscript(tr); err != nil {
			slog.Warn("failed to save transcript", "case_number", st.CaseNumber, "error", err)
		}
	}
}

func competitionID(e *env, args []string) (int64, error) {
	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid competition id %q", args[0])
		}
		return id, nil
	}
	id, err := e.db.LastCompetition(e.client.BaseURL())
	if err != nil {
		return 0, fmt.Errorf("read last competition: %w", err)
	}
	if id == 0 {
		return 0, errors.New("no competition id given and none used before")
	}
	return id, nil
}

// readLines delivers stdin lines until EOF or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
