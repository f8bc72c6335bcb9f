package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/medsim/osce/internal/chat"
	appI18n "github.com/medsim/osce/internal/i18n"
	"github.com/medsim/osce/internal/model"
	"github.com/medsim/osce/internal/patient"
	"github.com/medsim/osce/internal/patient/prompts"
	"github.com/medsim/osce/internal/terminal"
	"github.com/medsim/osce/internal/timer"
)

func practiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice <case-number>",
		Short: "Practice a station consultation without a time limit",
		Args:  cobra.ExactArgs(1),
		RunE:  runPractice,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.Bool("local", false, "Play the patient with a local OpenAI-compatible model instead of the server")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL (with --local)")
	f.String("llm-key", "ollama", "API key for the local model")
	f.String("llm-model", "llama3.2", "Local model name")
	f.String("persona", string(prompts.PersonaStandard), "Patient persona with --local (standard, anxious, reticent)")
	return cmd
}

func runPractice(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	lctx := e.ctx(ctx)
	out := cmd.OutOrStdout()

	caseNumber := model.CaseNumber(strings.TrimSpace(args[0]))
	st, err := e.client.GetCase(ctx, caseNumber)
	if err != nil {
		return fmt.Errorf("load case %s: %w", caseNumber, err)
	}

	var responder chat.Responder = e.client
	if e.v.GetBool("local") {
		persona := strings.ToLower(strings.TrimSpace(e.v.GetString("persona")))
		if !prompts.IsValidPersona(persona) {
			slog.Warn("invalid persona, using standard", "persona", persona)
			persona = string(prompts.PersonaStandard)
		}
		local := patient.New(e.v.GetString("llm-url"), e.v.GetString("llm-key"), e.v.GetString("llm-model"), prompts.Persona(persona), e.client)
		if err := local.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", e.v.GetString("llm-url"), "model", e.v.GetString("llm-model"))
		responder = local
	}

	clock := clockwork.NewRealClock()
	sess := chat.NewSession(responder, clock)
	sess.Start(caseNumber, appI18n.Td(lctx, "PracticeGreeting", map[string]any{"Case": caseNumber.String(), "Specialty": st.Specialty}))
	watch := timer.NewStopwatch(clock, nil)
	watch.Start()

	for _, m := range sess.Transcript().Messages() {
		fmt.Fprintln(out, terminal.Message(lctx, m))
	}
	fmt.Fprintln(out, appI18n.T(lctx, "PracticeHelp"))

	elapsed := func(d time.Duration) string {
		return appI18n.Td(lctx, "PracticeElapsed", map[string]any{"Elapsed": timer.Format(d)})
	}

	lines := readLines(ctx, cmd.InOrStdin())
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "/quit":
				break loop
			case "/time":
				fmt.Fprintln(out, elapsed(watch.Elapsed()))
				continue
			}
			reply, err := sess.Send(ctx, line)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
			fmt.Fprintln(out, terminal.Message(lctx, reply))
		}
	}
	fmt.Fprintln(out, elapsed(watch.Stop()))

	transcript := sess.Transcript().Messages()
	if len(transcript) <= 1 {
		return nil
	}
	id, err := e.db.SaveTranscript(model.SavedTranscript{
		Server:     e.client.BaseURL(),
		CaseNumber: caseNumber,
		Specialty:  st.Specialty,
		SavedAt:    time.Now(),
		Messages:   transcript,
	})
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	slog.Info("practice transcript saved", "id", id, "messages", len(transcript))
	return nil
}
