package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/medsim/osce/internal/terminal"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <link>",
		Short: "Download a station or competition PDF report",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}
	commonFlags(cmd.Flags())
	cmd.Flags().StringP("output", "o", "", "Output file (defaults to the report file name)")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	out := e.v.GetString("output")
	if out == "" {
		out = path.Base(args[0])
		if out == "." || out == "/" {
			out = "report.pdf"
		}
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	n, err := e.client.DownloadReport(e.ctx(cmd.Context()), args[0], f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out)
		return fmt.Errorf("download report: %w", err)
	}
	slog.Info("report saved", "path", out, "bytes", n)
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse the consultations kept in the local journal",
	}

	list := &cobra.Command{Use: "list", Short: "List saved consultations", Args: cobra.NoArgs, RunE: runHistoryList}
	commonFlags(list.Flags())
	list.Flags().Int("limit", 20, "Maximum number of entries")

	show := &cobra.Command{Use: "show <id>", Short: "Print a saved consultation", Args: cobra.ExactArgs(1), RunE: runHistoryShow}
	commonFlags(show.Flags())
	show.Flags().Bool("json", false, "Print as JSON")

	del := &cobra.Command{Use: "delete <id>", Short: "Remove a saved consultation", Args: cobra.ExactArgs(1), RunE: runHistoryDelete}
	commonFlags(del.Flags())

	cmd.AddCommand(list, show, del)
	return cmd
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	list, err := e.db.ListTranscripts(e.v.GetInt("limit"))
	if err != nil {
		return fmt.Errorf("list transcripts: %w", err)
	}
	total, err := e.db.TranscriptCount()
	if err != nil {
		return fmt.Errorf("count transcripts: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSAVED\tCOMPETITION\tCASE\tSPECIALTY\tSCORE\tMESSAGES")
	for _, t := range list {
		comp, score := "-", "-"
		if t.CompetitionID != 0 {
			comp = strconv.FormatInt(t.CompetitionID, 10)
		}
		if t.MaxScore > 0 {
			score = fmt.Sprintf("%g/%g", t.Score, t.MaxScore)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n", t.ID, t.SavedAt.Local().Format("2006-01-02 15:04"),
			comp, t.CaseNumber, t.Specialty, score, t.MessageCount)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if total > len(list) {
		fmt.Fprintf(cmd.OutOrStdout(), "(%d of %d shown)\n", len(list), total)
	}
	return nil
}

func transcriptID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid transcript id %q", arg)
	}
	return id, nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := transcriptID(args[0])
	if err != nil {
		return err
	}
	t, err := e.db.GetTranscript(id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transcript %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("get transcript: %w", err)
	}

	out := cmd.OutOrStdout()
	if e.v.GetBool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	}
	lctx := e.ctx(cmd.Context())
	fmt.Fprintf(out, "Case %s (%s), %s\n\n", t.CaseNumber, t.Specialty, t.SavedAt.Local().Format("2006-01-02 15:04"))
	for _, m := range t.Messages {
		fmt.Fprintln(out, terminal.Message(lctx, m))
	}
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := transcriptID(args[0])
	if err != nil {
		return err
	}
	if err := e.db.DeleteTranscript(id); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "transcript %d deleted\n", id)
	return nil
}
