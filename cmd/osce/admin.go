package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/medsim/osce/internal/api"
	"github.com/medsim/osce/internal/model"
	"github.com/medsim/osce/internal/selection"
	"github.com/medsim/osce/internal/validate"
)

func areaFlag(cmd *cobra.Command) {
	cmd.Flags().String("area", string(api.AreaAdmin), "Dashboard the call goes through (admin, teacher)")
}

func areaOf(e *env) (api.Area, error) {
	switch a := api.Area(strings.ToLower(e.v.GetString("area"))); a {
	case api.AreaAdmin, api.AreaTeacher:
		return a, nil
	default:
		return "", fmt.Errorf("unknown area %q", a)
	}
}

// caseChecker validates case numbers against the server's uniqueness check.
// onChange may be nil.
func caseChecker(e *env, area api.Area, exclude string, onChange func(validate.Result)) *validate.CaseNumber {
	return validate.NewCaseNumber(validate.CheckerFunc(func(ctx context.Context, caseNumber string) (bool, error) {
		return e.client.CaseNumberExists(ctx, area, caseNumber)
	}), validate.Options{
		Timeout: e.v.GetDuration("request-timeout"),
		Exclude:  exclude,
		OnChange: onChange,
	})
}

func checkCaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-case <case-number | ->",
		Short: "Check that a case number is well formed and still free",
		Long: `Check that a case number is well formed and still free.

With "-" the case number is read from stdin one edit per line, the way the
station form checks it while typing. Each answer is printed as it settles
and the last line is checked again before the command exits.`,
		Args: cobra.ExactArgs(1),
		RunE: runCheckCase,
	}
	commonFlags(cmd.Flags())
	areaFlag(cmd)
	cmd.Flags().String("exclude", "", "Case number of the station being edited")
	return cmd
}

func runCheckCase(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	area, err := areaOf(e)
	if err != nil {
		return err
	}

	if args[0] == "-" {
		w := &caseWatcher{out: cmd.OutOrStdout()}
		v := caseChecker(e, area, e.v.GetString("exclude"), w.print)
		defer v.Close()
		return w.run(cmd.Context(), v, cmd.InOrStdin())
	}

	v := caseChecker(e, area, e.v.GetString("exclude"), nil)
	defer v.Close()
	res := v.Check(cmd.Context(), args[0])
	if res.State != validate.StateValid {
		return fmt.Errorf("case number %q: %w", res.Value, res.Err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "case number %s is available\n", res.Value)
	return nil
}

// caseWatcher prints the state of a case-number field as it is edited.
type caseWatcher struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *caseWatcher) print(r validate.Result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch r.State {
	case validate.StateValid:
		fmt.Fprintf(w.out, "%s: available\n", r.Value)
	case validate.StateError:
		fmt.Fprintf(w.out, "%s: %v\n", r.Value, r.Err)
	case validate.StateChecking:
		fmt.Fprintf(w.out, "%s: checking\n", r.Value)
	}
}

// run feeds every line of in to v as a keystroke and re-checks the last
// value at the end, like submitting the form.
func (w *caseWatcher) run(ctx context.Context, v *validate.CaseNumber, in io.Reader) error {
	var last string
	for line := range readLines(ctx, in) {
		last = strings.TrimSpace(line)
		if r := v.Input(last); r.State != validate.StateChecking && r.State != validate.StateIdle {
			w.print(r)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	res := v.Check(ctx, last)
	w.print(res)
	if res.State != validate.StateValid {
		return fmt.Errorf("case number %q: %w", res.Value, res.Err)
	}
	return nil
}

func stationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stations",
		Short: "Manage stations (clinical cases)",
	}

	list := &cobra.Command{Use: "list", Short: "List stations", Args: cobra.NoArgs, RunE: runStationsList}
	commonFlags(list.Flags())
	list.Flags().String("search", "", "Only show stations matching this text (accents and case ignored)")

	create := &cobra.Command{Use: "create", Short: "Create a station from a JSON file", Args: cobra.NoArgs, RunE: runStationsCreate}
	commonFlags(create.Flags())
	create.Flags().StringP("file", "f", "", "Station JSON file")
	_ = create.MarkFlagRequired("file")

	edit := &cobra.Command{Use: "edit <case-number>", Short: "Replace a station from a JSON file", Args: cobra.ExactArgs(1), RunE: runStationsEdit}
	commonFlags(edit.Flags())
	edit.Flags().StringP("file", "f", "", "Station JSON file")
	_ = edit.MarkFlagRequired("file")

	del := &cobra.Command{Use: "delete <case-number>", Short: "Delete a station", Args: cobra.ExactArgs(1), RunE: runStationsDelete}
	commonFlags(del.Flags())
	areaFlag(del)

	cmd.AddCommand(list, create, edit, del)
	return cmd
}

func runStationsList(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	stations, err := e.client.ListStations(cmd.Context())
	if err != nil {
		return fmt.Errorf("list stations: %w", err)
	}
	stations = selection.Search(stations, e.v.GetString("search"), func(s model.Station) string {
		return s.CaseNumber.String() + " " + s.Specialty + " " + s.Title + " " + s.Patient.Name
	})
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CASE\tSPECIALTY\tTITLE\tPATIENT\tPOINTS")
	for _, s := range stations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\n", s.CaseNumber, s.Specialty, s.Title, s.Patient.Name, s.MaxPoints())
	}
	return w.Flush()
}

func readStation(path string) (model.Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Station{}, fmt.Errorf("read %s: %w", path, err)
	}
	var st model.Station
	if err := json.Unmarshal(data, &st); err != nil {
		return model.Station{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := selection.ValidateStation(st); err != nil {
		return model.Station{}, fmt.Errorf("station %s: %w", path, err)
	}
	return st, nil
}

func runStationsCreate(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	st, err := readStation(e.v.GetString("file"))
	if err != nil {
		return err
	}
	v := caseChecker(e, api.AreaAdmin, "", nil)
	defer v.Close()
	if res := v.Check(cmd.Context(), st.CaseNumber.String()); res.State != validate.StateValid {
		return fmt.Errorf("case number %q: %w", res.Value, res.Err)
	}
	if err := e.client.CreateStation(cmd.Context(), st); err != nil {
		return fmt.Errorf("create station: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "station %s created\n", st.CaseNumber)
	return nil
}

func runStationsEdit(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	original := model.CaseNumber(strings.TrimSpace(args[0]))
	st, err := readStation(e.v.GetString("file"))
	if err != nil {
		return err
	}
	v := caseChecker(e, api.AreaTeacher, original.String(), nil)
	defer v.Close()
	if res := v.Check(cmd.Context(), st.CaseNumber.String()); res.State != validate.StateValid {
		return fmt.Errorf("case number %q: %w", res.Value, res.Err)
	}
	if err := e.client.EditCase(cmd.Context(), original, st); err != nil {
		return fmt.Errorf("edit case: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "station %s saved\n", st.CaseNumber)
	return nil
}

func runStationsDelete(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	area, err := areaOf(e)
	if err != nil {
		return err
	}

	caseNumber := model.CaseNumber(strings.TrimSpace(args[0]))
	if area == api.AreaTeacher {
		err = e.client.DeleteCase(cmd.Context(), caseNumber)
	} else {
		err = e.client.DeleteStation(cmd.Context(), caseNumber)
	}
	if err != nil {
		return fmt.Errorf("delete station: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "station %s deleted\n", caseNumber)
	return nil
}

func studentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "students",
		Short: "Manage student accounts",
	}

	list := &cobra.Command{Use: "list", Short: "List students", Args: cobra.NoArgs, RunE: runStudentsList}
	commonFlags(list.Flags())
	list.Flags().String("search", "", "Only show students matching this text")

	add := &cobra.Command{Use: "add", Short: "Create a student account", Args: cobra.NoArgs, RunE: runStudentsAdd}
	commonFlags(add.Flags())
	add.Flags().String("name", "", "Full name")
	add.Flags().String("email", "", "Email address")
	add.Flags().String("student-password", "", "Initial password")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("student-password")

	del := &cobra.Command{Use: "delete <id>", Short: "Delete a student account", Args: cobra.ExactArgs(1), RunE: runStudentsDelete}
	commonFlags(del.Flags())

	cmd.AddCommand(list, add, del)
	return cmd
}

func runStudentsList(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	students, err := e.client.ListStudents(cmd.Context())
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	students = selection.Search(students, e.v.GetString("search"), studentText)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL")
	for _, s := range students {
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.ID, s.Name, s.Email)
	}
	return w.Flush()
}

func studentText(s model.Student) string { return s.Name + " " + s.Email }

func runStudentsAdd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.client.CreateStudent(cmd.Context(), model.Student{
		Name:  strings.TrimSpace(e.v.GetString("name")),
		Email: strings.TrimSpace(e.v.GetString("email")),
	}, e.v.GetString("student-password"))
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "student %d created\n", id)
	return nil
}

func runStudentsDelete(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid student id %q", args[0])
	}
	if err := e.client.DeleteStudent(cmd.Context(), id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "student %d deleted\n", id)
	return nil
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Schedule OSCE sessions",
	}

	list := &cobra.Command{Use: "list", Short: "List sessions", Args: cobra.NoArgs, RunE: runSessionsList}
	commonFlags(list.Flags())

	create := &cobra.Command{
		Use:   "create",
		Short: "Schedule a session for a selection of students and stations",
		Long: `Schedule a session. Students and stations are selected by id or case
number, or by --student-match/--station-match search terms (accents and case
ignored). --without-student removes students from the selection again.`,
		Args: cobra.NoArgs,
		RunE: runSessionsCreate,
	}
	f := create.Flags()
	commonFlags(f)
	f.String("name", "", "Session name")
	f.String("description", "", "Session description")
	f.String("start", "", "Start time (RFC 3339 or 2006-01-02 15:04)")
	f.String("end", "", "End time (RFC 3339 or 2006-01-02 15:04)")
	f.Int64Slice("student", nil, "Student id (repeatable)")
	f.StringSlice("student-match", nil, "Select every student matching the text (repeatable)")
	f.Int64Slice("without-student", nil, "Student id to leave out (repeatable)")
	f.StringSlice("station", nil, "Station case number (repeatable)")
	f.StringSlice("station-match", nil, "Select every station matching the text (repeatable)")
	f.Int("stations-per-session", 0, "Stations each student takes (0 = all selected)")
	f.Int("time-per-station", 10, "Minutes per station")
	f.Int("time-between-stations", 2, "Minutes between stations")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("start")
	_ = create.MarkFlagRequired("end")

	del := &cobra.Command{Use: "delete <id>", Short: "Delete a session", Args: cobra.ExactArgs(1), RunE: runSessionsDelete}
	commonFlags(del.Flags())

	cmd.AddCommand(list, create, del)
	return cmd
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	sessions, err := e.client.ListSessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tSTART\tSTUDENTS\tSTATIONS")
	for _, s := range sessions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d/%d\n", s.ID, s.Name, s.State,
			s.StartTime.Local().Format("2006-01-02 15:04"), s.StudentCount, s.StationsPerSession, s.StationCount)
	}
	return w.Flush()
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02 15:04", s, time.Local)
}

func runSessionsCreate(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()

	form := selection.NewSessionForm()
	form.Name = e.v.GetString("name")
	form.Description = e.v.GetString("description")
	form.StationsPerSession = e.v.GetInt("stations-per-session")
	form.TimePerStation = e.v.GetInt("time-per-station")
	form.TimeBetweenStations = e.v.GetInt("time-between-stations")
	if form.StartTime, err = parseTime(e.v.GetString("start")); err != nil {
		return fmt.Errorf("invalid start time: %w", err)
	}
	if form.EndTime, err = parseTime(e.v.GetString("end")); err != nil {
		return fmt.Errorf("invalid end time: %w", err)
	}

	students, err := e.client.ListStudents(ctx)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	byID := make(map[int64]model.Student, len(students))
	for _, s := range students {
		byID[s.ID] = s
	}
	studentIDs, _ := cmd.Flags().GetInt64Slice("student")
	for _, id := range studentIDs {
		s, ok := byID[id]
		if !ok {
			return fmt.Errorf("unknown student id %d", id)
		}
		form.Students.Add(s)
	}
	for _, q := range e.v.GetStringSlice("student-match") {
		form.Students.Add(selection.Search(students, q, studentText)...)
	}
	without, _ := cmd.Flags().GetInt64Slice("without-student")
	for _, id := range without {
		form.Students.Remove(id)
	}

	stations, err := e.client.ListStations(ctx)
	if err != nil {
		return fmt.Errorf("list stations: %w", err)
	}
	byCase := make(map[model.CaseNumber]model.Station, len(stations))
	for _, s := range stations {
		byCase[s.CaseNumber] = s
	}
	for _, c := range e.v.GetStringSlice("station") {
		s, ok := byCase[model.CaseNumber(strings.TrimSpace(c))]
		if !ok {
			return fmt.Errorf("unknown station %q", c)
		}
		form.Stations.Add(s)
	}
	for _, q := range e.v.GetStringSlice("station-match") {
		form.Stations.Add(selection.Search(stations, q, func(s model.Station) string {
			return s.CaseNumber.String() + " " + s.Specialty + " " + s.Title
		})...)
	}

	req, err := form.Payload()
	if err != nil {
		var invalid *selection.InvalidError
		if errors.As(err, &invalid) {
			for _, p := range invalid.Problems {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", p.Field, p.Rule)
			}
		}
		return fmt.Errorf("session form: %w", err)
	}
	id, err := e.client.CreateSession(ctx, req)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %d scheduled with %d students and %d stations\n",
		id, len(req.StudentIDs), len(req.CaseNumbers))
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id %q", args[0])
	}
	if err := e.client.DeleteSession(cmd.Context(), id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %d deleted\n", id)
	return nil
}
