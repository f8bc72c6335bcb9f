package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/medsim/osce/internal/validate"
)

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"login", "logout", "whoami", "competitions", "compete", "practice",
		"check-case", "stations", "students", "sessions", "report", "history"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("command %q not registered", name)
			continue
		}
		if !cmd.HasSubCommands() && cmd.Flags().Lookup("server") == nil {
			t.Errorf("command %q is missing the common flags", name)
		}
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2026-03-01T09:00:00Z", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), false},
		{" 2026-03-01 09:30 ", time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local), false},
		{"tomorrow", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTime(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseTime(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTime(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTranscriptID(t *testing.T) {
	if id, err := transcriptID("12"); err != nil || id != 12 {
		t.Errorf("transcriptID(12) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "0", "-3", "x"} {
		if _, err := transcriptID(bad); err == nil {
			t.Errorf("transcriptID(%q) should fail", bad)
		}
	}
}

func TestReadLines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	for line := range readLines(ctx, strings.NewReader("hello\n/done\n\nbye")) {
		got = append(got, line)
	}
	want := []string{"hello", "/done", "", "bye"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName("", "jdoe"); got != "jdoe" {
		t.Errorf("displayName = %q", got)
	}
	if got := displayName("Jane Doe", "jdoe"); got != "Jane Doe" {
		t.Errorf("displayName = %q", got)
	}
}

func TestCaseWatcher(t *testing.T) {
	taken := map[string]bool{"17": true}
	var out bytes.Buffer
	w := &caseWatcher{out: &out}
	v := validate.NewCaseNumber(validate.CheckerFunc(func(_ context.Context, cn string) (bool, error) {
		return taken[cn], nil
	}), validate.Options{OnChange: w.print})
	defer v.Close()

	ctx := context.Background()
	if err := w.run(ctx, v, strings.NewReader("4x\n4\n42\n")); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "4x: "+validate.ErrFormat.Error()) {
		t.Errorf("output %q is missing the format error", got)
	}
	if !strings.HasSuffix(got, "42: available\n") {
		t.Errorf("output %q should end with the final check", got)
	}

	out.Reset()
	err := w.run(ctx, v, strings.NewReader("42\n17\n"))
	if !errors.Is(err, validate.ErrTaken) {
		t.Fatalf("run = %v, want ErrTaken", err)
	}
	if !strings.HasSuffix(out.String(), "17: "+validate.ErrTaken.Error()+"\n") {
		t.Errorf("output = %q", out.String())
	}
}
