package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { checkAt = "" })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckSchedule(t *testing.T) {
	p := filepath.Join(t.TempDir(), "schedule.yaml")
	doc := "weekday:\n  - time: \"06:30\"\n    temperature: 21\nsunday:\n  - time: \"10:00\"\n    hvac_mode: \"off\"\n"
	if err := os.WriteFile(p, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "check-schedule", p, "--at", "2026-01-12T07:00")
	if err != nil {
		t.Fatalf("check-schedule: %v\n%s", err, out)
	}
	if !strings.Contains(out, "monday") || !strings.Contains(out, "06:30 source=schedule temperature=21.00") {
		t.Fatalf("expected monday event in output:\n%s", out)
	}
	if !strings.Contains(out, "sunday     10:00 source=schedule mode=off") {
		t.Fatalf("expected sunday event in output:\n%s", out)
	}
	if !strings.Contains(out, "current: source=schedule temperature=21.00") {
		t.Fatalf("expected current event in output:\n%s", out)
	}
}

func TestCheckScheduleRejectsInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "schedule.json")
	if err := os.WriteFile(p, []byte(`{"funday": [{"time": "06:00", "temperature": 20}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "check-schedule", p); err == nil {
		t.Fatal("expected an invalid schedule to fail")
	}
}
