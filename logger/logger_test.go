package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDefaultsToInfo(t *testing.T) {
	log, err := New(Config{Level: "bogus", Output: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if log.GetLevel().String() != "info" {
		t.Errorf("Unknown level should fall back to info, got %s", log.GetLevel())
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.WithModule("visit").SiteVisit("askubuntu", "https://askubuntu.com")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output should be JSON: %v (%q)", err, buf.String())
	}
	if entry["message"] != "Visiting https://askubuntu.com" {
		t.Errorf("Unexpected message %v", entry["message"])
	}
	if entry["module"] != "visit" || entry["site"] != "askubuntu" {
		t.Errorf("Missing context fields: %v", entry)
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(Config{Level: "info", Format: "json", Output: &buf})

	_ = log.WithField("site", "serverfault")
	log.Info("plain")

	if strings.Contains(buf.String(), "serverfault") {
		t.Error("Parent logger should not inherit fields from derived logger")
	}
}

func TestLoginAttemptMasksEmail(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(Config{Level: "info", Format: "json", Output: &buf})

	log.LoginAttempt("stackoverflow", "jane.doe@example.com")

	if strings.Contains(buf.String(), "jane.doe@") {
		t.Errorf("Email should be masked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "j***@example.com") {
		t.Errorf("Expected masked email in output: %s", buf.String())
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"a@b.c":         "a***@b.c",
		"someone@x.org": "s***@x.org",
		"noatsign":      "***",
		"@leading.com":  "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	log, err := New(Config{Level: "debug", OutputFile: path, Output: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.Debug("written to file")
	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Log file should exist: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Error("Log file should contain the message")
	}
}
