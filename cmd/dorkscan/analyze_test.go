package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/dorkscan/internal/model"
	"github.com/nao1215/dorkscan/internal/output"
	"github.com/nao1215/dorkscan/internal/report"
)

// writeResults persists items into a fresh output directory.
func writeResults(t *testing.T, items ...model.ResultItem) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "out")
	w, err := output.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, item := range items {
		if err := w.Write(item); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return dir
}

func sampleResults() []model.ResultItem {
	return []model.ResultItem{
		{Category: "login_panels", Query: "site:a.example inurl:login", URL: "https://a.example/login", Title: "Login", Backend: "fake"},
		{Category: "login_panels", Query: "site:a.example intitle:admin", URL: "https://a.example/admin", Backend: "fake"},
		{Category: "files", Query: "site:a.example ext:sql", URL: "https://b.example/dump.sql", Backend: "fake", Sensitive: true},
	}
}

func TestNewAnalyzeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewAnalyzeCmd()

	t.Run("accepts at most one argument", func(t *testing.T) {
		t.Parallel()
		if err := cmd.Args(cmd, []string{"a", "b"}); err == nil {
			t.Error("expected error for two arguments")
		}
	})

	t.Run("has top flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("top")
		if flag == nil {
			t.Fatal("expected top flag")
		}
		if flag.DefValue != "10" {
			t.Errorf("expected default '10', got %q", flag.DefValue)
		}
	})
}

func TestRunAnalyzeCmd(t *testing.T) {
	t.Parallel()

	t.Run("prints a text summary", func(t *testing.T) {
		t.Parallel()

		dir := writeResults(t, sampleResults()...)

		var stdout bytes.Buffer
		cmd := NewAnalyzeCmd()
		cmd.SetOut(&stdout)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{dir})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := stdout.String()
		for _, want := range []string{"DORKSCAN RESULT SUMMARY", "Total results:    3", "login_panels", "a.example"} {
			if !strings.Contains(got, want) {
				t.Errorf("expected output to contain %q, got %q", want, got)
			}
		}
	})

	t.Run("writes a JSON report", func(t *testing.T) {
		t.Parallel()

		dir := writeResults(t, sampleResults()...)

		var stdout bytes.Buffer
		cmd := NewAnalyzeCmd()
		cmd.SetOut(&stdout)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--json", "--top", "1", dir})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var doc report.JSONReport
		if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
			t.Fatalf("expected valid JSON, got %v: %s", err, stdout.String())
		}
		if doc.Summary.Total != 3 {
			t.Errorf("expected total 3, got %d", doc.Summary.Total)
		}
		if doc.Summary.CountPerCategory["login_panels"] != 2 {
			t.Errorf("expected 2 login_panels results, got %d", doc.Summary.CountPerCategory["login_panels"])
		}
		if !doc.Summary.SensitiveFound {
			t.Error("expected sensitive results to be flagged")
		}
		if len(doc.Summary.TopDomains) != 1 || doc.Summary.TopDomains[0].Domain != "a.example" {
			t.Errorf("expected top domain a.example only, got %+v", doc.Summary.TopDomains)
		}
		if !strings.HasSuffix(doc.Summary.Source, output.JSONLFile) {
			t.Errorf("expected source to be the JSONL file, got %q", doc.Summary.Source)
		}
	})

	t.Run("writes a Markdown report to a file", func(t *testing.T) {
		t.Parallel()

		dir := writeResults(t, sampleResults()...)
		reportPath := filepath.Join(t.TempDir(), "reports", "summary.md")

		cmd := NewAnalyzeCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--markdown", "-o", reportPath, "--details", dir})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("expected report file, got %v", err)
		}
		for _, want := range []string{"# Dorkscan Result Summary", "Login Panels", "https://b.example/dump.sql"} {
			if !strings.Contains(string(content), want) {
				t.Errorf("expected report to contain %q", want)
			}
		}
	})

	t.Run("rejects json with markdown", func(t *testing.T) {
		t.Parallel()

		dir := writeResults(t, sampleResults()...)

		cmd := NewAnalyzeCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--json", "--markdown", dir})

		if err := cmd.Execute(); err == nil {
			t.Error("expected error for conflicting formats")
		}
	})

	t.Run("fails on a directory without results", func(t *testing.T) {
		t.Parallel()

		cmd := NewAnalyzeCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{t.TempDir()})

		if err := cmd.Execute(); err == nil {
			t.Error("expected error for empty directory")
		}
	})
}
