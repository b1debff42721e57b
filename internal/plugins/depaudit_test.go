package plugins

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucidscan/lucidscan/internal/types"
)

func osvTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/querybatch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Queries []struct {
				Version string `json:"version"`
				Package struct {
					Name string `json:"name"`
				} `json:"package"`
			} `json:"queries"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		results := make([]map[string]any, len(req.Queries))
		for i, q := range req.Queries {
			if q.Package.Name == "example.com/vulnerable" {
				results[i] = map[string]any{"vulns": []map[string]string{{"id": "GO-2024-1234"}}}
			} else {
				results[i] = map[string]any{}
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	})
	mux.HandleFunc("/vulns/GO-2024-1234", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "GO-2024-1234",
			"summary": "Arbitrary file read",
			"details": "A crafted path escapes the root.",
			"database_specific": map[string]string{
				"severity": "HIGH",
			},
			"affected": []map[string]any{
				{"ranges": []map[string]any{
					{"events": []map[string]string{
						{"introduced": "0"},
						{"fixed": "1.2.3"},
					}},
				}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeGoMod(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDepAuditFindsVulnerableDependency(t *testing.T) {
	srv := osvTestServer(t)
	root := t.TempDir()
	writeGoMod(t, root, `module example.com/project

go 1.22

require (
	example.com/vulnerable v1.0.0
	example.com/clean/v2 v2.0.0
	example.com/transitive v0.1.0 // indirect
)
`)

	d := NewDepAudit(nil)
	d.apiBase = srv.URL
	d.client = srv.Client()

	outcome := d.Execute(t.Context(), &types.ScanContext{ProjectRoot: root}, types.ProjectWideTargets())
	if outcome.Err != nil {
		t.Fatalf("execute: %v", outcome.Err)
	}
	if len(outcome.Issues) != 1 {
		t.Fatalf("got %d issues", len(outcome.Issues))
	}

	issue := outcome.Issues[0]
	if issue.RuleID != "GO-2024-1234" || issue.Severity != types.SeverityHigh {
		t.Errorf("issue = %s/%s", issue.RuleID, issue.Severity)
	}
	if issue.FilePath != "go.mod" {
		t.Errorf("path = %s", issue.FilePath)
	}
	if !strings.Contains(issue.Title, "example.com/vulnerable@v1.0.0") {
		t.Errorf("title = %q", issue.Title)
	}
	if !issue.Fixable || !strings.Contains(issue.SuggestedFix, "1.2.3") {
		t.Errorf("fix = %v %q", issue.Fixable, issue.SuggestedFix)
	}
	if issue.Metadata["fixed_version"] != "1.2.3" {
		t.Errorf("fixed_version = %q", issue.Metadata["fixed_version"])
	}
}

func TestDepAuditNoGoMod(t *testing.T) {
	d := NewDepAudit(nil)
	outcome := d.Execute(t.Context(), &types.ScanContext{ProjectRoot: t.TempDir()}, types.ProjectWideTargets())
	if outcome.Err != nil {
		t.Fatalf("missing go.mod must succeed empty: %v", outcome.Err)
	}
	if len(outcome.Issues) != 0 {
		t.Errorf("issues = %v", outcome.Issues)
	}
}

func TestDepAuditMalformedGoMod(t *testing.T) {
	root := t.TempDir()
	writeGoMod(t, root, "this is not a go.mod\n")

	d := NewDepAudit(nil)
	outcome := d.Execute(t.Context(), &types.ScanContext{ProjectRoot: root}, types.ProjectWideTargets())
	if outcome.Err == nil || outcome.Err.Kind != types.ErrorParse {
		t.Errorf("err = %v, want parse failure", outcome.Err)
	}
}

func TestDepAuditServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	root := t.TempDir()
	writeGoMod(t, root, "module m\n\ngo 1.22\n\nrequire example.com/dep v1.0.0\n")

	d := NewDepAudit(nil)
	d.apiBase = srv.URL
	d.client = srv.Client()

	outcome := d.Execute(t.Context(), &types.ScanContext{ProjectRoot: root}, types.ProjectWideTargets())
	if outcome.Err == nil || outcome.Err.Kind != types.ErrorExecution {
		t.Errorf("err = %v, want execution failure", outcome.Err)
	}
}

func TestOSVSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want types.Severity
	}{
		{"CRITICAL", types.SeverityCritical},
		{"HIGH", types.SeverityHigh},
		{"MODERATE", types.SeverityMedium},
		{"medium", types.SeverityMedium},
		{"LOW", types.SeverityLow},
		{"", types.SeverityMedium},
	}
	for _, tt := range tests {
		if got := osvSeverity(tt.in); got != tt.want {
			t.Errorf("osvSeverity(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
