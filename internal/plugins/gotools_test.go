package plugins

import (
	"strings"
	"testing"

	"github.com/lucidscan/lucidscan/internal/types"
)

func TestGoTestParseEvents(t *testing.T) {
	output := []byte(`
{"Action":"run","Package":"example.com/m/a","Test":"TestOne"}
{"Action":"output","Package":"example.com/m/a","Test":"TestOne","Output":"=== RUN   TestOne\n"}
{"Action":"output","Package":"example.com/m/a","Test":"TestOne","Output":"    a_test.go:10: got 2, want 3\n"}
{"Action":"fail","Package":"example.com/m/a","Test":"TestOne","Elapsed":0.01}
{"Action":"run","Package":"example.com/m/a","Test":"TestTwo"}
{"Action":"pass","Package":"example.com/m/a","Test":"TestTwo","Elapsed":0.002}
{"Action":"fail","Package":"example.com/m/a","Elapsed":0.05}
{"Action":"fail","Package":"example.com/m/b","Test":"TestZed","Elapsed":0.01}
`)

	g := NewGoTest(nil)
	issues, err := g.parseEvents(output)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("got %d issues, want 2 (package-level fail excluded)", len(issues))
	}

	// Sorted by package then test.
	if issues[0].Title != "Test failed: TestOne" || issues[1].Title != "Test failed: TestZed" {
		t.Errorf("order = %q, %q", issues[0].Title, issues[1].Title)
	}
	if issues[0].Severity != types.SeverityHigh || issues[0].RuleID != "test-failure" {
		t.Errorf("issue = %s/%s", issues[0].Severity, issues[0].RuleID)
	}
	if !strings.Contains(issues[0].Description, "got 2, want 3") {
		t.Errorf("description = %q", issues[0].Description)
	}
	if issues[0].Metadata["package"] != "example.com/m/a" {
		t.Errorf("package metadata = %q", issues[0].Metadata["package"])
	}
}

func TestGoTestParseIgnoresNonJSONLines(t *testing.T) {
	output := []byte("go: downloading example.com v1.0.0\n{\"Action\":\"pass\",\"Package\":\"p\",\"Test\":\"TestA\"}\n")
	g := NewGoTest(nil)
	issues, err := g.parseEvents(output)
	if err != nil || len(issues) != 0 {
		t.Errorf("issues=%v err=%v", issues, err)
	}
}

func TestGoVetParseDiagnostics(t *testing.T) {
	output := []byte(`# example.com/m/a
internal/a/a.go:12:4: Printf format %d has arg s of wrong type string
internal/a/b.go:30: unreachable code
vet: some unparseable chatter
`)

	g := NewGoVet(nil)
	issues := g.parseDiagnostics(output)
	if len(issues) != 2 {
		t.Fatalf("got %d issues", len(issues))
	}

	first := issues[0]
	if first.FilePath != "internal/a/a.go" || first.LineStart != 12 || first.Column != 4 {
		t.Errorf("location = %s:%d:%d", first.FilePath, first.LineStart, first.Column)
	}
	if !strings.HasPrefix(first.Title, "Printf format") {
		t.Errorf("title = %q", first.Title)
	}
	if first.Severity != types.SeverityHigh {
		t.Errorf("severity = %s", first.Severity)
	}

	second := issues[1]
	if second.LineStart != 30 || second.Column != 0 {
		t.Errorf("column-less diagnostic = %d:%d", second.LineStart, second.Column)
	}
}

func TestParseTotalCoverage(t *testing.T) {
	output := []byte(`example.com/m/a/a.go:10:	Run	85.7%
example.com/m/a/a.go:30:	Close	100.0%
total:			(statements)	72.4%
`)
	percent, err := parseTotalCoverage(output)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if percent != 72.4 {
		t.Errorf("percent = %v, want 72.4", percent)
	}
}

func TestParseTotalCoverageMissingTotal(t *testing.T) {
	if _, err := parseTotalCoverage([]byte("no totals here\n")); err == nil {
		t.Error("expected error when total line is absent")
	}
}
