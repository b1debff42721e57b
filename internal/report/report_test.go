package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/lucidscan/lucidscan/internal/types"
)

func sampleResult() *types.ScanResult {
	metric := 85.0
	return &types.ScanResult{
		Issues: []types.UnifiedIssue{
			{
				ID: "ruff-abc123", Domain: types.DomainLinting, SourceTool: "ruff",
				Severity: types.SeverityMedium, RuleID: "F401",
				Title: "unused import", FilePath: "src/app.py", LineStart: 7, Column: 1,
			},
			{
				ID: "trivy-def456", Domain: types.DomainSCA, SourceTool: "trivy",
				Severity: types.SeverityCritical, RuleID: "CVE-2024-0001",
				Title: "vulnerable dependency", Description: "requests 2.1.0",
				FilePath: "go.mod", LineStart: 12,
			},
		},
		Summaries: map[types.Domain]types.DomainSummary{
			types.DomainLinting: {
				Domain: types.DomainLinting,
				Counts: map[types.Severity]int{types.SeverityMedium: 1},
				Total:  1, Passed: true,
			},
			types.DomainSCA: {
				Domain: types.DomainSCA,
				Counts: map[types.Severity]int{types.SeverityCritical: 1},
				Total:  1, Passed: false,
			},
			types.DomainCoverage: {
				Domain: types.DomainCoverage,
				Metric: &metric, Passed: true,
			},
		},
		ExitCode: 1,
		Metadata: types.ScanMetadata{
			ScanID:      "scan-1",
			Version:     "1.2.3",
			ProjectRoot: "/tmp/project",
			StartedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			FinishedAt:  time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
			DurationMS:  5000,
		},
	}
}

func TestNewSelectsReporter(t *testing.T) {
	for _, format := range []string{"json", "table", "sarif", ""} {
		if _, err := New(format); err != nil {
			t.Errorf("format %q: %v", format, err)
		}
	}
	if _, err := New("csv"); err == nil {
		t.Error("unknown format must be rejected")
	}
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	r, _ := New("json")
	if err := r.Report(&buf, sampleResult()); err != nil {
		t.Fatalf("report: %v", err)
	}

	var decoded types.ScanResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if len(decoded.Issues) != 2 {
		t.Errorf("issues = %d", len(decoded.Issues))
	}
	if decoded.ExitCode != 1 {
		t.Errorf("exit code = %d", decoded.ExitCode)
	}
	if decoded.Metadata.ScanID != "scan-1" {
		t.Errorf("scan id = %s", decoded.Metadata.ScanID)
	}
	if decoded.Summaries[types.DomainCoverage].Metric == nil {
		t.Error("coverage metric lost in serialization")
	}
}

func TestSARIFReporter(t *testing.T) {
	var buf bytes.Buffer
	r, _ := New("sarif")
	if err := r.Report(&buf, sampleResult()); err != nil {
		t.Fatalf("report: %v", err)
	}

	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("output is not valid sarif json: %v", err)
	}
	if log.Version != "2.1.0" {
		t.Errorf("version = %s", log.Version)
	}
	if len(log.Runs) != 2 {
		t.Fatalf("runs = %d, want one per tool", len(log.Runs))
	}
	// Runs in tool name order.
	if log.Runs[0].Tool.Driver.Name != "ruff" || log.Runs[1].Tool.Driver.Name != "trivy" {
		t.Errorf("run order = %s, %s", log.Runs[0].Tool.Driver.Name, log.Runs[1].Tool.Driver.Name)
	}

	ruffRun := log.Runs[0]
	if len(ruffRun.Results) != 1 {
		t.Fatalf("ruff results = %d", len(ruffRun.Results))
	}
	res := ruffRun.Results[0]
	if res.Level != "warning" {
		t.Errorf("medium severity level = %s, want warning", res.Level)
	}
	if res.RuleID != "F401" {
		t.Errorf("rule id = %s", res.RuleID)
	}
	if len(res.Locations) != 1 || res.Locations[0].PhysicalLocation.ArtifactLocation.URI != "src/app.py" {
		t.Errorf("locations = %+v", res.Locations)
	}
	if res.Locations[0].PhysicalLocation.Region.StartLine != 7 {
		t.Errorf("start line = %d", res.Locations[0].PhysicalLocation.Region.StartLine)
	}

	trivyRun := log.Runs[1]
	if trivyRun.Results[0].Level != "error" {
		t.Errorf("critical severity level = %s, want error", trivyRun.Results[0].Level)
	}
	if !strings.Contains(trivyRun.Results[0].Message.Text, "requests 2.1.0") {
		t.Errorf("message = %q", trivyRun.Results[0].Message.Text)
	}
	if len(trivyRun.Tool.Driver.Rules) != 1 || trivyRun.Tool.Driver.Rules[0].ID != "CVE-2024-0001" {
		t.Errorf("rules = %+v", trivyRun.Tool.Driver.Rules)
	}
}

func TestSARIFLevels(t *testing.T) {
	tests := []struct {
		sev  types.Severity
		want string
	}{
		{types.SeverityCritical, "error"},
		{types.SeverityHigh, "error"},
		{types.SeverityMedium, "warning"},
		{types.SeverityLow, "note"},
		{types.SeverityInfo, "none"},
	}
	for _, tt := range tests {
		if got := sarifLevel(tt.sev); got != tt.want {
			t.Errorf("sarifLevel(%s) = %s, want %s", tt.sev, got, tt.want)
		}
	}
}

func TestTableReporter(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	var buf bytes.Buffer
	r, _ := New("table")
	if err := r.Report(&buf, sampleResult()); err != nil {
		t.Fatalf("report: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"src/app.py", "F401", "FAILED", "sca", "85.0%"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestTableReporterCleanRun(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	result := &types.ScanResult{
		Summaries: map[types.Domain]types.DomainSummary{
			types.DomainLinting: {Domain: types.DomainLinting, Passed: true},
		},
		ExitCode: 0,
		Metadata: types.ScanMetadata{DurationMS: 120},
	}

	var buf bytes.Buffer
	r, _ := New("table")
	if err := r.Report(&buf, result); err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(buf.String(), "PASSED") {
		t.Errorf("clean run output missing PASSED:\n%s", buf.String())
	}
}
