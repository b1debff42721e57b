package plugins

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/lucidscan/lucidscan/internal/types"
)

func TestTrivyParseVulnerabilities(t *testing.T) {
	output := []byte(`{
  "Results": [
    {
      "Target": "go.mod",
      "Vulnerabilities": [
        {
          "VulnerabilityID": "CVE-2024-0001",
          "PkgName": "golang.org/x/crypto",
          "InstalledVersion": "0.14.0",
          "FixedVersion": "0.17.0",
          "Severity": "HIGH",
          "Title": "crypto/ssh allows bypass",
          "Description": "A terrapin attack...",
          "PrimaryURL": "https://avd.aquasec.com/nvd/cve-2024-0001"
        }
      ]
    }
  ]
}`)

	tr := NewTrivy(types.DomainSCA, nil, nil)
	issues, err := tr.parseReport(output)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("got %d issues", len(issues))
	}

	issue := issues[0]
	if issue.Domain != types.DomainSCA || issue.Severity != types.SeverityHigh {
		t.Errorf("issue = %s/%s", issue.Domain, issue.Severity)
	}
	if issue.RuleID != "CVE-2024-0001" || issue.FilePath != "go.mod" {
		t.Errorf("rule = %s, path = %s", issue.RuleID, issue.FilePath)
	}
	if !issue.Fixable || !strings.Contains(issue.SuggestedFix, "0.17.0") {
		t.Errorf("fix = %v %q", issue.Fixable, issue.SuggestedFix)
	}
	if issue.Metadata["package"] != "golang.org/x/crypto" {
		t.Errorf("package metadata = %q", issue.Metadata["package"])
	}
}

func TestTrivyParseMisconfigurations(t *testing.T) {
	output := []byte(`{
  "Results": [
    {
      "Target": "Dockerfile",
      "Misconfigurations": [
        {
          "ID": "DS002",
          "Title": "Image runs as root",
          "Description": "Running as root increases blast radius.",
          "Severity": "MEDIUM",
          "Resolution": "Add a USER instruction",
          "CauseMetadata": {"StartLine": 1, "EndLine": 5}
        }
      ]
    }
  ]
}`)

	tr := NewTrivy(types.DomainIaC, nil, nil)
	issues, err := tr.parseReport(output)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("got %d issues", len(issues))
	}

	issue := issues[0]
	if issue.Domain != types.DomainIaC || issue.Severity != types.SeverityMedium {
		t.Errorf("issue = %s/%s", issue.Domain, issue.Severity)
	}
	if issue.LineStart != 1 || issue.LineEnd != 5 {
		t.Errorf("span = %d-%d", issue.LineStart, issue.LineEnd)
	}
	if issue.SuggestedFix != "Add a USER instruction" {
		t.Errorf("fix = %q", issue.SuggestedFix)
	}
}

func TestTrivyParseEmptyOutput(t *testing.T) {
	tr := NewTrivy(types.DomainSCA, nil, nil)
	issues, err := tr.parseReport(nil)
	if err != nil || len(issues) != 0 {
		t.Errorf("issues=%v err=%v", issues, err)
	}
}

func TestTrivySeverity(t *testing.T) {
	tests := []struct {
		in   string
		want types.Severity
	}{
		{"CRITICAL", types.SeverityCritical},
		{"high", types.SeverityHigh},
		{"Medium", types.SeverityMedium},
		{"LOW", types.SeverityLow},
		{"UNKNOWN", types.SeverityInfo},
		{"", types.SeverityInfo},
	}
	for _, tt := range tests {
		if got := trivySeverity(tt.in); got != tt.want {
			t.Errorf("trivySeverity(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestBaseImages(t *testing.T) {
	root := t.TempDir()
	dockerfile := `FROM golang:1.22 AS builder
RUN go build ./...

FROM builder AS tester
RUN go test ./...

FROM alpine:3.19
COPY --from=builder /app /app
`
	if err := os.WriteFile(filepath.Join(root, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "svc")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "Dockerfile.dev"),
		[]byte("FROM scratch\nFROM alpine:3.19\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	images, err := baseImages(root)
	if err != nil {
		t.Fatalf("base images: %v", err)
	}
	want := []string{"alpine:3.19", "golang:1.22"}
	if !reflect.DeepEqual(images, want) {
		t.Errorf("images = %v, want %v", images, want)
	}
}

func TestBaseImagesNoDockerfiles(t *testing.T) {
	images, err := baseImages(t.TempDir())
	if err != nil || len(images) != 0 {
		t.Errorf("images=%v err=%v", images, err)
	}
}
