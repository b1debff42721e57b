package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/lucidscan/lucidscan/internal/types"
)

// SARIFReporter emits SARIF 2.1.0 for code-scanning integrations. Each
// source tool becomes its own run so uploads attribute results correctly.
type SARIFReporter struct{}

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
)

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version,omitempty"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string        `json:"id"`
	ShortDescription *sarifMessage `json:"shortDescription,omitempty"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId,omitempty"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	EndLine     int `json:"endLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
}

func (r *SARIFReporter) Report(w io.Writer, result *types.ScanResult) error {
	byTool := make(map[string][]types.UnifiedIssue)
	for _, issue := range result.Issues {
		byTool[issue.SourceTool] = append(byTool[issue.SourceTool], issue)
	}

	tools := make([]string, 0, len(byTool))
	for tool := range byTool {
		tools = append(tools, tool)
	}
	sort.Strings(tools)

	log := sarifLog{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs:    make([]sarifRun, 0, len(tools)),
	}
	for _, tool := range tools {
		log.Runs = append(log.Runs, buildRun(tool, result.Metadata.Version, byTool[tool]))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}

func buildRun(tool, version string, issues []types.UnifiedIssue) sarifRun {
	seenRules := make(map[string]bool)
	var rules []sarifRule
	results := make([]sarifResult, 0, len(issues))

	for _, issue := range issues {
		if issue.RuleID != "" && !seenRules[issue.RuleID] {
			seenRules[issue.RuleID] = true
			rules = append(rules, sarifRule{
				ID:               issue.RuleID,
				ShortDescription: &sarifMessage{Text: issue.Title},
			})
		}

		text := issue.Title
		if issue.Description != "" {
			text = fmt.Sprintf("%s: %s", issue.Title, issue.Description)
		}
		res := sarifResult{
			RuleID:  issue.RuleID,
			Level:   sarifLevel(issue.Severity),
			Message: sarifMessage{Text: text},
		}
		if issue.FilePath != "" {
			loc := sarifLocation{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: issue.FilePath},
				},
			}
			if issue.LineStart > 0 {
				loc.PhysicalLocation.Region = &sarifRegion{
					StartLine:   issue.LineStart,
					EndLine:     issue.LineEnd,
					StartColumn: issue.Column,
				}
			}
			res.Locations = []sarifLocation{loc}
		}
		results = append(results, res)
	}

	return sarifRun{
		Tool: sarifTool{
			Driver: sarifDriver{
				Name:    tool,
				Version: version,
				Rules:   rules,
			},
		},
		Results: results,
	}
}

// sarifLevel maps severities onto SARIF's four levels.
func sarifLevel(sev types.Severity) string {
	switch sev {
	case types.SeverityCritical, types.SeverityHigh:
		return "error"
	case types.SeverityMedium:
		return "warning"
	case types.SeverityLow:
		return "note"
	default:
		return "none"
	}
}
