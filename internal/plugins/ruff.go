package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/plugin"
	"github.com/lucidscan/lucidscan/internal/types"
)

const ruffVersion = "0.8.4"

// Ruff adapts the ruff Python linter. Ruff accepts explicit file arguments,
// so it participates in git-delta partial scans, and it can apply fixes
// in place.
type Ruff struct {
	provisioner plugin.Provisioner
	logger      *zap.Logger
}

// NewRuff creates the ruff adapter.
func NewRuff(provisioner plugin.Provisioner, logger *zap.Logger) *Ruff {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ruff{provisioner: provisioner, logger: logger}
}

func (r *Ruff) Descriptor() types.PluginDescriptor {
	return types.PluginDescriptor{
		Name:                "ruff",
		Domain:              types.DomainLinting,
		SupportsPartialScan: true,
		SupportsFix:         true,
	}
}

// EnsureTool installs the ruff binary on first use.
func (r *Ruff) EnsureTool(ctx context.Context) error {
	if r.provisioner == nil {
		return nil
	}
	_, err := r.provisioner.EnsureBinary(ctx, "ruff", ruffVersion)
	return err
}

func (r *Ruff) Execute(ctx context.Context, sc *types.ScanContext, targets types.TargetSet) types.PluginOutcome {
	desc := r.Descriptor()

	bin := "ruff"
	if r.provisioner != nil {
		installed, err := r.provisioner.EnsureBinary(ctx, "ruff", ruffVersion)
		if err != nil {
			return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorToolUnavailable, err.Error())
		}
		bin = installed
	}

	args := []string{"check", "--output-format", "json"}
	if sc.Fix {
		args = append(args, "--fix")
	}
	if targets.IsProjectWide() {
		args = append(args, ".")
	} else {
		args = append(args, targets.Files()...)
	}

	res, err := plugin.Run(ctx, sc.ProjectRoot, bin, args...)
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}
	if res.TimedOut {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorTimeout, "ruff timed out")
	}
	// Exit 0 means clean, exit 1 means diagnostics were emitted. Anything
	// else is a real failure.
	if res.ExitCode > 1 {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution,
			fmt.Sprintf("ruff exited %d: %s", res.ExitCode, truncate(string(res.Stderr), 500)))
	}

	issues, err := r.parseDiagnostics(res.Stdout)
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorParse, err.Error())
	}
	return types.SuccessOutcome(desc.Name, desc.Domain, issues)
}

type ruffDiagnostic struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
	EndLocation struct {
		Row int `json:"row"`
	} `json:"end_location"`
	Fix *struct {
		Message string `json:"message"`
	} `json:"fix"`
	URL string `json:"url"`
}

func (r *Ruff) parseDiagnostics(output []byte) ([]types.UnifiedIssue, error) {
	if len(output) == 0 {
		return nil, nil
	}
	var diags []ruffDiagnostic
	if err := json.Unmarshal(output, &diags); err != nil {
		return nil, fmt.Errorf("failed to parse ruff output: %w", err)
	}

	issues := make([]types.UnifiedIssue, 0, len(diags))
	for _, d := range diags {
		issue := types.UnifiedIssue{
			ID:         issueID("ruff", d.Code, d.Filename, d.Location.Row),
			Domain:     types.DomainLinting,
			SourceTool: "ruff",
			Severity:   ruffSeverity(d.Code),
			RuleID:     d.Code,
			Title:      fmt.Sprintf("%s %s", d.Code, d.Message),
			FilePath:   d.Filename,
			LineStart:  d.Location.Row,
			LineEnd:    d.EndLocation.Row,
			Column:     d.Location.Column,
		}
		if d.Fix != nil {
			issue.Fixable = true
			issue.SuggestedFix = d.Fix.Message
		}
		if d.URL != "" {
			issue.SetMetadata("url", d.URL)
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// ruffSeverity maps rule families onto the unified scale. Syntax errors and
// undefined names break execution; security rules carry real risk; the rest
// is style.
func ruffSeverity(code string) types.Severity {
	switch {
	case strings.HasPrefix(code, "E9"), strings.HasPrefix(code, "F82"):
		return types.SeverityHigh
	case strings.HasPrefix(code, "S"):
		return types.SeverityHigh
	case strings.HasPrefix(code, "F"), strings.HasPrefix(code, "B"):
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
