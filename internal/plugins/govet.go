package plugins

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/plugin"
	"github.com/lucidscan/lucidscan/internal/types"
)

// GoVet runs go vet across the module. Vet diagnostics span packages, so
// the whole module is analyzed every time.
type GoVet struct {
	logger *zap.Logger
}

// NewGoVet creates the go vet adapter.
func NewGoVet(logger *zap.Logger) *GoVet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoVet{logger: logger}
}

func (g *GoVet) Descriptor() types.PluginDescriptor {
	return types.PluginDescriptor{
		Name:                "govet",
		Domain:              types.DomainTypeChecking,
		SupportsPartialScan: false,
		SupportsFix:         false,
	}
}

func (g *GoVet) Execute(ctx context.Context, sc *types.ScanContext, _ types.TargetSet) types.PluginOutcome {
	desc := g.Descriptor()

	res, err := plugin.Run(ctx, sc.ProjectRoot, "go", "vet", "./...")
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}
	if res.TimedOut {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorTimeout, "go vet timed out")
	}

	issues := g.parseDiagnostics(res.Stderr)

	// Exit 1 with no parsed diagnostics means vet itself could not run
	// (usually a build failure).
	if res.ExitCode != 0 && len(issues) == 0 {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution,
			fmt.Sprintf("go vet exited %d: %s", res.ExitCode, truncate(string(res.Stderr), 500)))
	}
	return types.SuccessOutcome(desc.Name, desc.Domain, issues)
}

// vetLine matches "path/file.go:12:4: message".
var vetLine = regexp.MustCompile(`^(.+\.go):(\d+)(?::(\d+))?:\s+(.+)$`)

func (g *GoVet) parseDiagnostics(output []byte) []types.UnifiedIssue {
	var issues []types.UnifiedIssue
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		m := vetLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNum, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		issues = append(issues, types.UnifiedIssue{
			ID:         issueID("govet", "vet", m[1], lineNum),
			Domain:     types.DomainTypeChecking,
			SourceTool: "govet",
			Severity:   types.SeverityHigh,
			RuleID:     "vet",
			Title:      m[4],
			FilePath:   m[1],
			LineStart:  lineNum,
			Column:     col,
		})
	}
	return issues
}
