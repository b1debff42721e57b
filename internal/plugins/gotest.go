package plugins

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/plugin"
	"github.com/lucidscan/lucidscan/internal/types"
)

// GoTest runs the project's Go test suite. Any change can break any test,
// so the whole suite runs every time.
type GoTest struct {
	logger *zap.Logger
}

// NewGoTest creates the go test adapter.
func NewGoTest(logger *zap.Logger) *GoTest {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoTest{logger: logger}
}

func (g *GoTest) Descriptor() types.PluginDescriptor {
	return types.PluginDescriptor{
		Name:                "gotest",
		Domain:              types.DomainTesting,
		SupportsPartialScan: false,
		SupportsFix:         false,
	}
}

func (g *GoTest) Execute(ctx context.Context, sc *types.ScanContext, _ types.TargetSet) types.PluginOutcome {
	desc := g.Descriptor()

	res, err := plugin.Run(ctx, sc.ProjectRoot, "go", "test", "-json", "./...")
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}
	if res.TimedOut {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorTimeout, "go test timed out")
	}

	issues, parseErr := g.parseEvents(res.Stdout)
	if parseErr != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorParse, parseErr.Error())
	}

	// Exit 1 with parseable failures is a normal "tests failed" result.
	// Exit 1 with nothing parsed means the build itself broke.
	if res.ExitCode != 0 && len(issues) == 0 {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution,
			fmt.Sprintf("go test exited %d: %s", res.ExitCode, truncate(string(res.Stderr), 500)))
	}
	return types.SuccessOutcome(desc.Name, desc.Domain, issues)
}

type goTestEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Output  string  `json:"Output"`
	Elapsed float64 `json:"Elapsed"`
}

func (g *GoTest) parseEvents(output []byte) ([]types.UnifiedIssue, error) {
	type testKey struct {
		pkg  string
		test string
	}
	outputs := make(map[testKey][]string)
	var failed []testKey

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var ev goTestEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		key := testKey{pkg: ev.Package, test: ev.Test}
		switch ev.Action {
		case "output":
			outputs[key] = append(outputs[key], ev.Output)
		case "fail":
			if ev.Test != "" {
				failed = append(failed, key)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read go test output: %w", err)
	}

	sort.Slice(failed, func(i, j int) bool {
		if failed[i].pkg != failed[j].pkg {
			return failed[i].pkg < failed[j].pkg
		}
		return failed[i].test < failed[j].test
	})

	issues := make([]types.UnifiedIssue, 0, len(failed))
	for _, key := range failed {
		issue := types.UnifiedIssue{
			ID:          issueID("gotest", key.test, key.pkg, 0),
			Domain:      types.DomainTesting,
			SourceTool:  "gotest",
			Severity:    types.SeverityHigh,
			RuleID:      "test-failure",
			Title:       fmt.Sprintf("Test failed: %s", key.test),
			Description: truncate(strings.Join(outputs[testKey{pkg: key.pkg, test: key.test}], ""), 2000),
		}
		issue.SetMetadata("package", key.pkg)
		issues = append(issues, issue)
	}
	return issues, nil
}
