package plugins

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/plugin"
	"github.com/lucidscan/lucidscan/internal/types"
)

// GoCover measures statement coverage for the project's Go test suite.
type GoCover struct {
	logger *zap.Logger
}

// NewGoCover creates the coverage adapter.
func NewGoCover(logger *zap.Logger) *GoCover {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoCover{logger: logger}
}

func (g *GoCover) Descriptor() types.PluginDescriptor {
	return types.PluginDescriptor{
		Name:                "gocover",
		Domain:              types.DomainCoverage,
		SupportsPartialScan: false,
		SupportsFix:         false,
	}
}

func (g *GoCover) Execute(ctx context.Context, sc *types.ScanContext, _ types.TargetSet) types.PluginOutcome {
	desc := g.Descriptor()

	profile, err := os.CreateTemp("", "lucidscan-cover-*.out")
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}
	profile.Close()
	defer os.Remove(profile.Name())

	res, err := plugin.Run(ctx, sc.ProjectRoot, "go",
		"test", "-coverprofile", profile.Name(), "./...")
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}
	if res.TimedOut {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorTimeout, "coverage run timed out")
	}
	if res.ExitCode != 0 {
		// Failing tests belong to the testing domain; coverage only needs
		// the profile, which go test writes for the packages that ran.
		g.logger.Debug("go test exited nonzero during coverage run",
			zap.Int("exit_code", res.ExitCode))
	}

	funcRes, err := plugin.Run(ctx, sc.ProjectRoot, "go",
		"tool", "cover", "-func", profile.Name())
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}
	if funcRes.TimedOut {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorTimeout, "coverage run timed out")
	}
	if funcRes.ExitCode != 0 {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution,
			fmt.Sprintf("go tool cover exited %d: %s", funcRes.ExitCode, truncate(string(funcRes.Stderr), 500)))
	}

	percent, err := parseTotalCoverage(funcRes.Stdout)
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorParse, err.Error())
	}
	return types.MetricOutcome(desc.Name, desc.Domain, nil, percent)
}

// parseTotalCoverage extracts the percentage from the "total:" line of
// go tool cover -func output.
func parseTotalCoverage(output []byte) (float64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "total:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			break
		}
		raw := strings.TrimSuffix(fields[len(fields)-1], "%")
		percent, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse coverage total %q: %w", raw, err)
		}
		return percent, nil
	}
	return 0, fmt.Errorf("no coverage total in go tool cover output")
}
