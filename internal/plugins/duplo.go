package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/plugin"
	"github.com/lucidscan/lucidscan/internal/types"
)

const duploVersion = "1.4.0"

// duploExtensions are the source extensions duplo understands.
var duploExtensions = map[string]bool{
	".py": true, ".rs": true, ".java": true,
	".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".c": true, ".cpp": true, ".cc": true, ".h": true, ".hpp": true,
	".cs": true, ".go": true, ".rb": true,
}

// Duplo adapts the duplo duplicate-code detector. Duplication is measured
// across the whole project regardless of what changed; a new file can
// duplicate an untouched one.
type Duplo struct {
	provisioner plugin.Provisioner
	minLines    int
	logger      *zap.Logger
}

// NewDuplo creates the duplo adapter.
func NewDuplo(provisioner plugin.Provisioner, logger *zap.Logger) *Duplo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Duplo{provisioner: provisioner, minLines: 4, logger: logger}
}

// SetMinLines overrides the minimum duplicate block size.
func (d *Duplo) SetMinLines(n int) {
	if n >= 2 {
		d.minLines = n
	}
}

func (d *Duplo) Descriptor() types.PluginDescriptor {
	return types.PluginDescriptor{
		Name:                "duplo",
		Domain:              types.DomainDuplication,
		SupportsPartialScan: false,
		SupportsFix:         false,
	}
}

// EnsureTool installs the duplo binary on first use.
func (d *Duplo) EnsureTool(ctx context.Context) error {
	if d.provisioner == nil {
		return nil
	}
	_, err := d.provisioner.EnsureBinary(ctx, "duplo", duploVersion)
	return err
}

func (d *Duplo) Execute(ctx context.Context, sc *types.ScanContext, _ types.TargetSet) types.PluginOutcome {
	desc := d.Descriptor()

	bin := "duplo"
	if d.provisioner != nil {
		installed, err := d.provisioner.EnsureBinary(ctx, "duplo", duploVersion)
		if err != nil {
			return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorToolUnavailable, err.Error())
		}
		bin = installed
	}

	files, err := d.collectSourceFiles(sc)
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}
	if len(files) == 0 {
		d.logger.Debug("no source files for duplication detection")
		return types.MetricOutcome(desc.Name, desc.Domain, nil, 0)
	}

	listFile, err := writeFileList(files)
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}
	defer os.Remove(listFile)

	// "-" sends the report to stdout.
	res, err := plugin.Run(ctx, sc.ProjectRoot, bin,
		listFile, "-", "--json", "--min-lines", strconv.Itoa(d.minLines))
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}
	if res.TimedOut {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorTimeout, "duplo timed out")
	}
	if res.ExitCode != 0 {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution,
			fmt.Sprintf("duplo exited %d: %s", res.ExitCode, truncate(string(res.Stderr), 500)))
	}

	return d.parseReport(res.Stdout)
}

type duploReport struct {
	Summary struct {
		FilesAnalyzed   int `json:"files_analyzed"`
		TotalLines      int `json:"total_lines"`
		DuplicateBlocks int `json:"duplicate_blocks"`
		DuplicateLines  int `json:"duplicate_lines"`
	} `json:"summary"`
	Duplicates []struct {
		File1     duploLocation `json:"file1"`
		File2     duploLocation `json:"file2"`
		LineCount int           `json:"line_count"`
	} `json:"duplicates"`
}

type duploLocation struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func (d *Duplo) parseReport(output []byte) types.PluginOutcome {
	desc := d.Descriptor()
	if len(strings.TrimSpace(string(output))) == 0 {
		return types.MetricOutcome(desc.Name, desc.Domain, nil, 0)
	}

	var report duploReport
	if err := json.Unmarshal(output, &report); err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorParse,
			fmt.Sprintf("failed to parse duplo output: %v", err))
	}

	var issues []types.UnifiedIssue
	for _, dup := range report.Duplicates {
		issue := types.UnifiedIssue{
			ID:         issueID("duplo", "duplicate", dup.File1.Path, dup.File1.StartLine),
			Domain:     types.DomainDuplication,
			SourceTool: "duplo",
			Severity:   types.SeverityLow,
			RuleID:     "duplicate-code",
			Title:      fmt.Sprintf("Code duplicate: %d lines", dup.LineCount),
			Description: fmt.Sprintf("Duplicated in %s:%d-%d",
				dup.File2.Path, dup.File2.StartLine, dup.File2.EndLine),
			FilePath:  dup.File1.Path,
			LineStart: dup.File1.StartLine,
			LineEnd:   dup.File1.EndLine,
		}
		issue.SetMetadata("duplicate_file", dup.File2.Path)
		issue.SetMetadata("duplicate_line_start", strconv.Itoa(dup.File2.StartLine))
		issues = append(issues, issue)
	}

	percent := 0.0
	if report.Summary.TotalLines > 0 {
		percent = float64(report.Summary.DuplicateLines) / float64(report.Summary.TotalLines) * 100
	}
	return types.MetricOutcome(desc.Name, desc.Domain, issues, percent)
}

// collectSourceFiles walks the project for duplo-supported sources,
// honoring the duplication domain's exclude patterns.
func (d *Duplo) collectSourceFiles(sc *types.ScanContext) ([]string, error) {
	excludes := sc.ExcludesFor(types.DomainDuplication)

	var files []string
	err := filepath.WalkDir(sc.ProjectRoot, func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		name := entry.Name()
		if entry.IsDir() {
			if p != sc.ProjectRoot && (strings.HasPrefix(name, ".") ||
				name == "node_modules" || name == "vendor" || name == "__pycache__") {
				return filepath.SkipDir
			}
			return nil
		}
		if !duploExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		rel, err := filepath.Rel(sc.ProjectRoot, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range excludes {
			if ok, _ := filepath.Match(pattern, rel); ok {
				return nil
			}
			if strings.HasPrefix(rel, strings.TrimSuffix(pattern, "/**")+"/") {
				return nil
			}
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

func writeFileList(files []string) (string, error) {
	f, err := os.CreateTemp("", "duplo-files-*.txt")
	if err != nil {
		return "", err
	}
	for _, file := range files {
		if _, err := fmt.Fprintln(f, file); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", err
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
