package plugins

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/plugin"
	"github.com/lucidscan/lucidscan/internal/types"
)

const trivyVersion = "0.58.1"

// Trivy adapts the trivy security scanner. One instance covers exactly one
// security subdomain; the same binary serves sca (dependency
// vulnerabilities), iac (misconfigurations), and container (base image
// vulnerabilities) through different scan modes.
type Trivy struct {
	domain      types.Domain
	provisioner plugin.Provisioner
	logger      *zap.Logger
}

// NewTrivy creates a trivy adapter for one security subdomain.
func NewTrivy(domain types.Domain, provisioner plugin.Provisioner, logger *zap.Logger) *Trivy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trivy{domain: domain, provisioner: provisioner, logger: logger}
}

func (t *Trivy) Descriptor() types.PluginDescriptor {
	return types.PluginDescriptor{
		Name:                "trivy",
		Domain:              t.domain,
		SupportsPartialScan: false,
		SupportsFix:         false,
	}
}

// EnsureTool installs the trivy binary on first use.
func (t *Trivy) EnsureTool(ctx context.Context) error {
	if t.provisioner == nil {
		return nil
	}
	_, err := t.provisioner.EnsureBinary(ctx, "trivy", trivyVersion)
	return err
}

func (t *Trivy) Execute(ctx context.Context, sc *types.ScanContext, _ types.TargetSet) types.PluginOutcome {
	desc := t.Descriptor()

	bin := "trivy"
	if t.provisioner != nil {
		installed, err := t.provisioner.EnsureBinary(ctx, "trivy", trivyVersion)
		if err != nil {
			return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorToolUnavailable, err.Error())
		}
		bin = installed
	}

	switch t.domain {
	case types.DomainSCA:
		return t.runFS(ctx, sc, bin, "vuln")
	case types.DomainIaC:
		return t.runFS(ctx, sc, bin, "misconfig")
	case types.DomainContainer:
		return t.runImages(ctx, sc, bin)
	default:
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution,
			fmt.Sprintf("unsupported trivy domain: %s", t.domain))
	}
}

func (t *Trivy) runFS(ctx context.Context, sc *types.ScanContext, bin, scanners string) types.PluginOutcome {
	desc := t.Descriptor()
	res, err := plugin.Run(ctx, sc.ProjectRoot, bin,
		"fs", "--scanners", scanners, "--format", "json", "--quiet", ".")
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}
	if res.TimedOut {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorTimeout, "trivy timed out")
	}
	if res.ExitCode != 0 {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution,
			fmt.Sprintf("trivy exited %d: %s", res.ExitCode, truncate(string(res.Stderr), 500)))
	}

	issues, err := t.parseReport(res.Stdout)
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorParse, err.Error())
	}
	return types.SuccessOutcome(desc.Name, desc.Domain, issues)
}

// runImages scans the base images referenced by the project's Dockerfiles.
func (t *Trivy) runImages(ctx context.Context, sc *types.ScanContext, bin string) types.PluginOutcome {
	desc := t.Descriptor()

	images, err := baseImages(sc.ProjectRoot)
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}
	if len(images) == 0 {
		t.logger.Debug("no Dockerfile base images to scan")
		return types.SuccessOutcome(desc.Name, desc.Domain, nil)
	}

	var issues []types.UnifiedIssue
	for _, image := range images {
		res, err := plugin.Run(ctx, sc.ProjectRoot, bin,
			"image", "--format", "json", "--quiet", image)
		if err != nil {
			return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
		}
		if res.TimedOut {
			return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorTimeout, "trivy timed out")
		}
		if res.ExitCode != 0 {
			return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution,
				fmt.Sprintf("trivy exited %d scanning %s: %s", res.ExitCode, image, truncate(string(res.Stderr), 500)))
		}
		parsed, err := t.parseReport(res.Stdout)
		if err != nil {
			return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorParse, err.Error())
		}
		for i := range parsed {
			parsed[i].SetMetadata("image", image)
		}
		issues = append(issues, parsed...)
	}
	return types.SuccessOutcome(desc.Name, desc.Domain, issues)
}

type trivyReport struct {
	Results []struct {
		Target          string `json:"Target"`
		Vulnerabilities []struct {
			VulnerabilityID  string `json:"VulnerabilityID"`
			PkgName          string `json:"PkgName"`
			InstalledVersion string `json:"InstalledVersion"`
			FixedVersion     string `json:"FixedVersion"`
			Severity         string `json:"Severity"`
			Title            string `json:"Title"`
			Description      string `json:"Description"`
			PrimaryURL       string `json:"PrimaryURL"`
		} `json:"Vulnerabilities"`
		Misconfigurations []struct {
			ID            string `json:"ID"`
			Title         string `json:"Title"`
			Description   string `json:"Description"`
			Severity      string `json:"Severity"`
			Resolution    string `json:"Resolution"`
			PrimaryURL    string `json:"PrimaryURL"`
			CauseMetadata struct {
				StartLine int `json:"StartLine"`
				EndLine   int `json:"EndLine"`
			} `json:"CauseMetadata"`
		} `json:"Misconfigurations"`
	} `json:"Results"`
}

func (t *Trivy) parseReport(output []byte) ([]types.UnifiedIssue, error) {
	if len(output) == 0 {
		return nil, nil
	}
	var report trivyReport
	if err := json.Unmarshal(output, &report); err != nil {
		return nil, fmt.Errorf("failed to parse trivy output: %w", err)
	}

	var issues []types.UnifiedIssue
	for _, result := range report.Results {
		for _, v := range result.Vulnerabilities {
			title := v.Title
			if title == "" {
				title = fmt.Sprintf("%s in %s", v.VulnerabilityID, v.PkgName)
			}
			issue := types.UnifiedIssue{
				ID:          issueID("trivy", v.VulnerabilityID, result.Target+"/"+v.PkgName, 0),
				Domain:      t.domain,
				SourceTool:  "trivy",
				Severity:    trivySeverity(v.Severity),
				RuleID:      v.VulnerabilityID,
				Title:       title,
				Description: truncate(v.Description, 1000),
				FilePath:    result.Target,
			}
			issue.SetMetadata("package", v.PkgName)
			issue.SetMetadata("installed_version", v.InstalledVersion)
			if v.FixedVersion != "" {
				issue.Fixable = true
				issue.SuggestedFix = fmt.Sprintf("upgrade %s to %s", v.PkgName, v.FixedVersion)
			}
			if v.PrimaryURL != "" {
				issue.SetMetadata("url", v.PrimaryURL)
			}
			issues = append(issues, issue)
		}
		for _, m := range result.Misconfigurations {
			issue := types.UnifiedIssue{
				ID:          issueID("trivy", m.ID, result.Target, m.CauseMetadata.StartLine),
				Domain:      t.domain,
				SourceTool:  "trivy",
				Severity:    trivySeverity(m.Severity),
				RuleID:      m.ID,
				Title:       m.Title,
				Description: truncate(m.Description, 1000),
				FilePath:    result.Target,
				LineStart:   m.CauseMetadata.StartLine,
				LineEnd:     m.CauseMetadata.EndLine,
			}
			if m.Resolution != "" {
				issue.SuggestedFix = m.Resolution
			}
			if m.PrimaryURL != "" {
				issue.SetMetadata("url", m.PrimaryURL)
			}
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

// baseImages extracts the unique base images from every Dockerfile in the
// project, skipping build-stage aliases and scratch.
func baseImages(root string) ([]string, error) {
	var dockerfiles []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if p != root && (name == ".git" || name == "node_modules" || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if name == "Dockerfile" || strings.HasPrefix(name, "Dockerfile.") {
			dockerfiles = append(dockerfiles, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var images []string
	for _, df := range dockerfiles {
		f, err := os.Open(df)
		if err != nil {
			continue
		}
		stages := make(map[string]bool)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) < 2 || !strings.EqualFold(fields[0], "FROM") {
				continue
			}
			image := fields[1]
			if len(fields) >= 4 && strings.EqualFold(fields[2], "AS") {
				stages[strings.ToLower(fields[3])] = true
			}
			if image == "scratch" || stages[strings.ToLower(image)] {
				continue
			}
			if !seen[image] {
				seen[image] = true
				images = append(images, image)
			}
		}
		f.Close()
	}
	sort.Strings(images)
	return images, nil
}

func trivySeverity(s string) types.Severity {
	switch strings.ToUpper(s) {
	case "CRITICAL":
		return types.SeverityCritical
	case "HIGH":
		return types.SeverityHigh
	case "MEDIUM":
		return types.SeverityMedium
	case "LOW":
		return types.SeverityLow
	default:
		return types.SeverityInfo
	}
}
