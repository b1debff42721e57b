package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/mod/modfile"
	"golang.org/x/time/rate"

	"github.com/lucidscan/lucidscan/internal/types"
)

const osvAPIBase = "https://api.osv.dev/v1"

// DepAudit checks the project's direct Go dependencies against the OSV.dev
// vulnerability database. It reads go.mod, so partial scans make no sense;
// the whole dependency graph is audited every time.
type DepAudit struct {
	client  *http.Client
	limiter *rate.Limiter
	apiBase string
	logger  *zap.Logger
}

// NewDepAudit creates the dependency audit adapter.
func NewDepAudit(logger *zap.Logger) *DepAudit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepAudit{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		apiBase: osvAPIBase,
		logger:  logger,
	}
}

func (d *DepAudit) Descriptor() types.PluginDescriptor {
	return types.PluginDescriptor{
		Name:                "depaudit",
		Domain:              types.DomainSCA,
		SupportsPartialScan: false,
		SupportsFix:         false,
	}
}

func (d *DepAudit) Execute(ctx context.Context, sc *types.ScanContext, _ types.TargetSet) types.PluginOutcome {
	desc := d.Descriptor()

	goModPath := filepath.Join(sc.ProjectRoot, "go.mod")
	data, err := os.ReadFile(goModPath)
	if os.IsNotExist(err) {
		d.logger.Debug("no go.mod found, nothing to audit")
		return types.SuccessOutcome(desc.Name, desc.Domain, nil)
	}
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}

	modFile, err := modfile.Parse(goModPath, data, nil)
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorParse,
			fmt.Sprintf("failed to parse go.mod: %v", err))
	}

	deps := directDependencies(modFile)
	if len(deps) == 0 {
		return types.SuccessOutcome(desc.Name, desc.Domain, nil)
	}

	vulnIDs, err := d.queryBatch(ctx, deps)
	if err != nil {
		return types.ErrorOutcome(desc.Name, desc.Domain, types.ErrorExecution, err.Error())
	}

	var issues []types.UnifiedIssue
	for _, pkgVulns := range vulnIDs {
		for _, id := range pkgVulns.ids {
			vuln, err := d.fetchVuln(ctx, id)
			if err != nil {
				d.logger.Warn("failed to fetch vulnerability details",
					zap.String("id", id), zap.Error(err))
				continue
			}
			issues = append(issues, d.toIssue(pkgVulns.pkg, vuln))
		}
	}
	return types.SuccessOutcome(desc.Name, desc.Domain, issues)
}

type goDependency struct {
	Path    string
	Version string
}

func directDependencies(f *modfile.File) []goDependency {
	var deps []goDependency
	for _, req := range f.Require {
		if req.Indirect {
			continue
		}
		deps = append(deps, goDependency{Path: req.Mod.Path, Version: req.Mod.Version})
	}
	return deps
}

type packageVulns struct {
	pkg goDependency
	ids []string
}

// queryBatch asks OSV.dev which dependencies have known advisories. The
// batch endpoint returns only advisory ids; details come per id.
func (d *DepAudit) queryBatch(ctx context.Context, deps []goDependency) ([]packageVulns, error) {
	type osvPackage struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	}
	type osvQuery struct {
		Version string     `json:"version,omitempty"`
		Package osvPackage `json:"package"`
	}

	queries := make([]osvQuery, 0, len(deps))
	for _, dep := range deps {
		queries = append(queries, osvQuery{
			Version: strings.TrimPrefix(dep.Version, "v"),
			Package: osvPackage{Name: dep.Path, Ecosystem: "Go"},
		})
	}

	body, err := json.Marshal(map[string]any{"queries": queries})
	if err != nil {
		return nil, err
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiBase+"/querybatch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query OSV.dev: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OSV.dev returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var batchResp struct {
		Results []struct {
			Vulns []struct {
				ID string `json:"id"`
			} `json:"vulns"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&batchResp); err != nil {
		return nil, fmt.Errorf("failed to decode OSV.dev response: %w", err)
	}

	var out []packageVulns
	for i, result := range batchResp.Results {
		if i >= len(deps) || len(result.Vulns) == 0 {
			continue
		}
		pv := packageVulns{pkg: deps[i]}
		for _, v := range result.Vulns {
			pv.ids = append(pv.ids, v.ID)
		}
		sort.Strings(pv.ids)
		out = append(out, pv)
	}
	return out, nil
}

type osvVuln struct {
	ID               string `json:"id"`
	Summary          string `json:"summary"`
	Details          string `json:"details"`
	DatabaseSpecific struct {
		Severity string `json:"severity"`
	} `json:"database_specific"`
	Affected []struct {
		Ranges []struct {
			Events []struct {
				Introduced string `json:"introduced,omitempty"`
				Fixed      string `json:"fixed,omitempty"`
			} `json:"events"`
		} `json:"ranges"`
	} `json:"affected"`
}

func (d *DepAudit) fetchVuln(ctx context.Context, id string) (*osvVuln, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.apiBase+"/vulns/"+id, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OSV.dev returned %d for %s", resp.StatusCode, id)
	}
	var vuln osvVuln
	if err := json.NewDecoder(resp.Body).Decode(&vuln); err != nil {
		return nil, err
	}
	return &vuln, nil
}

func (d *DepAudit) toIssue(pkg goDependency, vuln *osvVuln) types.UnifiedIssue {
	issue := types.UnifiedIssue{
		ID:          issueID("depaudit", vuln.ID, pkg.Path, 0),
		Domain:      types.DomainSCA,
		SourceTool:  "depaudit",
		Severity:    osvSeverity(vuln.DatabaseSpecific.Severity),
		RuleID:      vuln.ID,
		Title:       fmt.Sprintf("%s@%s: %s", pkg.Path, pkg.Version, vuln.Summary),
		Description: truncate(vuln.Details, 1000),
		FilePath:    "go.mod",
	}
	issue.SetMetadata("package", pkg.Path)
	issue.SetMetadata("installed_version", pkg.Version)
	if fixed := fixedVersion(vuln); fixed != "" {
		issue.Fixable = true
		issue.SuggestedFix = fmt.Sprintf("upgrade %s to %s", pkg.Path, fixed)
		issue.SetMetadata("fixed_version", fixed)
	}
	return issue
}

func fixedVersion(vuln *osvVuln) string {
	for _, affected := range vuln.Affected {
		for _, rng := range affected.Ranges {
			for _, event := range rng.Events {
				if event.Fixed != "" {
					return event.Fixed
				}
			}
		}
	}
	return ""
}

// osvSeverity maps OSV advisory severities onto the unified scale. Unknown
// or missing severities default to medium rather than silently dropping to
// info.
func osvSeverity(s string) types.Severity {
	switch strings.ToUpper(s) {
	case "CRITICAL":
		return types.SeverityCritical
	case "HIGH":
		return types.SeverityHigh
	case "MODERATE", "MEDIUM":
		return types.SeverityMedium
	case "LOW":
		return types.SeverityLow
	default:
		return types.SeverityMedium
	}
}
