package mcp

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/types"
)

type scanInput struct {
	Path     string   `json:"path,omitempty" jsonschema:"Project directory to scan (default: current directory)"`
	Domains  []string `json:"domains,omitempty" jsonschema:"Restrict the scan to these domains (linting, type_checking, sca, sast, iac, container, testing, coverage, duplication)"`
	Files    []string `json:"files,omitempty" jsonschema:"Scan only these files, relative to the project root"`
	AllFiles bool     `json:"all_files,omitempty" jsonschema:"Scan the whole project instead of changed files"`
}

type scanOutput struct {
	Passed    bool                 `json:"passed" jsonschema:"Whether every evaluated domain passed its threshold"`
	ExitCode  int                  `json:"exit_code" jsonschema:"Process exit code the CLI would return"`
	Issues    []types.UnifiedIssue `json:"issues" jsonschema:"Normalized issues from all tools"`
	Summaries []domainSummary      `json:"summaries" jsonschema:"Per-domain verdicts in canonical order"`
	Errors    []string             `json:"errors,omitempty" jsonschema:"Plugins that failed to execute"`
}

type domainSummary struct {
	Domain  string   `json:"domain"`
	Passed  bool     `json:"passed"`
	Skipped bool     `json:"skipped,omitempty"`
	Total   int      `json:"total_issues"`
	Metric  *float64 `json:"metric,omitempty"`
}

type checkFileInput struct {
	Path string `json:"path,omitempty" jsonschema:"Project directory (default: current directory)"`
	File string `json:"file" jsonschema:"required,File to check, relative to the project root"`
}

type listScannersInput struct{}

type listScannersOutput struct {
	Scanners []types.PluginDescriptor `json:"scanners" jsonschema:"Registered plugins with their capabilities"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "scan",
		Description: "Run quality and security checks against a project. Resolves scan scope from git changes unless files or all_files narrow it, runs the configured tools concurrently, and returns normalized issues with per-domain pass/fail verdicts.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args scanInput) (*mcp.CallToolResult, scanOutput, error) {
		sc, err := s.buildContext(args.Path, args.Domains, args.Files, args.AllFiles)
		if err != nil {
			return nil, scanOutput{}, err
		}
		return s.runScan(ctx, sc)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "check_file",
		Description: "Run quality checks against a single file. Only tools that support partial scans are invoked.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args checkFileInput) (*mcp.CallToolResult, scanOutput, error) {
		if args.File == "" {
			return nil, scanOutput{}, fmt.Errorf("file is required")
		}
		sc, err := s.buildContext(args.Path, nil, []string{args.File}, false)
		if err != nil {
			return nil, scanOutput{}, err
		}
		return s.runScan(ctx, sc)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_scanners",
		Description: "List the registered scanner plugins with their domains and capabilities.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listScannersInput) (*mcp.CallToolResult, listScannersOutput, error) {
		return nil, listScannersOutput{Scanners: s.registry.Descriptors()}, nil
	})
}

func (s *Server) buildContext(path string, domains, files []string, allFiles bool) (*types.ScanContext, error) {
	if path == "" {
		path = "."
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	sc := s.cfg.NewScanContext(root)
	sc.Files = files
	sc.AllFiles = allFiles

	if len(domains) > 0 {
		parsed := make([]types.Domain, 0, len(domains))
		for _, name := range domains {
			d, err := types.ParseDomain(name)
			if err != nil {
				return nil, err
			}
			parsed = append(parsed, d)
		}
		sc.Domains = parsed
	}
	return sc, nil
}

func (s *Server) runScan(ctx context.Context, sc *types.ScanContext) (*mcp.CallToolResult, scanOutput, error) {
	result, err := s.runner.Run(ctx, sc)
	if err != nil {
		s.logger.Error("scan failed", zap.Error(err))
		return nil, scanOutput{}, err
	}

	out := scanOutput{
		Passed:   result.Passed(),
		ExitCode: result.ExitCode,
		Issues:   result.Issues,
	}
	for _, domain := range types.AllDomains {
		summary, ok := result.Summaries[domain]
		if !ok {
			continue
		}
		out.Summaries = append(out.Summaries, domainSummary{
			Domain:  string(domain),
			Passed:  summary.Passed,
			Skipped: summary.Skipped,
			Total:   summary.Total,
			Metric:  summary.Metric,
		})
	}
	for _, pluginErr := range result.Errors {
		out.Errors = append(out.Errors, pluginErr.Error())
	}
	return nil, out, nil
}
