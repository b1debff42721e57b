// Package git shells out to the git CLI to detect uncommitted changes for
// partial scanning.
package git

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// commandTimeout bounds every git invocation so a wedged git (e.g. a stale
// index lock) degrades to a full scan instead of hanging the resolver.
const commandTimeout = 30 * time.Second

// Git implements change detection using the git CLI.
type Git struct {
	// gitPath is the path to the git executable
	gitPath string
}

// New creates a new Git instance.
// It verifies that git is available on the system.
func New(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath}, nil
}

// IsRepo checks whether path is inside a git work tree.
func (g *Git) IsRepo(ctx context.Context, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.gitPath, "-C", path, "rev-parse", "--git-dir")
	return cmd.Run() == nil
}

// Root returns the top-level directory of the repository containing path.
func (g *Git) Root(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.gitPath, "-C", path, "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed in %s: %w", path, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// ChangedFiles returns the uncommitted working-tree delta of the repository
// at repoPath: staged modifications, unstaged modifications, and untracked
// files, as sorted repo-root-relative paths.
//
// Paths that no longer exist on disk (staged deletions) are dropped; tools
// cannot scan files that are gone.
func (g *Git) ChangedFiles(ctx context.Context, repoPath string) ([]string, error) {
	seen := make(map[string]struct{})

	// Staged changes, unstaged changes, untracked files.
	commands := [][]string{
		{"diff", "--cached", "--name-only"},
		{"diff", "--name-only"},
		{"ls-files", "--others", "--exclude-standard"},
	}

	for _, args := range commands {
		files, err := g.listFiles(ctx, repoPath, args)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			seen[f] = struct{}{}
		}
	}

	changed := make([]string, 0, len(seen))
	for f := range seen {
		if _, err := os.Stat(filepath.Join(repoPath, filepath.FromSlash(f))); err != nil {
			continue
		}
		changed = append(changed, f)
	}
	sort.Strings(changed)
	return changed, nil
}

// listFiles runs one git command that emits newline-separated paths.
func (g *Git) listFiles(ctx context.Context, repoPath string, args []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	full := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, g.gitPath, full...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s failed in %s: %w", strings.Join(args, " "), repoPath, err)
	}

	var files []string
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			files = append(files, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git output: %w", err)
	}
	return files, nil
}
