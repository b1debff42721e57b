package bootstrap

import (
	"fmt"
)

// releaseTemplates maps tool names to their GitHub release download URL
// patterns. Placeholders: version, os, arch.
var releaseTemplates = map[string]string{
	"ruff":  "https://github.com/astral-sh/ruff/releases/download/%[1]s/ruff-%[2]s-%[3]s",
	"trivy": "https://github.com/aquasecurity/trivy/releases/download/v%[1]s/trivy-%[2]s-%[3]s",
	"duplo": "https://github.com/lucidscan/duplo/releases/download/v%[1]s/duplo-%[2]s-%[3]s",
}

// ReleaseURL builds the download URL for a managed tool binary.
func ReleaseURL(tool, version, goos, goarch string) (string, error) {
	tmpl, ok := releaseTemplates[tool]
	if !ok {
		return "", fmt.Errorf("no release source for tool %q", tool)
	}
	return fmt.Sprintf(tmpl, version, goos, goarch), nil
}
