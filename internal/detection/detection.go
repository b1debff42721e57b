// Package detection inspects a project tree to determine which languages
// it contains. Plugin defaults and the init command use the result to pick
// sensible tools for the project.
package detection

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Language holds detection results for one language.
type Language struct {
	Name      string
	FileCount int
	// MarkerFile is set when a build manifest identified the language
	// even without source files, e.g. go.mod or pyproject.toml.
	MarkerFile string
}

// Project describes the detected shape of a codebase.
type Project struct {
	Root      string
	Languages []Language
}

// Primary returns the language with the most source files, or "" when
// nothing was detected.
func (p *Project) Primary() string {
	if len(p.Languages) == 0 {
		return ""
	}
	best := p.Languages[0]
	for _, lang := range p.Languages[1:] {
		if lang.FileCount > best.FileCount {
			best = lang
		}
	}
	return best.Name
}

// Has reports whether the project contains the named language.
func (p *Project) Has(name string) bool {
	for _, lang := range p.Languages {
		if lang.Name == name {
			return true
		}
	}
	return false
}

var extensionLanguages = map[string]string{
	".py":   "python",
	".pyi":  "python",
	".js":   "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".go":   "go",
	".rs":   "rust",
	".java": "java",
	".kt":   "kotlin",
	".kts":  "kotlin",
	".rb":   "ruby",
	".cs":   "csharp",
}

var markerLanguages = map[string]string{
	"pyproject.toml":   "python",
	"setup.py":         "python",
	"requirements.txt": "python",
	"package.json":     "javascript",
	"tsconfig.json":    "typescript",
	"go.mod":           "go",
	"Cargo.toml":       "rust",
	"pom.xml":          "java",
	"build.gradle":     "java",
	"Gemfile":          "ruby",
}

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".tox":         true,
	".mypy_cache":  true,
	".ruff_cache":  true,
}

// Detect walks root and returns the languages found, ordered by file count
// descending then name. Marker files count a language as present even when
// no source files exist yet.
func Detect(root string) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	markers := make(map[string]string)

	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entries are skipped, not fatal.
			if os.IsPermission(walkErr) {
				return fs.SkipDir
			}
			return walkErr
		}
		if d.IsDir() {
			if p != abs && skipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if lang, ok := markerLanguages[d.Name()]; ok {
			if _, seen := markers[lang]; !seen {
				markers[lang] = d.Name()
			}
		}
		if lang, ok := extensionLanguages[filepath.Ext(d.Name())]; ok {
			counts[lang]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool)
	for lang := range counts {
		names[lang] = true
	}
	for lang := range markers {
		names[lang] = true
	}

	languages := make([]Language, 0, len(names))
	for lang := range names {
		languages = append(languages, Language{
			Name:       lang,
			FileCount:  counts[lang],
			MarkerFile: markers[lang],
		})
	}
	sort.Slice(languages, func(i, j int) bool {
		if languages[i].FileCount != languages[j].FileCount {
			return languages[i].FileCount > languages[j].FileCount
		}
		return languages[i].Name < languages[j].Name
	})

	return &Project{Root: abs, Languages: languages}, nil
}
