// Package report renders a ScanResult to the terminal or to machine
// formats. Reporters write to stdout only; diagnostics stay on stderr.
package report

import (
	"fmt"
	"io"

	"github.com/lucidscan/lucidscan/internal/types"
)

// Reporter renders one scan result.
type Reporter interface {
	Report(w io.Writer, result *types.ScanResult) error
}

// New returns the reporter for a format name.
func New(format string) (Reporter, error) {
	switch format {
	case "json":
		return &JSONReporter{}, nil
	case "table", "":
		return &TableReporter{}, nil
	case "sarif":
		return &SARIFReporter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}
