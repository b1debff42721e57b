package report

import (
	"encoding/json"
	"io"

	"github.com/lucidscan/lucidscan/internal/types"
)

// JSONReporter emits the full scan result as indented JSON.
type JSONReporter struct{}

func (r *JSONReporter) Report(w io.Writer, result *types.ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
