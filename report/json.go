package report

import (
	"io"

	"github.com/eak1mov/pmtiles-inspect/inspect"
	"github.com/goccy/go-json"
)

// JSON writes the report as an indented JSON document.
func JSON(w io.Writer, r *inspect.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}
