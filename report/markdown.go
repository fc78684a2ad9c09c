// Package report renders inspection reports for humans (markdown) and for
// machines (JSON). Rendering never computes anything: all values come from
// an inspect.Report.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/dustin/go-humanize"
	"github.com/eak1mov/pmtiles-inspect/inspect"
	"github.com/eak1mov/pmtiles-inspect/metadata"
)

// NotAvailable replaces values absent from the archive.
const NotAvailable = "N/A"

type markdownWriter struct {
	w   io.Writer
	err error
}

func (m *markdownWriter) printf(format string, args ...any) {
	if m.err == nil {
		_, m.err = fmt.Fprintf(m.w, format, args...)
	}
}

func (m *markdownWriter) item(name string, value any) {
	m.printf("- **%s:** %v\n", name, value)
}

func (m *markdownWriter) writeTable(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.MarkdownBorder()).
		BorderTop(false).
		BorderBottom(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...)
	m.printf("%s\n\n", t.String())
}

// Markdown writes the report as a markdown document.
func Markdown(w io.Writer, r *inspect.Report) error {
	m := &markdownWriter{w: w}

	m.printf("# PMTiles Report\n\n")
	m.printf("**File:** `%s`  \n", filepath.Base(r.FilePath))
	m.printf("**Size:** %s\n\n", Bytes(r.FileSize))

	writeBasicInfo(m, &r.Info)
	writeLayers(m, r.Layers)
	if r.Zooms != nil {
		writeZooms(m, r)
	}
	writeSections(m, r.Sections)

	if len(r.Warnings) > 0 {
		m.printf("## Warnings\n\n")
		for _, warning := range r.Warnings {
			m.printf("- %s\n", warning)
		}
		m.printf("\n")
	}
	return m.err
}

func writeBasicInfo(m *markdownWriter, info *inspect.BasicInfo) {
	m.printf("## Basic Info\n\n")
	m.item("Name", Text(info.Name))
	m.item("Generator", Text(info.Generator))
	m.item("Format", Text(info.Format))
	m.item("Version", info.Version)
	m.item("Tile Type", info.TileType)
	m.item("Tile Compression", info.TileCompression)
	m.item("Zoom Range", fmt.Sprintf("%d - %d", info.MinZoom, info.MaxZoom))
	m.item("Addressed Tiles", Count(info.AddressedTiles))
	m.item("Tile Entries", Count(info.TileEntries))
	m.item("Tile Contents", Count(info.TileContents))
	m.item("Tile Data Size", Bytes(info.TileDataLength))
	m.item("Extent", fmt.Sprintf("%.4f° × %.4f° (%s)", info.ExtentWidth, info.ExtentHeight, info.ExtentSource))
	m.item("Center", fmt.Sprintf("%.6f°, %.6f°", info.Center.Lon(), info.Center.Lat()))
	m.printf("\n")
}

func writeLayers(m *markdownWriter, layers []metadata.LayerStats) {
	if len(layers) == 0 {
		return
	}
	m.printf("## Layers\n\n")
	for _, layer := range layers {
		m.printf("### %s\n\n", Text(layer.Name))
		m.item("Geometry", Text(layer.Geometry))
		m.item("Features", Count(layer.Count))
		m.item("Attribute Count", layer.AttributeCount)
		if len(layer.Attributes) > 0 {
			m.printf("- **Attributes:**\n")
			for _, attr := range layer.Attributes {
				m.printf("  - `%s` (%s): %s values, range %s - %s\n",
					Text(attr.Name), Text(attr.Type), Count(attr.Count), Value(attr.Min, attr.MinText), Value(attr.Max, attr.MaxText))
			}
		}
		m.printf("\n")
	}
}

func writeZooms(m *markdownWriter, r *inspect.Report) {
	m.printf("## Zoom Analysis\n\n")
	if b := r.ZoomBounds; b != nil {
		m.printf("Bounds: %.6f, %.6f, %.6f, %.6f\n\n", b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat())
	}

	rows := make([][]string, 0, len(r.Zooms))
	var failed uint64
	for _, z := range r.Zooms {
		rows = append(rows, []string{
			fmt.Sprint(z.Zoom),
			Count(z.Theoretical),
			Count(z.Actual),
			Percent(z.Density*100, 1),
			Bytes(z.TotalSize),
			Bytes(uint64(z.AvgSize)),
		})
		failed += z.Failed
	}
	m.writeTable([]string{"Zoom", "Theoretical", "Actual", "Density", "Total Size", "Avg Size"}, rows)

	if failed > 0 {
		m.printf("%s tile lookups failed and were counted as absent.\n\n", Count(failed))
	}
}

func writeSections(m *markdownWriter, sections []inspect.SectionRow) {
	m.printf("## File Structure\n\n")
	rows := make([][]string, 0, len(sections))
	for _, s := range sections {
		row := []string{string(s.Section), Bytes(s.Length), Percent(s.Percent, 2)}
		if s.Section == inspect.SectionTotal {
			for i, v := range row {
				row[i] = "**" + v + "**"
			}
		}
		rows = append(rows, row)
	}
	m.writeTable([]string{"Section", "Size", "Percent"}, rows)
}

// Text returns the value or NotAvailable.
func Text(value metadata.Optional[string]) string {
	if s, ok := value.Get(); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return NotAvailable
}

// Number formats a numeric attribute bound, or NotAvailable.
func Number(value metadata.Optional[float64]) string {
	if f, ok := value.Get(); ok {
		return humanize.Ftoa(f)
	}
	return NotAvailable
}

// Value formats a numeric attribute bound, falling back to its text form.
func Value(number metadata.Optional[float64], text metadata.Optional[string]) string {
	if number.Present {
		return Number(number)
	}
	return Text(text)
}

// Count formats an integer with thousands separators.
func Count(n uint64) string {
	return humanize.Comma(int64(n))
}

// Bytes formats a size in binary units.
func Bytes(n uint64) string {
	return humanize.IBytes(n)
}

func Percent(value float64, precision int) string {
	return fmt.Sprintf("%.*f%%", precision, value)
}
