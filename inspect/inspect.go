// Package inspect computes the diagnostic report of a PMTiles archive: basic
// tileset information, layer statistics, the per-zoom tile distribution and
// the byte breakdown of the archive sections.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/eak1mov/pmtiles-inspect/geo"
	"github.com/eak1mov/pmtiles-inspect/metadata"
	"github.com/eak1mov/pmtiles-inspect/pm"
	"github.com/eak1mov/pmtiles-inspect/pm/spec"
	"github.com/paulmach/orb"
)

var ErrMissingInput = errors.New("input archive not found")

type ExtentSource string

const (
	ExtentFromMetadata ExtentSource = "metadata"
	ExtentFromHeader   ExtentSource = "header"
)

// BasicInfo describes the tileset as a whole. Name, Generator and Format come
// from the metadata only and may be absent.
type BasicInfo struct {
	Name      metadata.Optional[string] `json:"name"`
	Generator metadata.Optional[string] `json:"generator"`
	Format    metadata.Optional[string] `json:"format"`

	MinZoom uint32 `json:"min_zoom"`
	MaxZoom uint32 `json:"max_zoom"`

	Version         uint8  `json:"version"`
	TileType        string `json:"tile_type"`
	TileCompression string `json:"tile_compression"`
	AddressedTiles  uint64 `json:"addressed_tiles"`
	TileEntries     uint64 `json:"tile_entries"`
	TileContents    uint64 `json:"tile_contents"`
	TileDataLength  uint64 `json:"tile_data_length"`

	Extent       orb.Bound    `json:"extent"`
	ExtentWidth  float64      `json:"extent_width"`
	ExtentHeight float64      `json:"extent_height"`
	Center       orb.Point    `json:"center"`
	ExtentSource ExtentSource `json:"extent_source"`
}

type Report struct {
	FilePath string                `json:"file_path"`
	FileSize uint64                `json:"file_size"`
	Info     BasicInfo             `json:"info"`
	Layers   []metadata.LayerStats `json:"layers"`

	// Zooms is only filled when zoom analysis was requested.
	Zooms      []ZoomRow  `json:"zooms,omitempty"`
	ZoomBounds *orb.Bound `json:"zoom_bounds,omitempty"`

	Sections []SectionRow `json:"sections"`
	Warnings []string     `json:"warnings,omitempty"`
}

type config struct {
	ZoomAnalysis    bool
	AnalyzerOptions []AnalyzerOption
	Bounds          *orb.Bound
	Logger          *slog.Logger
}

type Option func(*config)

// WithZoomAnalysis enables the per-zoom tile distribution. It performs one
// tile lookup per candidate slot and can take a long time on large areas.
func WithZoomAnalysis(opts ...AnalyzerOption) Option {
	return func(c *config) {
		c.ZoomAnalysis = true
		c.AnalyzerOptions = append(c.AnalyzerOptions, opts...)
	}
}

// WithBounds replaces the header bounds used by the zoom analysis.
func WithBounds(bounds orb.Bound) Option {
	return func(c *config) { c.Bounds = &bounds }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.Logger = logger }
}

// Inspect opens the archive at filePath and builds its report.
func Inspect(ctx context.Context, filePath string, opts ...Option) (*Report, error) {
	info, err := os.Stat(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrMissingInput, err)
	}
	if err != nil {
		return nil, err
	}

	config := newConfig(opts)

	reader, err := pm.NewFileReader(filePath, pm.WithReaderLogger(config.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer reader.Close()

	report, err := Build(ctx, reader, uint64(info.Size()), opts...)
	if report != nil {
		report.FilePath = filePath
	}
	return report, err
}

func newConfig(opts []Option) config {
	c := config{
		Logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Build computes the report of an already opened archive of fileSize bytes.
// Metadata problems are reported as warnings. If the zoom analysis is
// cancelled, the partial report is returned together with the error.
func Build(ctx context.Context, reader pm.Reader, fileSize uint64, opts ...Option) (*Report, error) {
	config := newConfig(opts)
	header := reader.Header()
	report := &Report{FileSize: fileSize}

	warn := func(msg string, err error) {
		config.Logger.Warn(msg, "error", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %v", msg, err))
	}

	var meta metadata.Metadata
	metadataData, err := reader.ReadMetadata()
	if err != nil {
		warn("failed to read metadata", err)
	} else if meta, err = metadata.Parse(metadataData); err != nil {
		warn("failed to decode metadata", err)
	}

	report.Info = basicInfo(meta, &header)
	report.Layers = meta.Layers
	report.Sections = Breakdown(&header, fileSize)

	if !config.ZoomAnalysis {
		return report, nil
	}

	bounds := geo.FromE7(header.MinLonE7, header.MinLatE7, header.MaxLonE7, header.MaxLatE7)
	if config.Bounds != nil {
		bounds = *config.Bounds
	}
	if err := geo.ValidateBounds(bounds); err != nil {
		warn("zoom analysis skipped", err)
		return report, nil
	}
	report.ZoomBounds = &bounds

	analyzerOptions := append([]AnalyzerOption{WithAnalyzerLogger(config.Logger)}, config.AnalyzerOptions...)
	report.Zooms, err = AnalyzeZooms(ctx, reader, bounds, report.Info.MinZoom, report.Info.MaxZoom, analyzerOptions...)
	if err != nil {
		if errors.Is(err, ErrInvalidZoomRange) {
			warn("zoom analysis skipped", err)
			return report, nil
		}
		return report, err
	}
	return report, nil
}

func basicInfo(meta metadata.Metadata, header *spec.Header) BasicInfo {
	minZoom, maxZoom := ResolveZoomRange(meta, header)
	extent, source := ResolveExtent(meta, header)

	return BasicInfo{
		Name:            meta.Name,
		Generator:       meta.Generator,
		Format:          meta.Format,
		MinZoom:         minZoom,
		MaxZoom:         maxZoom,
		Version:         header.Version(),
		TileType:        header.TileType.String(),
		TileCompression: header.TileCompression.String(),
		AddressedTiles:  header.AddressedTilesCount,
		TileEntries:     header.TileEntriesCount,
		TileContents:    header.TileContentsCount,
		TileDataLength:  header.TileDataLength,
		Extent:          extent,
		ExtentWidth:     extent.Max.Lon() - extent.Min.Lon(),
		ExtentHeight:    extent.Max.Lat() - extent.Min.Lat(),
		Center:          extent.Center(),
		ExtentSource:    source,
	}
}

// ResolveZoomRange merges the zoom range of the metadata and the header.
// Each bound prefers the metadata value and falls back to the header when the
// metadata lacks it or holds a value outside [0, 255].
func ResolveZoomRange(meta metadata.Metadata, header *spec.Header) (minZoom, maxZoom uint32) {
	pick := func(value metadata.Optional[int], fallback uint8) uint32 {
		if v, ok := value.Get(); ok && v >= 0 && v <= 255 {
			return uint32(v)
		}
		return uint32(fallback)
	}
	return pick(meta.MinZoom, header.MinZoom), pick(meta.MaxZoom, header.MaxZoom)
}

// ResolveExtent returns the geographic extent of the tileset: the metadata
// bounds when present, the header bounds otherwise.
func ResolveExtent(meta metadata.Metadata, header *spec.Header) (orb.Bound, ExtentSource) {
	if bounds, ok := meta.Bounds.Get(); ok {
		return bounds, ExtentFromMetadata
	}
	return geo.FromE7(header.MinLonE7, header.MinLatE7, header.MaxLonE7, header.MaxLatE7), ExtentFromHeader
}
