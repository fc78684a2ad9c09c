package inspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/eak1mov/pmtiles-inspect/geo"
	"github.com/eak1mov/pmtiles-inspect/tile"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidZoomRange = errors.New("invalid zoom range")

// ZoomRow is the tile distribution of a single zoom level inside the
// analyzed bounds.
type ZoomRow struct {
	Zoom        uint32  `json:"zoom"`
	Theoretical uint64  `json:"theoretical"`
	Actual      uint64  `json:"actual"`
	Failed      uint64  `json:"failed"`
	Density     float64 `json:"density"`
	TotalSize   uint64  `json:"total_size"`
	AvgSize     float64 `json:"avg_size"`
}

type analyzerConfig struct {
	Concurrency int
	Logger      *slog.Logger
	Progress    func()
	Planned     func(lookups uint64)
}

type AnalyzerOption func(*analyzerConfig)

// WithConcurrency sets the number of tile lookups run in parallel within a
// zoom level. Values below 1 mean sequential lookups.
func WithConcurrency(n int) AnalyzerOption {
	return func(c *analyzerConfig) { c.Concurrency = n }
}

func WithAnalyzerLogger(logger *slog.Logger) AnalyzerOption {
	return func(c *analyzerConfig) { c.Logger = logger }
}

// WithProgress registers a callback invoked after every finished lookup.
// It may be called from several goroutines at once.
func WithProgress(progress func()) AnalyzerOption {
	return func(c *analyzerConfig) { c.Progress = progress }
}

// WithPlanned registers a callback receiving the total number of lookups
// before the analysis starts.
func WithPlanned(planned func(lookups uint64)) AnalyzerOption {
	return func(c *analyzerConfig) { c.Planned = planned }
}

// PlanZooms returns the candidate tile range of every zoom level in
// [minZoom, maxZoom], in increasing zoom order.
func PlanZooms(bounds orb.Bound, minZoom, maxZoom uint32) ([]tile.Range, error) {
	if err := geo.ValidateBounds(bounds); err != nil {
		return nil, err
	}
	if minZoom > maxZoom || maxZoom > tile.MaxZoom {
		return nil, fmt.Errorf("%w: %d-%d", ErrInvalidZoomRange, minZoom, maxZoom)
	}
	ranges := make([]tile.Range, 0, maxZoom-minZoom+1)
	for z := minZoom; z <= maxZoom; z++ {
		ranges = append(ranges, geo.TileRange(bounds, z))
	}
	return ranges, nil
}

// AnalyzeZooms looks up every tile slot covering bounds for each zoom level in
// [minZoom, maxZoom] and reports how many are present and how large they are.
// Missing tiles and failed lookups count as absent.
//
// The cost is one lookup per slot, which grows fourfold with each zoom level.
// If ctx is cancelled, the rows of the zoom levels completed so far are
// returned along with the context error.
func AnalyzeZooms(ctx context.Context, reader tile.Reader, bounds orb.Bound, minZoom, maxZoom uint32, opts ...AnalyzerOption) ([]ZoomRow, error) {
	config := analyzerConfig{
		Concurrency: 1,
		Logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}

	ranges, err := PlanZooms(bounds, minZoom, maxZoom)
	if err != nil {
		return nil, err
	}
	if config.Planned != nil {
		var lookups uint64
		for _, r := range ranges {
			lookups += r.Count()
		}
		config.Planned(lookups)
	}

	rows := make([]ZoomRow, 0, len(ranges))
	for _, r := range ranges {
		row, err := analyzeZoom(ctx, reader, r, &config)
		if err != nil {
			return rows, fmt.Errorf("zoom analysis stopped at zoom %d: %w", r.Z, err)
		}
		config.Logger.Debug("zoom analyzed",
			"zoom", row.Zoom, "theoretical", row.Theoretical, "actual", row.Actual, "failed", row.Failed)
		rows = append(rows, row)
	}
	return rows, nil
}

func analyzeZoom(ctx context.Context, reader tile.Reader, r tile.Range, config *analyzerConfig) (ZoomRow, error) {
	var actual, failed, totalSize atomic.Uint64

	lookup := func(tileID tile.ID) {
		if config.Progress != nil {
			defer config.Progress()
		}
		tileData, err := reader.ReadTile(tileID)
		if err != nil {
			failed.Add(1)
			config.Logger.Debug("tile lookup failed", "tile", tileID, "error", err)
			return
		}
		if len(tileData) > 0 {
			actual.Add(1)
			totalSize.Add(uint64(len(tileData)))
		}
	}

	var g errgroup.Group
	g.SetLimit(max(config.Concurrency, 1))
	for tileID := range r.IDs() {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() == nil {
				lookup(tileID)
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return ZoomRow{}, err
	}

	row := ZoomRow{
		Zoom:        r.Z,
		Theoretical: r.Count(),
		Actual:      actual.Load(),
		Failed:      failed.Load(),
		TotalSize:   totalSize.Load(),
	}
	if row.Theoretical > 0 {
		row.Density = float64(row.Actual) / float64(row.Theoretical)
	}
	if row.Actual > 0 {
		row.AvgSize = float64(row.TotalSize) / float64(row.Actual)
	}
	return row, nil
}
