package inspect_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/eak1mov/pmtiles-inspect/geo"
	"github.com/eak1mov/pmtiles-inspect/inspect"
	"github.com/eak1mov/pmtiles-inspect/internal"
	"github.com/eak1mov/pmtiles-inspect/pm"
	"github.com/eak1mov/pmtiles-inspect/tile"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

var worldBounds = orb.Bound{
	Min: orb.Point{-180, -geo.MaxLatitude},
	Max: orb.Point{180, geo.MaxLatitude},
}

// fakeReader serves tiles from a map and fails lookups listed in failing.
type fakeReader struct {
	tiles   map[tile.ID][]byte
	failing map[tile.ID]bool
	onRead  func(tile.ID)
	reads   atomic.Uint64
}

func (r *fakeReader) ReadTile(tileID tile.ID) ([]byte, error) {
	r.reads.Add(1)
	if r.onRead != nil {
		r.onRead(tileID)
	}
	if r.failing[tileID] {
		return nil, fmt.Errorf("broken tile %v", tileID)
	}
	return r.tiles[tileID], nil
}

// innerBounds returns the bounds covering tiles from..to at a zoom level,
// shrunk so that no neighbour tile is touched.
func innerBounds(from, to tile.ID) orb.Bound {
	const eps = 1e-7
	b := geo.TileBound(from).Union(geo.TileBound(to))
	return orb.Bound{
		Min: orb.Point{b.Min.Lon() + eps, b.Min.Lat() + eps},
		Max: orb.Point{b.Max.Lon() - eps, b.Max.Lat() - eps},
	}
}

func openArchive(t *testing.T, tiles map[tile.ID][]byte, opts ...pm.WriterOption) pm.Reader {
	t.Helper()
	reader, err := pm.NewFileReader(internal.WriteArchive(t, tiles, opts...))
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })
	return reader
}

func TestAnalyzeZoomsWorldSingleTile(t *testing.T) {
	reader := openArchive(t, map[tile.ID][]byte{{Z: 0}: []byte("world")})

	rows, err := inspect.AnalyzeZooms(context.Background(), reader, worldBounds, 0, 0)
	require.NoError(t, err)

	want := []inspect.ZoomRow{
		{Zoom: 0, Theoretical: 1, Actual: 1, Density: 1, TotalSize: 5, AvgSize: 5},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("AnalyzeZooms mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeZoomsPartialCoverage(t *testing.T) {
	tiles := map[tile.ID][]byte{
		{Z: 10, X: 500, Y: 300}:   make([]byte, 10),
		{Z: 10, X: 501, Y: 300}:   make([]byte, 20),
		{Z: 10, X: 500, Y: 301}:   make([]byte, 30),
		{Z: 12, X: 2001, Y: 1201}: make([]byte, 7),
		{Z: 10, X: 499, Y: 300}:   make([]byte, 99), // outside the bounds
	}
	reader := openArchive(t, tiles)
	bounds := innerBounds(tile.ID{Z: 10, X: 500, Y: 300}, tile.ID{Z: 10, X: 501, Y: 301})

	rows, err := inspect.AnalyzeZooms(context.Background(), reader, bounds, 10, 12)
	require.NoError(t, err)

	want := []inspect.ZoomRow{
		{Zoom: 10, Theoretical: 4, Actual: 3, Density: 0.75, TotalSize: 60, AvgSize: 20},
		{Zoom: 11, Theoretical: 16},
		{Zoom: 12, Theoretical: 64, Actual: 1, Density: 1.0 / 64, TotalSize: 7, AvgSize: 7},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("AnalyzeZooms mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeZoomsFailedLookup(t *testing.T) {
	r := tile.Range{Z: 3, MinX: 2, MinY: 2, MaxX: 3, MaxY: 3}
	reader := &fakeReader{
		tiles:   internal.RangeTiles(r, nil),
		failing: map[tile.ID]bool{{Z: 3, X: 3, Y: 2}: true},
	}
	bounds := innerBounds(tile.ID{Z: 3, X: 2, Y: 2}, tile.ID{Z: 3, X: 3, Y: 3})

	rows, err := inspect.AnalyzeZooms(context.Background(), reader, bounds, 3, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	require.Equal(t, uint64(4), row.Theoretical)
	require.Equal(t, uint64(3), row.Actual)
	require.Equal(t, uint64(1), row.Failed)
	require.InDelta(t, 0.75, row.Density, 1e-12)
}

func TestAnalyzeZoomsProperties(t *testing.T) {
	reader := &fakeReader{tiles: make(map[tile.ID][]byte)}
	for z := range uint32(7) {
		keep := func(tileID tile.ID) bool { return (tileID.X+tileID.Y)%3 == 0 }
		for tileID, data := range internal.RangeTiles(tile.Range{Z: z, MaxX: 1<<z - 1, MaxY: 1<<z - 1}, keep) {
			reader.tiles[tileID] = data
		}
	}

	for _, bounds := range []orb.Bound{
		worldBounds,
		{Min: orb.Point{-0.1, 51.3}, Max: orb.Point{0.2, 51.7}},
		{Min: orb.Point{139.5, 35.5}, Max: orb.Point{139.9, 35.8}},
		{Min: orb.Point{-74.3, -55.1}, Max: orb.Point{-53.6, -21.7}},
		{Min: orb.Point{10, 10}, Max: orb.Point{10, 10}},
	} {
		t.Run(fmt.Sprint(bounds), func(t *testing.T) {
			rows, err := inspect.AnalyzeZooms(context.Background(), reader, bounds, 0, 6)
			require.NoError(t, err)
			require.Len(t, rows, 7)

			for i, row := range rows {
				require.Equal(t, uint32(i), row.Zoom)
				require.GreaterOrEqual(t, row.Theoretical, uint64(1))
				require.LessOrEqual(t, row.Actual, row.Theoretical)
				require.GreaterOrEqual(t, row.Density, 0.0)
				require.LessOrEqual(t, row.Density, 1.0)
				if i > 0 {
					require.GreaterOrEqual(t, row.Theoretical, rows[i-1].Theoretical)
				}
			}
		})
	}
}

func TestAnalyzeZoomsConcurrency(t *testing.T) {
	tiles := make(map[tile.ID][]byte)
	for z := range uint32(6) {
		keep := func(tileID tile.ID) bool { return tileID.X%2 == 0 }
		for tileID, data := range internal.RangeTiles(tile.Range{Z: z, MaxX: 1<<z - 1, MaxY: 1<<z - 1}, keep) {
			tiles[tileID] = data
		}
	}
	reader := openArchive(t, tiles)

	sequential, err := inspect.AnalyzeZooms(context.Background(), reader, worldBounds, 0, 5)
	require.NoError(t, err)

	var progress atomic.Uint64
	var planned uint64
	parallel, err := inspect.AnalyzeZooms(context.Background(), reader, worldBounds, 0, 5,
		inspect.WithConcurrency(8),
		inspect.WithPlanned(func(lookups uint64) { planned = lookups }),
		inspect.WithProgress(func() { progress.Add(1) }))
	require.NoError(t, err)

	if diff := cmp.Diff(sequential, parallel); diff != "" {
		t.Errorf("AnalyzeZooms mismatch (-sequential +parallel):\n%s", diff)
	}
	// 1 + 4 + 16 + 64 + 256 + 1024
	require.Equal(t, uint64(1365), progress.Load())
	require.Equal(t, planned, progress.Load())
}

func TestAnalyzeZoomsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		tiles: map[tile.ID][]byte{{Z: 0}: []byte("root")},
		onRead: func(tileID tile.ID) {
			if tileID.Z == 2 {
				cancel()
			}
		},
	}

	rows, err := inspect.AnalyzeZooms(ctx, reader, worldBounds, 0, 4)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, rows, 2)
	require.Equal(t, uint64(1), rows[0].Actual)
	require.Equal(t, uint64(1+4+1), reader.reads.Load())
}

func TestAnalyzeZoomsInvalidInput(t *testing.T) {
	reader := &fakeReader{}
	for _, tc := range []struct {
		Name    string
		Bounds  orb.Bound
		MinZoom uint32
		MaxZoom uint32
		Err     error
	}{
		{Name: "Pole", Bounds: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 90}}, MaxZoom: 2, Err: geo.ErrInvalidBounds},
		{Name: "Inverted", Bounds: orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{0, 0}}, MaxZoom: 2, Err: geo.ErrInvalidBounds},
		{Name: "ZoomOrder", Bounds: worldBounds, MinZoom: 5, MaxZoom: 4, Err: inspect.ErrInvalidZoomRange},
		{Name: "ZoomLimit", Bounds: worldBounds, MaxZoom: 32, Err: inspect.ErrInvalidZoomRange},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			rows, err := inspect.AnalyzeZooms(context.Background(), reader, tc.Bounds, tc.MinZoom, tc.MaxZoom)
			if !errors.Is(err, tc.Err) {
				t.Fatalf("AnalyzeZooms error = %v, want %v", err, tc.Err)
			}
			require.Empty(t, rows)
		})
	}
	require.Zero(t, reader.reads.Load())
}

func TestPlanZooms(t *testing.T) {
	ranges, err := inspect.PlanZooms(worldBounds, 0, 3)
	require.NoError(t, err)

	var total uint64
	for i, r := range ranges {
		require.Equal(t, uint32(i), r.Z)
		total += r.Count()
	}
	require.Equal(t, uint64(1+4+16+64), total)
}
