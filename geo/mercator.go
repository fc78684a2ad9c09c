// Package geo converts geographic coordinates to slippy-map tile indices
// under the spherical Web Mercator projection.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/eak1mov/pmtiles-inspect/tile"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// E7 is the scale of the fixed-point degrees stored in archive headers.
const E7 = 10000000.0

// MaxLatitude is the northern edge of the Web Mercator world.
const MaxLatitude = 85.0511287798066

var ErrInvalidBounds = errors.New("invalid bounds")

// TileIndex returns the tile column and row containing the point at zoom.
// The result is not clamped to the tile grid. Latitude must lie strictly
// between -90 and 90; callers are expected to check it with ValidateBounds.
func TileIndex(lat, lon float64, zoom uint32) (x, y int64) {
	n := math.Exp2(float64(zoom))
	latRad := lat * math.Pi / 180
	x = int64(math.Floor((lon + 180) / 360 * n))
	y = int64(math.Floor((1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n))
	return x, y
}

// TileBound returns the geographic extent of a tile.
func TileBound(tileID tile.ID) orb.Bound {
	return maptile.New(tileID.X, tileID.Y, maptile.Zoom(tileID.Z)).Bound()
}

// TileRange returns the tiles covering bounds at zoom. The southwest corner
// gives the minimum column and maximum row, the northeast corner the maximum
// column and minimum row. Indices are clamped to the tile grid, so the whole
// world at zoom 0 is a single tile.
func TileRange(bounds orb.Bound, zoom uint32) tile.Range {
	minX, maxY := TileIndex(bounds.Min.Lat(), bounds.Min.Lon(), zoom)
	maxX, minY := TileIndex(bounds.Max.Lat(), bounds.Max.Lon(), zoom)

	last := int64(1)<<zoom - 1
	clamp := func(v int64) uint32 {
		return uint32(min(max(v, 0), last))
	}
	return tile.Range{
		Z:    zoom,
		MinX: clamp(minX),
		MinY: clamp(minY),
		MaxX: clamp(maxX),
		MaxY: clamp(maxY),
	}
}

// FromE7 builds bounds from header fixed-point degrees.
func FromE7(minLonE7, minLatE7, maxLonE7, maxLatE7 int32) orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(minLonE7) / E7, float64(minLatE7) / E7},
		Max: orb.Point{float64(maxLonE7) / E7, float64(maxLatE7) / E7},
	}
}

// ParseBounds parses "minLon,minLat,maxLon,maxLat".
func ParseBounds(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("%w: %q: want 4 comma-separated values", ErrInvalidBounds, s)
	}
	var values [4]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("%w: %q: %w", ErrInvalidBounds, s, err)
		}
		values[i] = v
	}
	return orb.Bound{
		Min: orb.Point{values[0], values[1]},
		Max: orb.Point{values[2], values[3]},
	}, nil
}

// ValidateBounds checks that bounds can be projected: latitudes strictly
// inside (-90, 90), longitudes inside [-180, 180] and min <= max.
func ValidateBounds(b orb.Bound) error {
	for _, v := range []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate in %v", ErrInvalidBounds, b)
		}
	}
	if b.Min.Lat() <= -90 || b.Max.Lat() >= 90 {
		return fmt.Errorf("%w: latitude must be within (-90, 90): %v", ErrInvalidBounds, b)
	}
	if b.Min.Lon() < -180 || b.Max.Lon() > 180 {
		return fmt.Errorf("%w: longitude must be within [-180, 180]: %v", ErrInvalidBounds, b)
	}
	if b.Min.Lon() > b.Max.Lon() || b.Min.Lat() > b.Max.Lat() {
		return fmt.Errorf("%w: min corner exceeds max corner: %v", ErrInvalidBounds, b)
	}
	return nil
}
