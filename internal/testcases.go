// Package internal holds helpers shared by package tests.
package internal

import (
	"cmp"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"testing"

	"github.com/eak1mov/pmtiles-inspect/pm"
	"github.com/eak1mov/pmtiles-inspect/pm/spec"
	"github.com/eak1mov/pmtiles-inspect/tile"
)

// WriteArchive writes tiles into a new PMTiles file inside t.TempDir and
// returns its path.
func WriteArchive(t testing.TB, tiles map[tile.ID][]byte, opts ...pm.WriterOption) string {
	t.Helper()

	filePath := filepath.Join(t.TempDir(), "tiles.pmtiles")

	writer, err := pm.NewWriter(filePath, opts...)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	defer writer.Close()

	// tile id order keeps the archive clustered
	tileIDs := slices.SortedFunc(maps.Keys(tiles), func(a, b tile.ID) int {
		return cmp.Compare(spec.EncodeTileID(a), spec.EncodeTileID(b))
	})
	for _, tileID := range tileIDs {
		if err := writer.WriteTile(tileID, tiles[tileID]); err != nil {
			t.Fatalf("WriteTile(%v) failed: %v", tileID, err)
		}
	}

	if err := writer.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	return filePath
}

// RangeTiles returns distinct tile data for every tile in r accepted by keep.
func RangeTiles(r tile.Range, keep func(tile.ID) bool) map[tile.ID][]byte {
	tiles := make(map[tile.ID][]byte)
	for tileID := range r.IDs() {
		if keep == nil || keep(tileID) {
			tiles[tileID] = fmt.Appendf(nil, "tile-%v", tileID)
		}
	}
	return tiles
}
