package inspect

import (
	"context"
	"fmt"

	"github.com/eak1mov/pmtiles-inspect/pm"
	"github.com/eak1mov/pmtiles-inspect/pm/spec"
	"github.com/eak1mov/pmtiles-inspect/tile"
)

// Verification is the result of walking every directory entry of an archive.
type Verification struct {
	AddressedTiles uint64   `json:"addressed_tiles"`
	TileEntries    uint64   `json:"tile_entries"`
	TileContents   uint64   `json:"tile_contents"`
	MinZoom        uint32   `json:"min_zoom"`
	MaxZoom        uint32   `json:"max_zoom"`
	Problems       []string `json:"problems,omitempty"`
}

func (v *Verification) Valid() bool {
	return len(v.Problems) == 0
}

// Verify walks all directories of the archive and checks them against the
// header: entry counts, zoom range, tile order and tile data placement.
// Inconsistencies are collected in Problems; only I/O and decoding faults
// and cancellation are returned as errors. progress, if not nil, is called
// once per addressed tile.
func Verify(ctx context.Context, reader pm.Reader, progress func()) (*Verification, error) {
	header := reader.Header()
	dataStart := header.TileDataOffset
	dataEnd := header.TileDataOffset + header.TileDataLength

	v := &Verification{MinZoom: tile.MaxZoom}
	contents := make(map[uint64]struct{})
	nextOffset := dataStart

	var (
		prevCode     uint64
		prevLocation tile.Location
		outOfRange   uint64
		outOfOrder   uint64
		unclustered  uint64
	)
	err := reader.VisitLocations(func(tileID tile.ID, location tile.Location) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if progress != nil {
			progress()
		}

		code := spec.EncodeTileID(tileID)
		if v.AddressedTiles > 0 && code <= prevCode {
			outOfOrder++
		}
		if v.AddressedTiles == 0 || code != prevCode+1 || location != prevLocation {
			v.TileEntries++
		}
		v.AddressedTiles++
		v.MinZoom = min(v.MinZoom, tileID.Z)
		v.MaxZoom = max(v.MaxZoom, tileID.Z)

		if location.Offset < dataStart || location.Offset+location.Length > dataEnd {
			outOfRange++
		}
		if _, seen := contents[location.Offset]; !seen {
			contents[location.Offset] = struct{}{}
			if header.Clustered && location.Offset != nextOffset {
				unclustered++
			}
			nextOffset = location.Offset + location.Length
		}

		prevCode, prevLocation = code, location
		return nil
	})
	if err != nil {
		return nil, err
	}
	v.TileContents = uint64(len(contents))

	problemf := func(format string, args ...any) {
		v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
	}
	if v.AddressedTiles != header.AddressedTilesCount {
		problemf("header addressed tiles count is %d, but %d tiles are addressed", header.AddressedTilesCount, v.AddressedTiles)
	}
	if v.TileEntries != header.TileEntriesCount {
		problemf("header tile entries count is %d, but %d entries found", header.TileEntriesCount, v.TileEntries)
	}
	if v.TileContents != header.TileContentsCount {
		problemf("header tile contents count is %d, but %d distinct contents found", header.TileContentsCount, v.TileContents)
	}
	if v.AddressedTiles == 0 {
		v.MinZoom = 0
	} else {
		if v.MinZoom != uint32(header.MinZoom) {
			problemf("header min zoom is %d, but the lowest tile zoom is %d", header.MinZoom, v.MinZoom)
		}
		if v.MaxZoom != uint32(header.MaxZoom) {
			problemf("header max zoom is %d, but the highest tile zoom is %d", header.MaxZoom, v.MaxZoom)
		}
	}
	if header.CenterZoom < header.MinZoom || header.CenterZoom > header.MaxZoom {
		problemf("header center zoom %d is outside of zoom range %d-%d", header.CenterZoom, header.MinZoom, header.MaxZoom)
	}
	if outOfOrder > 0 {
		problemf("%d entries are not sorted by tile id", outOfOrder)
	}
	if outOfRange > 0 {
		problemf("%d tiles point outside of the tile data section", outOfRange)
	}
	if unclustered > 0 {
		problemf("%d tile contents are out of order in a clustered archive", unclustered)
	}
	return v, nil
}
