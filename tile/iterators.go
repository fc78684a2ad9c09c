package tile

import (
	"errors"
	"iter"
)

var errVisitCancelled = errors.New("visit cancelled")

// IterTiles returns an iterator over all tiles in the tileset.
// It yields tile IDs and their data. Iteration may panic on unrecoverable errors.
func IterTiles(r Visitor) iter.Seq2[ID, []byte] {
	return func(yield func(ID, []byte) bool) {
		err := r.VisitTiles(func(tileID ID, tileData []byte) error {
			if !yield(tileID, tileData) {
				return errVisitCancelled
			}
			return nil
		})
		if err != nil && err != errVisitCancelled {
			panic(err)
		}
	}
}

func IterLocations(r LocationVisitor) iter.Seq2[ID, Location] {
	return func(yield func(ID, Location) bool) {
		err := r.VisitLocations(func(tileID ID, location Location) error {
			if !yield(tileID, location) {
				return errVisitCancelled
			}
			return nil
		})
		if err != nil && err != errVisitCancelled {
			panic(err)
		}
	}
}

// Range is an inclusive rectangle of tiles at a single zoom level.
// A Range with MinX > MaxX or MinY > MaxY is empty.
type Range struct {
	Z    uint32
	MinX uint32
	MinY uint32
	MaxX uint32
	MaxY uint32
}

// Count returns the number of tile slots covered by the range.
func (r Range) Count() uint64 {
	if r.MinX > r.MaxX || r.MinY > r.MaxY {
		return 0
	}
	return uint64(r.MaxX-r.MinX+1) * uint64(r.MaxY-r.MinY+1)
}

// IDs returns a finite sequence of the tile IDs inside the range, row by row.
// The sequence holds no state and may be iterated any number of times.
func (r Range) IDs() iter.Seq[ID] {
	return func(yield func(ID) bool) {
		if r.Count() == 0 {
			return
		}
		for y := r.MinY; ; y++ {
			for x := r.MinX; ; x++ {
				if !yield(ID{X: x, Y: y, Z: r.Z}) {
					return
				}
				if x == r.MaxX {
					break
				}
			}
			if y == r.MaxY {
				break
			}
		}
	}
}
