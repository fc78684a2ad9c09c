package pm_test

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"testing"

	"github.com/eak1mov/pmtiles-inspect/internal"
	"github.com/eak1mov/pmtiles-inspect/pm"
	"github.com/eak1mov/pmtiles-inspect/pm/spec"
	"github.com/eak1mov/pmtiles-inspect/tile"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func fullPyramid(maxZoom uint32) map[tile.ID][]byte {
	tiles := make(map[tile.ID][]byte)
	for z := range maxZoom + 1 {
		r := tile.Range{Z: z, MaxX: 1<<z - 1, MaxY: 1<<z - 1}
		maps.Copy(tiles, internal.RangeTiles(r, nil))
	}
	return tiles
}

func TestWriterReader(t *testing.T) {
	for _, tc := range []struct {
		Name        string
		Tiles       map[tile.ID][]byte
		Compression spec.Compression
	}{
		{Name: "Empty", Tiles: map[tile.ID][]byte{}, Compression: spec.CompressionGzip},
		{Name: "Single", Tiles: map[tile.ID][]byte{{X: 0, Y: 0, Z: 0}: []byte("root")}, Compression: spec.CompressionGzip},
		{Name: "Full5", Tiles: fullPyramid(5), Compression: spec.CompressionGzip},
		{Name: "Full8Zstd", Tiles: fullPyramid(8), Compression: spec.CompressionZstd},
		{Name: "Full8None", Tiles: fullPyramid(8), Compression: spec.CompressionNone},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()

			writerMetadata := []byte(`{"foo":"bar"}`)
			filePath := internal.WriteArchive(t, tc.Tiles,
				pm.WithMetadata(writerMetadata),
				pm.WithInternalCompression(tc.Compression))

			reader, err := pm.NewFileReader(filePath)
			if err != nil {
				t.Fatalf("NewFileReader failed: %v", err)
			}
			defer reader.Close()

			readerMetadata, err := reader.ReadMetadata()
			if err != nil {
				t.Fatalf("ReadMetadata failed: %v", err)
			}
			if got, want := readerMetadata, writerMetadata; !cmp.Equal(got, want) {
				t.Errorf("ReadMetadata = %q, want = %q", got, want)
			}

			header := reader.Header()
			if got, want := header.AddressedTilesCount, uint64(len(tc.Tiles)); got != want {
				t.Errorf("AddressedTilesCount = %v, want = %v", got, want)
			}
			if got, want := header.InternalCompression, tc.Compression; got != want {
				t.Errorf("InternalCompression = %v, want = %v", got, want)
			}

			if got, want := maps.Collect(tile.IterTiles(reader)), tc.Tiles; !cmp.Equal(got, want) {
				t.Errorf("VisitTiles data mismatch")
			}

			dataEnd := header.TileDataOffset + header.TileDataLength
			for tileID, location := range tile.IterLocations(reader) {
				if location.Offset < header.TileDataOffset || location.Offset+location.Length > dataEnd {
					t.Fatalf("location of %v = %+v, outside of tile data", tileID, location)
				}
				if got, want := location.Length, uint64(len(tc.Tiles[tileID])); got != want {
					t.Fatalf("location length of %v = %v, want = %v", tileID, got, want)
				}
			}

			for tileID, want := range tc.Tiles {
				got, err := reader.ReadTile(tileID)
				if err != nil {
					t.Fatalf("ReadTile(%v) failed: %v", tileID, err)
				}
				if !cmp.Equal(got, want) {
					t.Fatalf("ReadTile(%v) = %q, want = %q", tileID, got, want)
				}
			}
		})
	}
}

func TestReaderMissingTile(t *testing.T) {
	filePath := internal.WriteArchive(t, map[tile.ID][]byte{
		{X: 1, Y: 1, Z: 1}: []byte("present"),
	})

	reader, err := pm.NewFileReader(filePath)
	require.NoError(t, err)
	defer reader.Close()

	for _, tileID := range []tile.ID{
		{X: 0, Y: 0, Z: 1},
		{X: 5, Y: 5, Z: 3},
		{X: 4, Y: 0, Z: 1}, // outside of the grid
	} {
		tileData, err := reader.ReadTile(tileID)
		require.NoError(t, err, "ReadTile(%v)", tileID)
		require.Empty(t, tileData, "ReadTile(%v)", tileID)
	}

	metadata, err := reader.ReadMetadata()
	require.NoError(t, err)
	require.Nil(t, metadata)
}

func TestWriterHeaderCounts(t *testing.T) {
	tiles := map[tile.ID][]byte{
		{X: 0, Y: 0, Z: 2}: []byte("same"),
		{X: 1, Y: 0, Z: 2}: []byte("same"),
		{X: 2, Y: 0, Z: 2}: []byte("same"),
		{X: 3, Y: 3, Z: 3}: []byte("other"),
	}
	filePath := internal.WriteArchive(t, tiles)

	reader, err := pm.NewFileReader(filePath)
	require.NoError(t, err)
	defer reader.Close()

	header := reader.Header()
	require.Equal(t, uint8(3), header.Version())
	require.Equal(t, uint64(4), header.AddressedTilesCount)
	require.Equal(t, uint64(2), header.TileContentsCount)
	require.Equal(t, uint64(len("same")+len("other")), header.TileDataLength)
	require.Equal(t, uint8(2), header.MinZoom)
	require.Equal(t, uint8(3), header.MaxZoom)
	require.Equal(t, uint8(2), header.CenterZoom)
	require.True(t, header.Clustered)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	require.Equal(t, uint64(info.Size()), header.TileDataOffset+header.TileDataLength+header.LeafDirectoryLength)
}

func TestWriterUnclustered(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "tiles.pmtiles")
	writer, err := pm.NewWriter(filePath)
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, writer.WriteTile(tile.ID{X: 1, Y: 1, Z: 1}, []byte("b")))
	require.NoError(t, writer.WriteTile(tile.ID{X: 0, Y: 0, Z: 1}, []byte("a")))
	require.NoError(t, writer.Finalize())

	reader, err := pm.NewFileReader(filePath)
	require.NoError(t, err)
	defer reader.Close()
	require.False(t, reader.Header().Clustered)

	tileData, err := reader.ReadTile(tile.ID{X: 0, Y: 0, Z: 1})
	require.NoError(t, err)
	require.Equal(t, []byte("a"), tileData)
}

func TestWriterHeaderMetadata(t *testing.T) {
	headerMetadata := pm.HeaderMetadata{
		TileType: spec.TileTypeMvt,
		MinZoom:  4,
		MaxZoom:  9,
		MinLonE7: 1390000000,
		MinLatE7: 350000000,
		MaxLonE7: 1400000000,
		MaxLatE7: 360000000,
	}
	filePath := internal.WriteArchive(t, map[tile.ID][]byte{{X: 0, Y: 0, Z: 0}: []byte("x")},
		pm.WithHeaderMetadata(headerMetadata))

	reader, err := pm.NewFileReader(filePath)
	require.NoError(t, err)
	defer reader.Close()

	header := reader.Header()
	require.Equal(t, headerMetadata.MinZoom, header.MinZoom)
	require.Equal(t, headerMetadata.MaxLatE7, header.MaxLatE7)
	require.Equal(t, spec.TileTypeMvt, header.TileType)
}

func TestNewReaderErrors(t *testing.T) {
	_, err := pm.NewFileReader("does-not-exist.pmtiles")
	require.ErrorIs(t, err, os.ErrNotExist)

	failing := func(offset, length uint64) ([]byte, error) {
		return nil, errors.New("boom")
	}
	_, err = pm.NewReader(failing)
	require.ErrorIs(t, err, spec.ErrInvalidHeader)

	garbage := func(offset, length uint64) ([]byte, error) {
		return make([]byte, length), nil
	}
	_, err = pm.NewReader(garbage)
	require.ErrorIs(t, err, spec.ErrInvalidHeader)
}

func TestReaderWithoutCache(t *testing.T) {
	tiles := fullPyramid(4)
	filePath := internal.WriteArchive(t, tiles)

	data, err := os.ReadFile(filePath)
	require.NoError(t, err)

	reads := 0
	fileAccess := func(offset, length uint64) ([]byte, error) {
		reads++
		if offset+length > uint64(len(data)) {
			return nil, fmt.Errorf("read out of range: %d+%d", offset, length)
		}
		return data[offset : offset+length], nil
	}

	reader, err := pm.NewReader(fileAccess, pm.WithDirectoryCache(0))
	require.NoError(t, err)

	tileID := tile.ID{X: 3, Y: 2, Z: 4}
	for range 3 {
		tileData, err := reader.ReadTile(tileID)
		require.NoError(t, err)
		require.Equal(t, tiles[tileID], tileData)
	}
	// header + (root directory + tile) per lookup
	require.Equal(t, 1+3*2, reads)

	cached, err := pm.NewReader(fileAccess)
	require.NoError(t, err)
	reads = 0
	for range 3 {
		_, err := cached.ReadTile(tileID)
		require.NoError(t, err)
	}
	// root directory once + tile per lookup
	require.Equal(t, 1+3, reads)
}
