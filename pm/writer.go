package pm

import (
	"bufio"
	"cmp"
	"crypto/md5"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/eak1mov/pmtiles-inspect/pm/spec"
	"github.com/eak1mov/pmtiles-inspect/tile"
)

type Writer interface {
	io.Closer
	tile.Writer
}

type writerConfig struct {
	Metadata            []byte
	HeaderMetadata      *HeaderMetadata
	InternalCompression spec.Compression
	Logger              *slog.Logger
}

type WriterOption func(*writerConfig)

// WithMetadata sets the JSON metadata stored in the archive.
// It is compressed with the internal compression of the archive.
func WithMetadata(metadata []byte) WriterOption {
	return func(c *writerConfig) { c.Metadata = metadata }
}

// WithHeaderMetadata sets the tileset description fields of the header.
// Without it the zoom range is taken from the written tiles and the bounds
// cover the whole world.
func WithHeaderMetadata(headerMetadata HeaderMetadata) WriterOption {
	return func(c *writerConfig) { c.HeaderMetadata = &headerMetadata }
}

func WithInternalCompression(compression spec.Compression) WriterOption {
	return func(c *writerConfig) { c.InternalCompression = compression }
}

func WithLogger(logger *slog.Logger) WriterOption {
	return func(c *writerConfig) { c.Logger = logger }
}

type writer struct {
	logger *slog.Logger
	file   *os.File
	header spec.Header

	headerMetadataSet bool
	minZoom, maxZoom  uint32
	lastTileCode      uint64

	tileWriter *bufio.Writer
	tileOffset uint64

	entries   []spec.Entry
	locations map[[16]byte]uint32 // hash -> entry index
}

// NewWriter creates a new PMTiles file at filePath.
// Tiles are deduplicated by content; Finalize must be called to produce a valid archive.
func NewWriter(filePath string, opts ...WriterOption) (w Writer, err error) {
	config := writerConfig{
		InternalCompression: spec.CompressionGzip,
		Logger:              slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}

	metadata, err := spec.Compress(config.Metadata, config.InternalCompression)
	if err != nil {
		return nil, err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			file.Close()
		}
	}()

	header := spec.Header{}
	offset := uint64(spec.HeaderRootDirMaxLength)

	_, err = file.Seek(int64(offset), io.SeekStart)
	if err != nil {
		return nil, err
	}

	if len(config.Metadata) > 0 {
		_, err := file.Write(metadata)
		if err != nil {
			return nil, err
		}
		header.MetadataOffset = offset
		header.MetadataLength = uint64(len(metadata))
		offset += header.MetadataLength
	}

	header.HeaderMagic = spec.HeaderMagicV3
	header.Clustered = true
	header.InternalCompression = config.InternalCompression
	header.TileDataOffset = offset
	if config.HeaderMetadata != nil {
		config.HeaderMetadata.CopyToHeader(&header)
	}

	return &writer{
		logger:            config.Logger,
		file:              file,
		header:            header,
		headerMetadataSet: config.HeaderMetadata != nil,
		minZoom:           tile.MaxZoom,
		tileWriter:        bufio.NewWriter(file),
		tileOffset:        0,
		locations:         make(map[[16]byte]uint32),
	}, nil
}

func (w *writer) WriteTile(tileID tile.ID, tileData []byte) error {
	if len(tileData) == 0 {
		return nil
	}

	w.minZoom = min(w.minZoom, tileID.Z)
	w.maxZoom = max(w.maxZoom, tileID.Z)

	// tile data follows tile ids only if tiles come in tile id order
	tileCode := spec.EncodeTileID(tileID)
	if len(w.entries) > 0 && tileCode <= w.lastTileCode {
		w.header.Clustered = false
	}
	w.lastTileCode = tileCode

	digest := md5.Sum(tileData)
	entryIdx, exists := w.locations[digest]

	if exists {
		entry := spec.Entry{
			TileCode:  tileCode,
			Offset:    w.entries[entryIdx].Offset,
			Length:    w.entries[entryIdx].Length,
			RunLength: 1,
		}
		w.entries = append(w.entries, entry)
		return nil
	}

	entry := spec.Entry{
		TileCode:  tileCode,
		Offset:    w.tileOffset,
		Length:    uint32(len(tileData)),
		RunLength: 1,
	}

	_, err := w.tileWriter.Write(tileData)
	if err != nil {
		return err
	}

	w.tileOffset += uint64(len(tileData))

	w.locations[digest] = uint32(len(w.entries))
	w.entries = append(w.entries, entry)

	return nil
}

const worldE7 = 10000000

func (w *writer) Finalize() error {
	if w.tileWriter == nil {
		panic("pmtiles: finalize called twice")
	}

	w.logger.Debug("pmtiles: flush")
	err := w.tileWriter.Flush()
	if err != nil {
		return err
	}
	w.header.TileDataLength = w.tileOffset
	w.tileWriter = nil

	if !w.headerMetadataSet && len(w.entries) > 0 {
		w.header.MinZoom = uint8(w.minZoom)
		w.header.MaxZoom = uint8(w.maxZoom)
		w.header.CenterZoom = uint8(w.minZoom)
		w.header.MinLonE7 = -180 * worldE7
		w.header.MinLatE7 = -850511287
		w.header.MaxLonE7 = 180 * worldE7
		w.header.MaxLatE7 = 850511287
	}

	w.logger.Debug("pmtiles: sort")
	slices.SortFunc(w.entries, func(a, b spec.Entry) int {
		return cmp.Compare(a.TileCode, b.TileCode)
	})

	w.header.AddressedTilesCount = uint64(len(w.entries))
	w.header.TileContentsCount = uint64(len(w.locations))

	w.logger.Debug("pmtiles: compact")
	w.entries = spec.CompactEntries(w.entries)
	w.header.TileEntriesCount = uint64(len(w.entries))

	w.logger.Debug("pmtiles: serialize")
	rootBytes, leavesBytes := spec.SerializeAll(w.entries, w.header.InternalCompression)

	w.logger.Debug("pmtiles: write leaves")
	leavesOffset, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	_, err = w.file.Write(leavesBytes)
	if err != nil {
		return err
	}
	w.header.LeafDirectoryOffset = uint64(leavesOffset)
	w.header.LeafDirectoryLength = uint64(len(leavesBytes))

	w.logger.Debug("pmtiles: write root")
	_, err = w.file.Seek(spec.RootDirOffset, io.SeekStart)
	if err != nil {
		return err
	}
	_, err = w.file.Write(rootBytes)
	if err != nil {
		return err
	}
	w.header.RootOffset = spec.RootDirOffset
	w.header.RootLength = uint64(len(rootBytes))

	w.logger.Debug("pmtiles: write header")
	_, err = w.file.Seek(0, io.SeekStart)
	if err != nil {
		return err
	}
	headerData := spec.SerializeHeader(&w.header)
	_, err = w.file.Write(headerData)
	if err != nil {
		return err
	}

	w.logger.Debug("pmtiles: close")
	err = w.file.Close()
	if err != nil {
		return err
	}
	w.file = nil

	w.logger.Debug("pmtiles: done!", "addressed", w.header.AddressedTilesCount, "contents", w.header.TileContentsCount)
	return nil
}

func (w *writer) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}
