package pm

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/eak1mov/pmtiles-inspect/pm/spec"
	"github.com/eak1mov/pmtiles-inspect/tile"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Reader gives access to a PMTiles archive. All methods except Close are
// safe for concurrent use.
type Reader interface {
	io.Closer
	tile.Reader
	tile.Visitor
	tile.LocationReader
	tile.LocationVisitor

	// Header returns a copy of the archive header.
	Header() spec.Header

	// ReadMetadata returns the decompressed metadata section, or nil if the
	// archive has none.
	ReadMetadata() ([]byte, error)
}

type FileAccessFunc = func(offset, length uint64) ([]byte, error)

// DefaultDirectoryCacheSize is the number of decoded directories kept by a reader.
const DefaultDirectoryCacheSize = 64

type readerConfig struct {
	Logger             *slog.Logger
	DirectoryCacheSize int
}

type ReaderOption func(*readerConfig)

func WithReaderLogger(logger *slog.Logger) ReaderOption {
	return func(c *readerConfig) { c.Logger = logger }
}

// WithDirectoryCache sets the number of decoded directories kept in memory.
// Zero disables the cache.
func WithDirectoryCache(size int) ReaderOption {
	return func(c *readerConfig) { c.DirectoryCacheSize = size }
}

type reader struct {
	fileAccess FileAccessFunc
	fileCloser func() error
	header     *spec.Header
	logger     *slog.Logger
	dirCache   *lru.Cache[uint64, []spec.Entry] // directory offset -> entries
}

// NewFileReader opens the archive at filePath and reads its header.
// The returned Reader must be closed after use.
func NewFileReader(filePath string, opts ...ReaderOption) (Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	fileAccess := func(offset uint64, length uint64) ([]byte, error) {
		buffer := make([]byte, length)
		if _, err := file.ReadAt(buffer, int64(offset)); err != nil {
			return nil, err
		}
		return buffer, nil
	}
	r, err := newReader(fileAccess, file.Close, opts)
	if err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// NewReader creates a Reader on top of an arbitrary byte-range accessor.
func NewReader(fileAccess FileAccessFunc, opts ...ReaderOption) (Reader, error) {
	return newReader(fileAccess, func() error { return nil }, opts)
}

func newReader(fileAccess FileAccessFunc, fileCloser func() error, opts []ReaderOption) (*reader, error) {
	config := readerConfig{
		Logger:             slog.New(slog.DiscardHandler),
		DirectoryCacheSize: DefaultDirectoryCacheSize,
	}
	for _, opt := range opts {
		opt(&config)
	}

	headerData, err := fileAccess(0, spec.HeaderLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", spec.ErrInvalidHeader, err)
	}
	header, err := spec.DeserializeHeader(headerData)
	if err != nil {
		return nil, err
	}

	r := &reader{
		fileAccess: fileAccess,
		fileCloser: fileCloser,
		header:     header,
		logger:     config.Logger,
	}
	if config.DirectoryCacheSize > 0 {
		r.dirCache, err = lru.New[uint64, []spec.Entry](config.DirectoryCacheSize)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *reader) Close() error {
	return r.fileCloser()
}

func (r *reader) Header() spec.Header {
	return *r.header
}

func (r *reader) ReadMetadata() ([]byte, error) {
	if r.header.MetadataLength == 0 {
		return nil, nil
	}
	data, err := r.fileAccess(r.header.MetadataOffset, r.header.MetadataLength)
	if err != nil {
		return nil, err
	}
	return spec.Decompress(data, r.header.InternalCompression)
}

func (r *reader) readDirectory(dirOffset, dirLength uint64) ([]spec.Entry, error) {
	if r.dirCache != nil {
		if entries, ok := r.dirCache.Get(dirOffset); ok {
			return entries, nil
		}
	}
	dirCompressed, err := r.fileAccess(dirOffset, dirLength)
	if err != nil {
		return nil, err
	}
	dirData, err := spec.Decompress(dirCompressed, r.header.InternalCompression)
	if err != nil {
		return nil, err
	}
	dirEntries, err := spec.DeserializeDirectory(dirData)
	if err != nil {
		return nil, err
	}
	if r.dirCache != nil {
		r.dirCache.Add(dirOffset, dirEntries)
	}
	r.logger.Debug("pmtiles: directory loaded", "offset", dirOffset, "entries", len(dirEntries))
	return dirEntries, nil
}

// maxDirectoryDepth bounds leaf traversal on malformed archives.
const maxDirectoryDepth = 4

func (r *reader) ReadLocation(tileID tile.ID) (tile.Location, error) {
	dirOffset := r.header.RootOffset
	dirLength := r.header.RootLength
	for range maxDirectoryDepth {
		dirEntries, err := r.readDirectory(dirOffset, dirLength)
		if err != nil {
			return tile.Location{}, err
		}
		entry, found := spec.FindEntry(dirEntries, spec.EncodeTileID(tileID))
		if !found {
			return tile.Location{}, nil
		}
		if entry.RunLength > 0 {
			return tile.Location{
				Offset: r.header.TileDataOffset + entry.Offset,
				Length: uint64(entry.Length),
			}, nil
		}
		dirOffset = r.header.LeafDirectoryOffset + entry.Offset
		dirLength = uint64(entry.Length)
	}
	return tile.Location{}, fmt.Errorf("%w: leaf directories nested too deep", spec.ErrInvalidDirectory)
}

func (r *reader) ReadTile(tileID tile.ID) ([]byte, error) {
	if !tileID.Valid() {
		return make([]byte, 0), nil
	}
	location, err := r.ReadLocation(tileID)
	if err != nil {
		return nil, err
	}
	if location.Length == 0 {
		return make([]byte, 0), nil
	}
	return r.fileAccess(location.Offset, location.Length)
}

func (r *reader) VisitLocations(visitor func(tile.ID, tile.Location) error) error {
	var traverse func(uint64, uint64, int) error
	traverse = func(dirOffset, dirLength uint64, depth int) error {
		if depth >= maxDirectoryDepth {
			return fmt.Errorf("%w: leaf directories nested too deep", spec.ErrInvalidDirectory)
		}
		dirEntries, err := r.readDirectory(dirOffset, dirLength)
		if err != nil {
			return err
		}
		for _, entry := range dirEntries {
			if entry.RunLength == 0 {
				err := traverse(r.header.LeafDirectoryOffset+entry.Offset, uint64(entry.Length), depth+1)
				if err != nil {
					return err
				}
				continue
			}
			location := tile.Location{
				Offset: r.header.TileDataOffset + entry.Offset,
				Length: uint64(entry.Length),
			}
			for i := range entry.RunLength {
				tileID := spec.DecodeTileID(entry.TileCode + uint64(i))
				if err := visitor(tileID, location); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return traverse(r.header.RootOffset, r.header.RootLength, 0)
}

func (r *reader) VisitTiles(visitor func(tile.ID, []byte) error) error {
	return r.VisitLocations(func(tileID tile.ID, location tile.Location) error {
		tileData, err := r.fileAccess(location.Offset, location.Length)
		if err != nil {
			return err
		}
		return visitor(tileID, tileData)
	})
}
