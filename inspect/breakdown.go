package inspect

import "github.com/eak1mov/pmtiles-inspect/pm/spec"

type Section string

const (
	SectionHeader          Section = "Header"
	SectionRootDirectory   Section = "Root Directory"
	SectionMetadata        Section = "Metadata"
	SectionLeafDirectories Section = "Leaf Directories"
	SectionTileData        Section = "Tile Data"
	SectionTotal           Section = "Total"
)

// SectionRow is the share of one archive section in the file size.
type SectionRow struct {
	Section Section `json:"section"`
	Length  uint64  `json:"length"`
	Percent float64 `json:"percent"`
}

// Breakdown splits fileSize into the archive sections described by header.
// Rows come in file order followed by the total. Bytes not attributed to any
// section (padding after the root directory) are only part of the total.
// A zero fileSize yields 0% for every row.
func Breakdown(header *spec.Header, fileSize uint64) []SectionRow {
	percent := func(length uint64) float64 {
		if fileSize == 0 {
			return 0
		}
		return float64(length) / float64(fileSize) * 100
	}

	rows := make([]SectionRow, 0, 6)
	for _, s := range []struct {
		section Section
		length  uint64
	}{
		{SectionHeader, spec.HeaderLength},
		{SectionRootDirectory, header.RootLength},
		{SectionMetadata, header.MetadataLength},
		{SectionLeafDirectories, header.LeafDirectoryLength},
		{SectionTileData, header.TileDataLength},
	} {
		rows = append(rows, SectionRow{Section: s.section, Length: s.length, Percent: percent(s.length)})
	}

	total := SectionRow{Section: SectionTotal, Length: fileSize}
	if fileSize > 0 {
		total.Percent = 100
	}
	return append(rows, total)
}
