package spec_test

import (
	"cmp"
	"errors"
	"slices"
	"testing"

	"github.com/eak1mov/pmtiles-inspect/pm/spec"
	gcmp "github.com/google/go-cmp/cmp"
)

func makeEntries(count int, runLength uint32) []spec.Entry {
	entries := make([]spec.Entry, 0, count)
	offset := uint64(0)
	for i := range count {
		length := uint32(100 + i%37)
		entries = append(entries, spec.Entry{
			TileCode:  uint64(i) * 3,
			Offset:    offset,
			Length:    length,
			RunLength: runLength,
		})
		offset += uint64(length)
	}
	return entries
}

func TestDirectorySerializer(t *testing.T) {
	for _, tc := range []struct {
		Name    string
		Entries []spec.Entry
	}{
		{Name: "Empty", Entries: []spec.Entry{}},
		{Name: "Single", Entries: makeEntries(1, 1)},
		{Name: "Small", Entries: makeEntries(100, 1)},
		{Name: "Large", Entries: makeEntries(50_000, 2)},
		{Name: "Reused", Entries: []spec.Entry{
			{TileCode: 1, Offset: 0, Length: 10, RunLength: 1},
			{TileCode: 2, Offset: 0, Length: 10, RunLength: 3},
			{TileCode: 9, Offset: 10, Length: 5, RunLength: 1},
		}},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()

			slices.SortFunc(tc.Entries, func(a, b spec.Entry) int {
				return cmp.Compare(a.TileCode, b.TileCode)
			})

			deserialized, err := spec.DeserializeDirectory(spec.SerializeDirectory(tc.Entries))
			if err != nil {
				t.Fatalf("DeserializeDirectory failed: %v", err)
			}
			if diff := gcmp.Diff(tc.Entries, deserialized); diff != "" {
				t.Errorf("DeserializeDirectory(SerializeDirectory(input)) mismatch (-want+got):\n%v", diff)
			}
		})
	}
}

func TestDeserializeDirectoryErrors(t *testing.T) {
	for _, data := range [][]byte{
		{},
		{0xff, 0xff, 0xff, 0x01},
		spec.SerializeDirectory(makeEntries(10, 1))[:12],
	} {
		if _, err := spec.DeserializeDirectory(data); !errors.Is(err, spec.ErrInvalidDirectory) {
			t.Errorf("DeserializeDirectory(%v) error = %v, want %v", data, err, spec.ErrInvalidDirectory)
		}
	}
}

func TestFindEntry(t *testing.T) {
	entries := []spec.Entry{
		{TileCode: 5, Offset: 0, Length: 10, RunLength: 2},
		{TileCode: 10, Offset: 100, Length: 50, RunLength: 0},
	}

	for _, tc := range []struct {
		Code  uint64
		Found bool
		Want  spec.Entry
	}{
		{Code: 4, Found: false},
		{Code: 5, Found: true, Want: entries[0]},
		{Code: 6, Found: true, Want: entries[0]},
		{Code: 7, Found: false},
		{Code: 12, Found: true, Want: entries[1]},
	} {
		got, found := spec.FindEntry(entries, tc.Code)
		if found != tc.Found {
			t.Errorf("FindEntry(%v) found = %v, want = %v", tc.Code, found, tc.Found)
			continue
		}
		if diff := gcmp.Diff(tc.Want, got); diff != "" {
			t.Errorf("FindEntry(%v) mismatch (-want+got):\n%v", tc.Code, diff)
		}
	}
}

func TestCompactEntries(t *testing.T) {
	entries := []spec.Entry{
		{TileCode: 1, Offset: 0, Length: 10, RunLength: 1},
		{TileCode: 2, Offset: 0, Length: 10, RunLength: 1},
		{TileCode: 3, Offset: 0, Length: 10, RunLength: 1},
		{TileCode: 4, Offset: 10, Length: 10, RunLength: 1},
		{TileCode: 6, Offset: 10, Length: 10, RunLength: 1},
	}
	want := []spec.Entry{
		{TileCode: 1, Offset: 0, Length: 10, RunLength: 3},
		{TileCode: 4, Offset: 10, Length: 10, RunLength: 1},
		{TileCode: 6, Offset: 10, Length: 10, RunLength: 1},
	}
	if diff := gcmp.Diff(want, spec.CompactEntries(entries)); diff != "" {
		t.Errorf("CompactEntries mismatch (-want+got):\n%v", diff)
	}
}
