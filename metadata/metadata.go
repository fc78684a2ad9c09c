// Package metadata decodes the JSON metadata embedded in tile archives into
// a typed record. Every field is optional; values of an unexpected shape are
// treated as absent instead of failing the whole record.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/eak1mov/pmtiles-inspect/geo"
	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
)

var ErrInvalidMetadata = errors.New("invalid metadata")

// Metadata is the typed form of the archive metadata.
type Metadata struct {
	Name        Optional[string] `json:"name"`
	Description Optional[string] `json:"description"`
	Generator   Optional[string] `json:"generator"`
	Format      Optional[string] `json:"format"`
	MinZoom     Optional[int]    `json:"minzoom"`
	MaxZoom     Optional[int]    `json:"maxzoom"`

	// Bounds comes from "antimeridian_adjusted_bounds" if present, else "bounds".
	Bounds    Optional[orb.Bound] `json:"bounds"`
	BoundsKey string              `json:"bounds_key,omitempty"`

	// Layers preserves the order of "tilestats.layers".
	Layers []LayerStats `json:"layers"`
}

type LayerStats struct {
	Name           Optional[string] `json:"name"`
	Geometry       Optional[string] `json:"geometry"`
	Count          uint64           `json:"count"`
	AttributeCount int              `json:"attribute_count"`
	Attributes     []AttributeStats `json:"attributes"`
}

type AttributeStats struct {
	Name  Optional[string]  `json:"name"`
	Type  Optional[string]  `json:"type"`
	Count uint64            `json:"count"`
	Min   Optional[float64] `json:"min"`
	Max   Optional[float64] `json:"max"`

	// MinText and MaxText hold min and max values that are not numbers,
	// e.g. the lexical range of a string attribute.
	MinText Optional[string] `json:"min_text"`
	MaxText Optional[string] `json:"max_text"`
}

const (
	keyAdjustedBounds = "antimeridian_adjusted_bounds"
	keyBounds         = "bounds"
)

// Parse decodes metadata JSON. Empty input yields an empty record.
func Parse(data []byte) (Metadata, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Metadata{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}

	m := Metadata{
		Name:        stringField(fields["name"]),
		Description: stringField(fields["description"]),
		Generator:   stringField(fields["generator"]),
		Format:      stringField(fields["format"]),
		MinZoom:     intField(fields["minzoom"]),
		MaxZoom:     intField(fields["maxzoom"]),
	}

	for _, key := range []string{keyAdjustedBounds, keyBounds} {
		if bounds := boundsField(fields[key]); bounds.Present {
			m.Bounds = bounds
			m.BoundsKey = key
			break
		}
	}

	if raw, ok := fields["tilestats"]; ok {
		m.Layers = parseTilestats(raw)
	}

	return m, nil
}

type wireTilestats struct {
	Layers []json.RawMessage `json:"layers"`
}

// parseTilestats decodes every layer and attribute on its own, so a malformed
// element only drops itself.
func parseTilestats(raw json.RawMessage) []LayerStats {
	var stats wireTilestats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil
	}

	layers := make([]LayerStats, 0, len(stats.Layers))
	for _, rawLayer := range stats.Layers {
		if layer, ok := parseLayer(rawLayer); ok {
			layers = append(layers, layer)
		}
	}
	return layers
}

func parseLayer(raw json.RawMessage) (LayerStats, bool) {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil || fields == nil {
		return LayerStats{}, false
	}

	layer := LayerStats{
		Name:           stringField(fields["layer"]),
		Geometry:       stringField(fields["geometry"]),
		Count:          uint64(max(intField(fields["count"]).Or(0), 0)),
		AttributeCount: intField(fields["attributeCount"]).Or(0),
	}

	var attributes []json.RawMessage
	if absent(fields["attributes"]) || json.Unmarshal(fields["attributes"], &attributes) != nil {
		return layer, true
	}
	for _, rawAttr := range attributes {
		if attr, ok := parseAttribute(rawAttr); ok {
			layer.Attributes = append(layer.Attributes, attr)
		}
	}
	return layer, true
}

func parseAttribute(raw json.RawMessage) (AttributeStats, bool) {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil || fields == nil {
		return AttributeStats{}, false
	}
	return AttributeStats{
		Name:    stringField(fields["attribute"]),
		Type:    stringField(fields["type"]),
		Count:   uint64(max(intField(fields["count"]).Or(0), 0)),
		Min:     floatField(fields["min"]),
		Max:     floatField(fields["max"]),
		MinText: textField(fields["min"]),
		MaxText: textField(fields["max"]),
	}, true
}

// textField renders a non-numeric value: strings as is, other JSON compacted.
func textField(raw json.RawMessage) Optional[string] {
	if absent(raw) || floatField(raw).Present {
		return Optional[string]{}
	}
	if s := stringField(raw); s.Present {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return Optional[string]{}
	}
	return Some(compact.String())
}

func floatField(raw json.RawMessage) Optional[float64] {
	var f float64
	if absent(raw) || json.Unmarshal(raw, &f) != nil {
		return Optional[float64]{}
	}
	return Some(f)
}

// intField accepts both numbers and numeric strings ("minzoom": "0").
func intField(raw json.RawMessage) Optional[int] {
	if absent(raw) {
		return Optional[int]{}
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return Optional[int]{}
		}
		n = json.Number(strings.TrimSpace(s))
	}
	if v, err := strconv.Atoi(n.String()); err == nil {
		return Some(v)
	}
	if f, err := n.Float64(); err == nil && f == float64(int(f)) {
		return Some(int(f))
	}
	return Optional[int]{}
}

// boundsField accepts "minLon,minLat,maxLon,maxLat" or a four-number array.
func boundsField(raw json.RawMessage) Optional[orb.Bound] {
	if absent(raw) {
		return Optional[orb.Bound]{}
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		bounds, err := geo.ParseBounds(s)
		if err != nil {
			return Optional[orb.Bound]{}
		}
		return Some(bounds)
	}
	var values []float64
	if json.Unmarshal(raw, &values) == nil && len(values) == 4 {
		return Some(orb.Bound{
			Min: orb.Point{values[0], values[1]},
			Max: orb.Point{values[2], values[3]},
		})
	}
	return Optional[orb.Bound]{}
}
