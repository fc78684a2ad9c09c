package metadata

import "github.com/goccy/go-json"

// Optional is a value that may be absent from the metadata.
type Optional[T any] struct {
	Value   T
	Present bool
}

func Some[T any](value T) Optional[T] {
	return Optional[T]{Value: value, Present: true}
}

func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Present
}

// Or returns the value if present, fallback otherwise.
func (o Optional[T]) Or(fallback T) T {
	if o.Present {
		return o.Value
	}
	return fallback
}

// MarshalJSON encodes an absent value as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Present {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
