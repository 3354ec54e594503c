package state

import (
	"fmt"

	"github.com/qstream-io/qstream/pkg/serializer"
)

// Kind identifies the merge semantics of a queryable state instance.
type Kind int

const (
	// KindValue holds the latest written value per key.
	KindValue Kind = iota
	// KindReducing holds a per-key accumulator merged with a binary reduce
	// function; the first element written seeds the accumulator.
	KindReducing
	// KindFolding holds a per-key accumulator of a different type than the
	// input elements, seeded from an explicit start value.
	KindFolding
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "VALUE"
	case KindReducing:
		return "REDUCING"
	case KindFolding:
		return "FOLDING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(k))
	}
}

// UpdateFunc merges one serialized element into the current serialized
// accumulator. exists reports whether the key has been written before.
type UpdateFunc func(current []byte, exists bool, element []byte) ([]byte, error)

// Descriptor binds a queryable state name to its kind, merge strategy and
// optional default. The kind and serializers are fixed at construction; the
// stored accumulator bytes are exactly what a remote query returns, so any
// client decoding a response must use the serializer the descriptor was
// built with.
type Descriptor struct {
	name         string
	kind         Kind
	defaultValue []byte
	hasDefault   bool
	update       UpdateFunc
}

// Name returns the queryable registration name.
func (d *Descriptor) Name() string { return d.name }

// Kind returns the state kind.
func (d *Descriptor) Kind() Kind { return d.kind }

// Default returns the serialized default value, if one was registered.
// Only value state can carry a default.
func (d *Descriptor) Default() ([]byte, bool) {
	if !d.hasDefault {
		return nil, false
	}
	out := make([]byte, len(d.defaultValue))
	copy(out, d.defaultValue)
	return out, true
}

// Update merges a serialized element into the current serialized accumulator.
func (d *Descriptor) Update(current []byte, exists bool, element []byte) ([]byte, error) {
	return d.update(current, exists, element)
}

// NewValue builds a value state descriptor: each write overwrites the stored
// value for the key.
func NewValue[T any](name string, _ serializer.Serializer[T]) *Descriptor {
	return &Descriptor{
		name: name,
		kind: KindValue,
		update: func(current []byte, exists bool, element []byte) ([]byte, error) {
			return element, nil
		},
	}
}

// NewValueWithDefault builds a value state descriptor with a default that is
// returned for keys that have never been written.
func NewValueWithDefault[T any](name string, ser serializer.Serializer[T], defaultValue T) (*Descriptor, error) {
	encoded, err := ser.Marshal(defaultValue)
	if err != nil {
		return nil, fmt.Errorf("serializing default for state %q: %w", name, err)
	}
	d := NewValue[T](name, ser)
	d.defaultValue = encoded
	d.hasDefault = true
	return d, nil
}

// NewReducing builds a reducing state descriptor. The reduce function must be
// associative; the first element written for a key becomes its accumulator.
func NewReducing[T any](name string, ser serializer.Serializer[T], reduce func(acc, value T) T) *Descriptor {
	return &Descriptor{
		name: name,
		kind: KindReducing,
		update: func(current []byte, exists bool, element []byte) ([]byte, error) {
			if !exists {
				return element, nil
			}
			acc, err := ser.Unmarshal(current)
			if err != nil {
				return nil, fmt.Errorf("decoding accumulator for state %q: %w", name, err)
			}
			value, err := ser.Unmarshal(element)
			if err != nil {
				return nil, fmt.Errorf("decoding element for state %q: %w", name, err)
			}
			return ser.Marshal(reduce(acc, value))
		},
	}
}

// NewFolding builds a folding state descriptor over accumulator type S and
// element type T, seeded from seed for keys that have never been written.
func NewFolding[S, T any](
	name string,
	seed S,
	accSer serializer.Serializer[S],
	elemSer serializer.Serializer[T],
	fold func(acc S, value T) S,
) *Descriptor {
	return &Descriptor{
		name: name,
		kind: KindFolding,
		update: func(current []byte, exists bool, element []byte) ([]byte, error) {
			acc := seed
			if exists {
				var err error
				acc, err = accSer.Unmarshal(current)
				if err != nil {
					return nil, fmt.Errorf("decoding accumulator for state %q: %w", name, err)
				}
			}
			value, err := elemSer.Unmarshal(element)
			if err != nil {
				return nil, fmt.Errorf("decoding element for state %q: %w", name, err)
			}
			return accSer.Marshal(fold(acc, value))
		},
	}
}
