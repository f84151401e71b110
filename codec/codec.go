// Package codec defines the pluggable serialization used for index
// snapshots. The codec name is written into the snapshot envelope so a
// blob can be decoded by whichever codec produced it.
package codec

import "fmt"

// Codec serializes snapshot payloads.
type Codec interface {
	// Marshal encodes v into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into v.
	Unmarshal(data []byte, v any) error

	// Name identifies the codec on the wire.
	Name() string
}

// Default is the codec used when none is configured.
func Default() Codec { return Gob{} }

// ByName resolves a codec from its wire name.
func ByName(name string) (Codec, error) {
	switch name {
	case Gob{}.Name():
		return Gob{}, nil
	case Msgpack{}.Name():
		return Msgpack{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
