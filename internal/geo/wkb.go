package geo

import (
	"encoding/binary"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/wkb"
)

// EncodeWKB serialises g as a well-known-binary polygon.
func EncodeWKB(g geom.Polygonal) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("missing geometry")
	}
	blob, err := wkb.Encode(AsPolygon(g), binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geometry: %w", err)
	}
	return blob, nil
}

// DecodeWKB parses a well-known-binary polygonal geometry.
func DecodeWKB(blob []byte) (geom.Polygonal, error) {
	g, err := wkb.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode geometry: %w", err)
	}
	p, ok := g.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("stored geometry is %T, not polygonal", g)
	}
	return p, nil
}
