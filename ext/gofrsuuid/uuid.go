// Package gofrsuuid plugs github.com/gofrs/uuid into the pglink codec
// callbacks: uuid columns decode to uuid.UUID and uuid.UUID arguments encode
// to their canonical text representation.
package gofrsuuid

import (
	"fmt"

	"github.com/gofrs/uuid"

	"github.com/pglink/pglink"
)

// WrapDecoder returns a Decoder that handles uuid columns and delegates
// everything else to next.
func WrapDecoder(next pglink.Decoder) pglink.Decoder {
	return func(types *pglink.TypeRegistry, oid uint32, format int16, data []byte) (interface{}, error) {
		if oid == pglink.UUIDOID && data != nil {
			switch format {
			case pglink.TextFormatCode:
				return uuid.FromString(string(data))
			case pglink.BinaryFormatCode:
				if len(data) != 16 {
					return nil, fmt.Errorf("received invalid length uuid: %d", len(data))
				}
				return uuid.FromBytes(data)
			}
		}
		return next(types, oid, format, data)
	}
}

// WrapEncoder returns an Encoder that handles uuid.UUID arguments and
// delegates everything else to next.
func WrapEncoder(next pglink.Encoder) pglink.Encoder {
	return func(types *pglink.TypeRegistry, oid uint32, value interface{}) ([]byte, int16, error) {
		if v, ok := value.(uuid.UUID); ok {
			return []byte(v.String()), pglink.TextFormatCode, nil
		}
		return next(types, oid, value)
	}
}
