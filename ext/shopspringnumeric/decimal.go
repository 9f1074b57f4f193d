// Package shopspringnumeric plugs github.com/shopspring/decimal into the
// pglink codec callbacks: numeric columns decode to decimal.Decimal and
// decimal.Decimal arguments encode to their text representation.
package shopspringnumeric

import (
	"github.com/shopspring/decimal"

	"github.com/pglink/pglink"
)

// WrapDecoder returns a Decoder that handles numeric columns and delegates
// everything else to next. Numeric always travels in text format.
func WrapDecoder(next pglink.Decoder) pglink.Decoder {
	return func(types *pglink.TypeRegistry, oid uint32, format int16, data []byte) (interface{}, error) {
		if oid == pglink.NumericOID && format == pglink.TextFormatCode && data != nil {
			return decimal.NewFromString(string(data))
		}
		return next(types, oid, format, data)
	}
}

// WrapEncoder returns an Encoder that handles decimal.Decimal and
// decimal.NullDecimal arguments and delegates everything else to next.
func WrapEncoder(next pglink.Encoder) pglink.Encoder {
	return func(types *pglink.TypeRegistry, oid uint32, value interface{}) ([]byte, int16, error) {
		switch v := value.(type) {
		case decimal.Decimal:
			return []byte(v.String()), pglink.TextFormatCode, nil
		case decimal.NullDecimal:
			if !v.Valid {
				return nil, pglink.TextFormatCode, nil
			}
			return []byte(v.Decimal.String()), pglink.TextFormatCode, nil
		}
		return next(types, oid, value)
	}
}
