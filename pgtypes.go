package pglink

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgio"
)

// PostgreSQL oids for the types with built-in codecs.
const (
	BoolOID        = uint32(16)
	ByteaOID       = uint32(17)
	CharOID        = uint32(18)
	NameOID        = uint32(19)
	Int8OID        = uint32(20)
	Int2OID        = uint32(21)
	Int4OID        = uint32(23)
	TextOID        = uint32(25)
	OIDOID         = uint32(26)
	JSONOID        = uint32(114)
	Float4OID      = uint32(700)
	Float8OID      = uint32(701)
	UnknownOID     = uint32(705)
	VarcharOID     = uint32(1043)
	DateOID        = uint32(1082)
	TimestampOID   = uint32(1114)
	TimestampTzOID = uint32(1184)
	NumericOID     = uint32(1700)
	UUIDOID        = uint32(2950)
	JSONBOID       = uint32(3802)
)

// PostgreSQL format codes
const (
	TextFormatCode   = int16(0)
	BinaryFormatCode = int16(1)
)

// Type describes one entry of the pg_type catalog that the connection knows
// about.
type Type struct {
	OID             uint32
	Name            string
	RangeElementOID uint32 // 0 unless the type is a range
}

// TypeRegistry maps oids to type descriptions. It is bootstrapped from
// pg_type/pg_range on connect, or supplied pre-built through
// Config.TypeRegistry.
type TypeRegistry struct {
	types map[uint32]*Type
}

// NewTypeRegistry returns a registry preloaded with the types the built-in
// codecs understand. The bootstrap query extends it with the server's full
// catalog.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{types: make(map[uint32]*Type)}
	for oid, name := range map[uint32]string{
		BoolOID:        "bool",
		ByteaOID:       "bytea",
		CharOID:        "char",
		NameOID:        "name",
		Int8OID:        "int8",
		Int2OID:        "int2",
		Int4OID:        "int4",
		TextOID:        "text",
		OIDOID:         "oid",
		JSONOID:        "json",
		Float4OID:      "float4",
		Float8OID:      "float8",
		UnknownOID:     "unknown",
		VarcharOID:     "varchar",
		DateOID:        "date",
		TimestampOID:   "timestamp",
		TimestampTzOID: "timestamptz",
		NumericOID:     "numeric",
		UUIDOID:        "uuid",
		JSONBOID:       "jsonb",
	} {
		r.types[oid] = &Type{OID: oid, Name: name}
	}
	return r
}

// Register adds or replaces a type.
func (r *TypeRegistry) Register(t *Type) {
	r.types[t.OID] = t
}

// TypeForOID returns the registered type for oid, or nil.
func (r *TypeRegistry) TypeForOID(oid uint32) *Type {
	if r == nil {
		return nil
	}
	return r.types[oid]
}

// NameForOID returns the registered type name for oid, or "".
func (r *TypeRegistry) NameForOID(oid uint32) string {
	if t := r.TypeForOID(oid); t != nil {
		return t.Name
	}
	return ""
}

// Len returns the number of registered types.
func (r *TypeRegistry) Len() int {
	return len(r.types)
}

// bootstrapQuery populates the type registry from the server catalog. It runs
// via the simple protocol before the connection reports ready.
const bootstrapQuery = `select t.oid, t.typname, coalesce(r.rngsubtype, 0)
from pg_type t
left join pg_range r on r.rngtypid = t.oid`

// registryFromCatalogRows builds a TypeRegistry from the raw text rows of
// bootstrapQuery, layered over the built-in registry.
func registryFromCatalogRows(rows [][][]byte) (*TypeRegistry, error) {
	r := NewTypeRegistry()
	for _, row := range rows {
		if len(row) != 3 {
			return nil, ProtocolError(fmt.Sprintf("type bootstrap row has %d columns", len(row)))
		}
		oid, err := strconv.ParseUint(string(row[0]), 10, 32)
		if err != nil {
			return nil, ProtocolError(fmt.Sprintf("type bootstrap oid %q: %v", row[0], err))
		}
		rngElem, err := strconv.ParseUint(string(row[2]), 10, 32)
		if err != nil {
			return nil, ProtocolError(fmt.Sprintf("type bootstrap rngsubtype %q: %v", row[2], err))
		}
		r.Register(&Type{OID: uint32(oid), Name: string(row[1]), RangeElementOID: uint32(rngElem)})
	}
	return r, nil
}

// Encoder converts a query argument into its wire representation for the
// given parameter oid. oid is 0 when the query did not hint parameter types.
type Encoder func(types *TypeRegistry, oid uint32, value interface{}) (data []byte, format int16, err error)

// Decoder converts a column's wire representation into a Go value. data is
// nil for SQL NULL.
type Decoder func(types *TypeRegistry, oid uint32, format int16, data []byte) (interface{}, error)

// Formatter chooses the transfer format requested for a result column oid.
type Formatter func(types *TypeRegistry, oid uint32) int16

// hasBinaryCodec reports whether the built-in codecs can decode oid in binary
// format.
func hasBinaryCodec(oid uint32) bool {
	switch oid {
	case BoolOID, ByteaOID, Int2OID, Int4OID, Int8OID, Float4OID, Float8OID,
		TextOID, VarcharOID, NameOID, OIDOID, UnknownOID:
		return true
	}
	return false
}

// DefaultFormatter requests binary transfer when a built-in binary codec
// exists and text otherwise.
func DefaultFormatter(types *TypeRegistry, oid uint32) int16 {
	if hasBinaryCodec(oid) {
		return BinaryFormatCode
	}
	return TextFormatCode
}

// DefaultEncoder encodes arguments with the built-in codecs. Hinted bool,
// bytea, integer, oid and float oids encode binary when the Go value fits the
// type; everything else, including the text-like oids, encodes as the value's
// text representation and lets the server cast.
func DefaultEncoder(types *TypeRegistry, oid uint32, value interface{}) ([]byte, int16, error) {
	if value == nil {
		return nil, TextFormatCode, nil
	}

	if hasBinaryCodec(oid) {
		switch oid {
		case BoolOID:
			if v, ok := value.(bool); ok {
				if v {
					return []byte{1}, BinaryFormatCode, nil
				}
				return []byte{0}, BinaryFormatCode, nil
			}
		case ByteaOID:
			if v, ok := value.([]byte); ok {
				return v, BinaryFormatCode, nil
			}
		case Int2OID:
			if v, ok := int64Value(value); ok {
				if v < math.MinInt16 || v > math.MaxInt16 {
					return nil, 0, fmt.Errorf("%d is out of range for int2", v)
				}
				return pgio.AppendInt16(nil, int16(v)), BinaryFormatCode, nil
			}
		case Int4OID:
			if v, ok := int64Value(value); ok {
				if v < math.MinInt32 || v > math.MaxInt32 {
					return nil, 0, fmt.Errorf("%d is out of range for int4", v)
				}
				return pgio.AppendInt32(nil, int32(v)), BinaryFormatCode, nil
			}
		case Int8OID:
			if v, ok := int64Value(value); ok {
				return pgio.AppendInt64(nil, v), BinaryFormatCode, nil
			}
		case OIDOID:
			if v, ok := int64Value(value); ok {
				if v < 0 || v > math.MaxUint32 {
					return nil, 0, fmt.Errorf("%d is out of range for oid", v)
				}
				return pgio.AppendUint32(nil, uint32(v)), BinaryFormatCode, nil
			}
		case Float4OID:
			if v, ok := float64Value(value); ok {
				return pgio.AppendUint32(nil, math.Float32bits(float32(v))), BinaryFormatCode, nil
			}
		case Float8OID:
			if v, ok := float64Value(value); ok {
				return pgio.AppendUint64(nil, math.Float64bits(v)), BinaryFormatCode, nil
			}
		}
	}

	data, err := encodeTextArgument(value)
	if err != nil {
		return nil, 0, err
	}
	return data, TextFormatCode, nil
}

func encodeTextArgument(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return []byte(`\x` + hex.EncodeToString(v)), nil
	case bool:
		if v {
			return []byte("t"), nil
		}
		return []byte("f"), nil
	case float32:
		return strconv.AppendFloat(nil, float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.AppendFloat(nil, v, 'f', -1, 64), nil
	case fmt.Stringer:
		return []byte(v.String()), nil
	default:
		if i, ok := int64Value(value); ok {
			return strconv.AppendInt(nil, i, 10), nil
		}
		return nil, fmt.Errorf("cannot encode %T as a query argument", value)
	}
}

// DefaultDecoder decodes column values with the built-in codecs. Unknown oids
// fall back to returning the raw bytes as a string.
func DefaultDecoder(types *TypeRegistry, oid uint32, format int16, data []byte) (interface{}, error) {
	if data == nil {
		return nil, nil
	}

	if format == BinaryFormatCode {
		return decodeBinary(oid, data)
	}
	return decodeText(oid, data)
}

func decodeBinary(oid uint32, data []byte) (interface{}, error) {
	switch oid {
	case BoolOID:
		if len(data) != 1 {
			return nil, ProtocolError(fmt.Sprintf("received invalid length bool: %d", len(data)))
		}
		return data[0] == 1, nil
	case ByteaOID:
		buf := make([]byte, len(data))
		copy(buf, data)
		return buf, nil
	case Int2OID:
		if len(data) != 2 {
			return nil, ProtocolError(fmt.Sprintf("received invalid length int2: %d", len(data)))
		}
		return int64(int16(binary.BigEndian.Uint16(data))), nil
	case Int4OID:
		if len(data) != 4 {
			return nil, ProtocolError(fmt.Sprintf("received invalid length int4: %d", len(data)))
		}
		return int64(int32(binary.BigEndian.Uint32(data))), nil
	case Int8OID:
		if len(data) != 8 {
			return nil, ProtocolError(fmt.Sprintf("received invalid length int8: %d", len(data)))
		}
		return int64(binary.BigEndian.Uint64(data)), nil
	case OIDOID:
		if len(data) != 4 {
			return nil, ProtocolError(fmt.Sprintf("received invalid length oid: %d", len(data)))
		}
		return int64(binary.BigEndian.Uint32(data)), nil
	case Float4OID:
		if len(data) != 4 {
			return nil, ProtocolError(fmt.Sprintf("received invalid length float4: %d", len(data)))
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(data))), nil
	case Float8OID:
		if len(data) != 8 {
			return nil, ProtocolError(fmt.Sprintf("received invalid length float8: %d", len(data)))
		}
		return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
	default:
		return string(data), nil
	}
}

func decodeText(oid uint32, data []byte) (interface{}, error) {
	switch oid {
	case BoolOID:
		switch string(data) {
		case "t":
			return true, nil
		case "f":
			return false, nil
		default:
			return nil, ProtocolError(fmt.Sprintf("received invalid bool: %q", data))
		}
	case ByteaOID:
		s := string(data)
		if !strings.HasPrefix(s, `\x`) {
			return nil, ProtocolError(fmt.Sprintf("received invalid bytea: %q", s))
		}
		return hex.DecodeString(s[2:])
	case Int2OID, Int4OID, Int8OID, OIDOID:
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return nil, ProtocolError(fmt.Sprintf("received invalid integer: %q", data))
		}
		return n, nil
	case Float4OID, Float8OID:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return nil, ProtocolError(fmt.Sprintf("received invalid float: %q", data))
		}
		return f, nil
	default:
		return string(data), nil
	}
}

func int64Value(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

func float64Value(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		if i, ok := int64Value(value); ok {
			return float64(i), true
		}
		return 0, false
	}
}

// inferParamOID picks an oid for an unhinted argument so the encoder can
// choose a codec. 0 leaves the type to the server.
func inferParamOID(value interface{}) uint32 {
	switch value.(type) {
	case bool:
		return BoolOID
	case []byte:
		return ByteaOID
	case float32:
		return Float4OID
	case float64:
		return Float8OID
	case string:
		return 0
	default:
		if _, ok := int64Value(value); ok {
			return Int8OID
		}
		return 0
	}
}
