package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the variants of the wire value union. Exactly one
// variant is populated per Value; decoding enforces that.
type Kind int

// All value kinds known to the wire format.
const (
	Invalid Kind = iota
	Null
	Boolean
	Integer
	Double
	Timestamp
	String
	Bytes
	Reference
	GeoPoint
	Array
	Map
)

// TimestampFormat is RFC3339 with millisecond precision, the format used
// for every timestamp this engine emits.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

//LatLng Geographic point. Latitude must be within [-90, 90], longitude within [-180, 180].
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Value is the closed tagged union of the wire value format. Kind selects
// the populated variant; the remaining fields are meaningful only for the
// matching Kind.
type Value struct {
	Kind Kind

	Bool bool
	Int  int64
	Dbl  float64
	Time time.Time
	Str  string // String and Reference variants
	Blob []byte
	Geo  LatLng
	Arr  []Value
	Obj  map[string]Value
}

//NullValue -_-
func NullValue() Value { return Value{Kind: Null} }

//BoolOf Boolean value.
func BoolOf(b bool) Value { return Value{Kind: Boolean, Bool: b} }

//IntOf Integer value.
func IntOf(i int64) Value { return Value{Kind: Integer, Int: i} }

//DoubleOf Double value.
func DoubleOf(f float64) Value { return Value{Kind: Double, Dbl: f} }

//TimeOf Timestamp value.
func TimeOf(t time.Time) Value { return Value{Kind: Timestamp, Time: t} }

//StringOf String value.
func StringOf(s string) Value { return Value{Kind: String, Str: s} }

//BytesOf Bytes value.
func BytesOf(b []byte) Value { return Value{Kind: Bytes, Blob: b} }

//ReferenceOf Reference value holding an absolute resource path.
func ReferenceOf(path string) Value { return Value{Kind: Reference, Str: path} }

//GeoOf GeoPoint value.
func GeoOf(lat float64, lng float64) Value {
	return Value{Kind: GeoPoint, Geo: LatLng{Latitude: lat, Longitude: lng}}
}

//ArrayOf Array value.
func ArrayOf(vs ...Value) Value { return Value{Kind: Array, Arr: vs} }

//MapOf Map value.
func MapOf(fields map[string]Value) Value { return Value{Kind: Map, Obj: fields} }

type arrayBody struct {
	Values []json.RawMessage `json:"values"`
}

type mapBody struct {
	Fields map[string]json.RawMessage `json:"fields"`
}

// MarshalJSON renders the value in its wire form, e.g. {"integerValue":"15"}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case Null:
		return []byte(`{"nullValue":null}`), nil
	case Boolean:
		return []byte(fmt.Sprintf(`{"booleanValue":%v}`, v.Bool)), nil
	case Integer:
		// 64-bit range survives JSON only as a decimal string.
		return []byte(fmt.Sprintf(`{"integerValue":"%d"}`, v.Int)), nil
	case Double:
		switch {
		case math.IsNaN(v.Dbl):
			return []byte(`{"doubleValue":"NaN"}`), nil
		case math.IsInf(v.Dbl, 1):
			return []byte(`{"doubleValue":"Infinity"}`), nil
		case math.IsInf(v.Dbl, -1):
			return []byte(`{"doubleValue":"-Infinity"}`), nil
		default:
			num, err := json.Marshal(v.Dbl)
			if err != nil {
				return nil, err
			}
			return []byte(fmt.Sprintf(`{"doubleValue":%s}`, num)), nil
		}
	case Timestamp:
		return []byte(fmt.Sprintf(`{"timestampValue":%q}`, v.Time.UTC().Format(TimestampFormat))), nil
	case String:
		s, err := json.Marshal(v.Str)
		if err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf(`{"stringValue":%s}`, s)), nil
	case Bytes:
		return []byte(fmt.Sprintf(`{"bytesValue":%q}`, base64.StdEncoding.EncodeToString(v.Blob))), nil
	case Reference:
		s, err := json.Marshal(v.Str)
		if err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf(`{"referenceValue":%s}`, s)), nil
	case GeoPoint:
		body, err := json.Marshal(v.Geo)
		if err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf(`{"geoPointValue":%s}`, body)), nil
	case Array:
		values := make([]json.RawMessage, 0, len(v.Arr))
		for _, el := range v.Arr {
			raw, err := el.MarshalJSON()
			if err != nil {
				return nil, err
			}
			values = append(values, raw)
		}
		body, err := json.Marshal(arrayBody{Values: values})
		if err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf(`{"arrayValue":%s}`, body)), nil
	case Map:
		fields := make(map[string]json.RawMessage, len(v.Obj))
		for k, el := range v.Obj {
			raw, err := el.MarshalJSON()
			if err != nil {
				return nil, err
			}
			fields[k] = raw
		}
		body, err := json.Marshal(mapBody{Fields: fields})
		if err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf(`{"mapValue":%s}`, body)), nil
	default:
		return nil, fmt.Errorf("cannot marshal value of kind %d", v.Kind)
	}
}

// UnmarshalJSON decodes a wire value object. A value object must carry
// exactly one variant tag; zero tags, multiple tags and unknown tags are
// all rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("value is not a JSON object: %v", err)
	}

	if len(raw) == 0 {
		return fmt.Errorf("value object has no variant tag set")
	}
	if len(raw) > 1 {
		tags := make([]string, 0, len(raw))
		for tag := range raw {
			tags = append(tags, tag)
		}
		return fmt.Errorf("value object has multiple variant tags set: %v", strings.Join(tags, ", "))
	}

	for tag, body := range raw {
		decoded, err := decodeVariant(tag, body)
		if err != nil {
			return err
		}
		*v = decoded
	}

	return nil
}

func decodeVariant(tag string, body json.RawMessage) (Value, error) {
	switch tag {
	case "nullValue":
		// The wire encodes this as literal null.
		var probe interface{}
		if err := json.Unmarshal(body, &probe); err != nil || probe != nil {
			return Value{}, fmt.Errorf("nullValue must be null")
		}
		return NullValue(), nil

	case "booleanValue":
		var b bool
		if err := json.Unmarshal(body, &b); err != nil {
			return Value{}, fmt.Errorf("invalid booleanValue: %v", err)
		}
		return BoolOf(b), nil

	case "integerValue":
		return decodeInteger(body)

	case "doubleValue":
		return decodeDouble(body)

	case "timestampValue":
		t, err := decodeTimestamp(body)
		if err != nil {
			return Value{}, err
		}
		return TimeOf(t), nil

	case "stringValue":
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return Value{}, fmt.Errorf("invalid stringValue: %v", err)
		}
		return StringOf(s), nil

	case "bytesValue":
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return Value{}, fmt.Errorf("invalid bytesValue: %v", err)
		}
		blob, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, fmt.Errorf("bytesValue is not valid base64: %v", err)
		}
		return BytesOf(blob), nil

	case "referenceValue":
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return Value{}, fmt.Errorf("invalid referenceValue: %v", err)
		}
		return ReferenceOf(s), nil

	case "geoPointValue":
		var geo LatLng
		if err := json.Unmarshal(body, &geo); err != nil {
			return Value{}, fmt.Errorf("invalid geoPointValue: %v", err)
		}
		if geo.Latitude < -90 || geo.Latitude > 90 {
			return Value{}, fmt.Errorf("geoPointValue latitude %v out of range", geo.Latitude)
		}
		if geo.Longitude < -180 || geo.Longitude > 180 {
			return Value{}, fmt.Errorf("geoPointValue longitude %v out of range", geo.Longitude)
		}
		return Value{Kind: GeoPoint, Geo: geo}, nil

	case "arrayValue":
		var arr arrayBody
		if err := json.Unmarshal(body, &arr); err != nil {
			return Value{}, fmt.Errorf("invalid arrayValue: %v", err)
		}
		values := make([]Value, 0, len(arr.Values))
		for i, rawEl := range arr.Values {
			var el Value
			if err := el.UnmarshalJSON(rawEl); err != nil {
				return Value{}, fmt.Errorf("arrayValue element %d: %v", i, err)
			}
			values = append(values, el)
		}
		return ArrayOf(values...), nil

	case "mapValue":
		var m mapBody
		if err := json.Unmarshal(body, &m); err != nil {
			return Value{}, fmt.Errorf("invalid mapValue: %v", err)
		}
		fields := make(map[string]Value, len(m.Fields))
		for k, rawEl := range m.Fields {
			var el Value
			if err := el.UnmarshalJSON(rawEl); err != nil {
				return Value{}, fmt.Errorf("mapValue field %q: %v", k, err)
			}
			fields[k] = el
		}
		return MapOf(fields), nil

	default:
		return Value{}, fmt.Errorf("unknown value variant tag %q", tag)
	}
}

func decodeInteger(body json.RawMessage) (Value, error) {
	// The wire sends integers as decimal strings to keep the 64-bit range,
	// but plain JSON numbers show up in practice too.
	var s string
	if err := json.Unmarshal(body, &s); err != nil {
		s = string(bytes.TrimSpace(body))
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("invalid integerValue %q: %v", s, err)
	}
	return IntOf(i), nil
}

func decodeDouble(body json.RawMessage) (Value, error) {
	// NaN and the infinities have no JSON number form, they arrive as strings.
	var s string
	if err := json.Unmarshal(body, &s); err != nil {
		s = string(bytes.TrimSpace(body))
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("invalid doubleValue %q: %v", s, err)
	}
	return DoubleOf(f), nil
}

func decodeTimestamp(body json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestampValue %q: %v", s, err)
		}
		return t, nil
	}

	// Alternative protobuf-style encoding: {"seconds": ..., "nanos": ...}.
	// At least one of the two fields must be present; an empty object is
	// not a timestamp.
	var ts struct {
		Seconds *json.Number `json:"seconds"`
		Nanos   *int32       `json:"nanos"`
	}
	if err := json.Unmarshal(body, &ts); err != nil {
		return time.Time{}, fmt.Errorf("invalid timestampValue: %v", err)
	}
	if ts.Seconds == nil && ts.Nanos == nil {
		return time.Time{}, fmt.Errorf("invalid timestampValue: object carries neither seconds nor nanos")
	}

	var secs, nanos int64
	if ts.Seconds != nil {
		n, err := ts.Seconds.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestampValue seconds %q: %v", *ts.Seconds, err)
		}
		secs = n
	}
	if ts.Nanos != nil {
		nanos = int64(*ts.Nanos)
	}
	return time.Unix(secs, nanos).UTC(), nil
}

// DeepEqual reports structural equality of two values. Unlike IEEE
// comparison it treats NaN as equal to NaN, and timestamps are normalized
// to millisecond precision before comparing so the string and
// seconds/nanos wire encodings of one instant compare equal.
func DeepEqual(a Value, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case Null:
		return true
	case Boolean:
		return a.Bool == b.Bool
	case Integer:
		return a.Int == b.Int
	case Double:
		if math.IsNaN(a.Dbl) && math.IsNaN(b.Dbl) {
			return true
		}
		return a.Dbl == b.Dbl
	case Timestamp:
		return toMillis(a.Time) == toMillis(b.Time)
	case String, Reference:
		return a.Str == b.Str
	case Bytes:
		return bytes.Equal(a.Blob, b.Blob)
	case GeoPoint:
		return a.Geo.Latitude == b.Geo.Latitude && a.Geo.Longitude == b.Geo.Longitude
	case Array:
		if len(a.Arr) != len(b.Arr) {
			return false
		}
		for i := range a.Arr {
			if !DeepEqual(a.Arr[i], b.Arr[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(a.Obj) != len(b.Obj) {
			return false
		}
		for k, av := range a.Obj {
			bv, ok := b.Obj[k]
			if !ok || !DeepEqual(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// Copy returns a structural deep copy. Arrays, maps and byte slices are
// copied recursively, scalars by value.
func Copy(v Value) Value {
	switch v.Kind {
	case Bytes:
		out := v
		out.Blob = append([]byte(nil), v.Blob...)
		return out
	case Array:
		out := v
		out.Arr = make([]Value, len(v.Arr))
		for i, el := range v.Arr {
			out.Arr[i] = Copy(el)
		}
		return out
	case Map:
		out := v
		out.Obj = CopyFields(v.Obj)
		return out
	default:
		return v
	}
}

// CopyFields deep-copies a field map.
func CopyFields(fields map[string]Value) map[string]Value {
	if fields == nil {
		return nil
	}
	out := make(map[string]Value, len(fields))
	for k, v := range fields {
		out[k] = Copy(v)
	}
	return out
}

//IsNumber True for integer and double values.
func (v Value) IsNumber() bool {
	return v.Kind == Integer || v.Kind == Double
}

//Float Numeric value as float64. Zero for non-numbers.
func (v Value) Float() float64 {
	switch v.Kind {
	case Integer:
		return float64(v.Int)
	case Double:
		return v.Dbl
	default:
		return 0
	}
}
