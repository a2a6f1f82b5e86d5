package value

import (
	"fmt"
	"time"
)

// Ref is a native stand-in for the reference variant, so that encoding can
// tell an absolute resource path apart from an ordinary string.
type Ref string

// Encode converts a native Go value into its tagged wire form.
// Supported native types: nil, bool, all integer widths, float64, string,
// []byte, time.Time, Ref, LatLng, []interface{} and map[string]interface{}.
func Encode(native interface{}) (Value, error) {
	switch n := native.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolOf(n), nil
	case int:
		return IntOf(int64(n)), nil
	case int32:
		return IntOf(int64(n)), nil
	case int64:
		return IntOf(n), nil
	case float64:
		return DoubleOf(n), nil
	case string:
		return StringOf(n), nil
	case []byte:
		return BytesOf(n), nil
	case time.Time:
		return TimeOf(n), nil
	case Ref:
		return ReferenceOf(string(n)), nil
	case LatLng:
		return GeoOf(n.Latitude, n.Longitude), nil
	case []interface{}:
		arr := make([]Value, 0, len(n))
		for i, el := range n {
			v, err := Encode(el)
			if err != nil {
				return Value{}, fmt.Errorf("array element %d: %v", i, err)
			}
			arr = append(arr, v)
		}
		return ArrayOf(arr...), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(n))
		for k, el := range n {
			v, err := Encode(el)
			if err != nil {
				return Value{}, fmt.Errorf("map field %q: %v", k, err)
			}
			fields[k] = v
		}
		return MapOf(fields), nil
	default:
		return Value{}, fmt.Errorf("cannot encode native value of type %T", native)
	}
}

// Decode converts a tagged wire value back into its native Go form.
func Decode(v Value) (interface{}, error) {
	switch v.Kind {
	case Null:
		return nil, nil
	case Boolean:
		return v.Bool, nil
	case Integer:
		return v.Int, nil
	case Double:
		return v.Dbl, nil
	case Timestamp:
		return v.Time, nil
	case String:
		return v.Str, nil
	case Bytes:
		return append([]byte(nil), v.Blob...), nil
	case Reference:
		return Ref(v.Str), nil
	case GeoPoint:
		return v.Geo, nil
	case Array:
		out := make([]interface{}, 0, len(v.Arr))
		for i, el := range v.Arr {
			native, err := Decode(el)
			if err != nil {
				return nil, fmt.Errorf("array element %d: %v", i, err)
			}
			out = append(out, native)
		}
		return out, nil
	case Map:
		out := make(map[string]interface{}, len(v.Obj))
		for k, el := range v.Obj {
			native, err := Decode(el)
			if err != nil {
				return nil, fmt.Errorf("map field %q: %v", k, err)
			}
			out[k] = native
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot decode value of kind %d", v.Kind)
	}
}

// MustEncode is Encode for values known statically to be encodable. It is
// meant for tests and fixtures.
func MustEncode(native interface{}) Value {
	v, err := Encode(native)
	if err != nil {
		panic(err)
	}
	return v
}
