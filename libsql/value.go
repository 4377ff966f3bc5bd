package libsql

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Type is the engine-native category a bound value is sent as.
type Type int

const (
	TypeNull Type = iota
	TypeInteger
	TypeFloat
	TypeText
	TypeBlob
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeText:
		return "text"
	case TypeBlob:
		return "blob"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "null":
		return TypeNull, nil
	case "integer":
		return TypeInteger, nil
	case "float":
		return TypeFloat, nil
	case "text":
		return TypeText, nil
	case "blob":
		return TypeBlob, nil
	}
	return TypeNull, fmt.Errorf("libsql: unknown value type %q", s)
}

// Blob marks a byte slice that must be bound as a blob. Plain []byte is
// treated the same way; the named type exists so callers can be explicit.
type Blob []byte

// Value is a bound parameter: exactly one of the payload fields is meaningful,
// selected by Type. Name is set for named parameters (":name", "@name").
type Value struct {
	Name  string
	Type  Type
	Int   int64
	Float float64
	Text  string
	Blob  []byte
}

// Any returns the payload as a plain Go value (nil, int64, float64, string or []byte).
func (v Value) Any() any {
	switch v.Type {
	case TypeInteger:
		return v.Int
	case TypeFloat:
		return v.Float
	case TypeText:
		return v.Text
	case TypeBlob:
		return v.Blob
	}
	return nil
}

// Arg returns the value in the form database/sql expects.
func (v Value) Arg() any {
	if v.Name != "" {
		return sql.Named(v.Name, v.Any())
	}
	return v.Any()
}

func Null() Value { return Value{Type: TypeNull} }
func Integer(i int64) Value { return Value{Type: TypeInteger, Int: i} }
func Float(f float64) Value { return Value{Type: TypeFloat, Float: f} }
func Text(s string) Value { return Value{Type: TypeText, Text: s} }
func BlobValue(b []byte) Value { return Value{Type: TypeBlob, Blob: b} }

// Coerce maps any host value to exactly one bind type. It never fails:
// kinds the engine has no native type for are sent as text.
//
// Order of precedence: null, boolean/integer, float, blob, text.
func Coerce(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case bool:
		if x {
			return Integer(1)
		}
		return Integer(0)
	case int:
		return Integer(int64(x))
	case int8:
		return Integer(int64(x))
	case int16:
		return Integer(int64(x))
	case int32:
		return Integer(int64(x))
	case int64:
		return Integer(x)
	case uint:
		return coerceUint(uint64(x))
	case uint8:
		return Integer(int64(x))
	case uint16:
		return Integer(int64(x))
	case uint32:
		return Integer(int64(x))
	case uint64:
		return coerceUint(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case Blob:
		return BlobValue([]byte(x))
	case []byte:
		if x == nil {
			return Null()
		}
		return BlobValue(x)
	case string:
		return Text(x)
	case time.Time:
		return Text(x.Format(time.RFC3339Nano))
	case driver.Valuer:
		if isNilPointer(v) {
			return Null()
		}
		dv, err := x.Value()
		if err != nil {
			return Text(fmt.Sprint(v))
		}
		return Coerce(dv)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return Coerce(rv.Elem().Interface())
	case reflect.Bool:
		return Coerce(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Integer(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return coerceUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float())
	case reflect.String:
		return Text(rv.String())
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return BlobValue(rv.Bytes())
		}
	}
	return Text(fmt.Sprint(v))
}

func coerceUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Text(fmt.Sprint(u))
	}
	return Integer(int64(u))
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
