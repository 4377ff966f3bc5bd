package database

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/jmoiron/sqlx/reflectx"
)

// FetchMode selects the shape rows are returned in. The numeric values match
// the PDO constants so that modes persisted or passed through by callers of
// that API keep their meaning.
type FetchMode int

const (
	// FetchDefault uses the statement's current mode (see SetFetchMode).
	FetchDefault FetchMode = 0
	// FetchAssoc returns map[string]any keyed by column name.
	FetchAssoc FetchMode = 2
	// FetchNum returns []any in column order.
	FetchNum FetchMode = 3
	// FetchBoth returns a BothRow: every value reachable by name and by position.
	FetchBoth FetchMode = 4
	// FetchObj returns an *Object.
	FetchObj FetchMode = 5
	// FetchNamed is the same shape as FetchAssoc.
	FetchNamed FetchMode = 11
)

func (m FetchMode) String() string {
	switch m {
	case FetchDefault:
		return "default"
	case FetchAssoc:
		return "assoc"
	case FetchNum:
		return "num"
	case FetchBoth:
		return "both"
	case FetchObj:
		return "obj"
	case FetchNamed:
		return "named"
	}
	return fmt.Sprintf("FetchMode(%d)", int(m))
}

// ParseFetchMode accepts the names returned by String.
func ParseFetchMode(s string) (FetchMode, error) {
	for _, m := range []FetchMode{FetchAssoc, FetchNum, FetchBoth, FetchObj, FetchNamed} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFetchMode, s)
}

func (m FetchMode) valid() bool {
	switch m {
	case FetchAssoc, FetchNum, FetchBoth, FetchObj, FetchNamed:
		return true
	}
	return false
}

// Orientation is the cursor direction for FetchWith. Only OrientNext is
// supported: the row buffer is consumed destructively.
type Orientation int

const (
	OrientNext Orientation = iota
	OrientPrior
	OrientFirst
	OrientLast
	OrientAbs
	OrientRel
)

// BothRow is the FetchBoth shape: the same row exposed by column name and by
// 0-based position. When two columns share a name, Named holds the last one
// while Positional keeps both.
type BothRow struct {
	Named      map[string]any
	Positional []any
}

// Get looks a value up by column name (string) or position (int).
func (r BothRow) Get(key any) (any, bool) {
	switch k := key.(type) {
	case string:
		v, ok := r.Named[k]
		return v, ok
	case int:
		if k < 0 || k >= len(r.Positional) {
			return nil, false
		}
		return r.Positional[k], true
	}
	return nil, false
}

// Object is the FetchObj shape: a row whose columns are read as fields.
type Object struct {
	columns []string
	values  []any
}

// Get returns the value of the named column.
func (o *Object) Get(name string) (any, bool) {
	for i, c := range o.columns {
		if c == name {
			return o.values[i], true
		}
	}
	return nil, false
}

func (o *Object) Columns() []string {
	return slicesClone(o.columns)
}

// Map returns the row keyed by column name.
func (o *Object) Map() map[string]any {
	return assocRow(o.columns, o.values)
}

var objectMapper = reflectx.NewMapperFunc("db", strings.ToLower)

// Scan copies the row into the struct pointed to by dest, matching columns to
// fields the way sqlx does: the `db` tag, else the lower-cased field name.
// Columns without a matching field are skipped.
func (o *Object) Scan(dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.New("database: Scan destination must be a non-nil pointer")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("database: Scan destination must point to a struct, got %s", v.Kind())
	}
	traversals := objectMapper.TraversalsByName(v.Type(), o.columns)
	for i, index := range traversals {
		if len(index) == 0 {
			continue
		}
		field := reflectx.FieldByIndexes(v, index)
		if err := assign(field, o.values[i]); err != nil {
			return fmt.Errorf("database: column %q: %w", o.columns[i], err)
		}
	}
	return nil
}

func assign(field reflect.Value, value any) error {
	if scanner, ok := field.Addr().Interface().(sql.Scanner); ok {
		return scanner.Scan(value)
	}
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := assign(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	src := reflect.ValueOf(value)
	switch {
	case src.Type().AssignableTo(field.Type()):
		field.Set(src)
	case field.Kind() == reflect.String:
		if b, ok := value.([]byte); ok {
			field.SetString(string(b))
		} else {
			field.SetString(fmt.Sprint(value))
		}
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Uint8:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot store %T in %s", value, field.Type())
		}
		field.SetBytes([]byte(s))
	case isNumber(src.Kind()) && isNumber(field.Kind()):
		field.Set(src.Convert(field.Type()))
	case src.Kind() == reflect.Int64 && field.Kind() == reflect.Bool:
		field.SetBool(src.Int() != 0)
	default:
		return fmt.Errorf("cannot store %T in %s", value, field.Type())
	}
	return nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// project shapes one row. mode must already be valid.
func project(mode FetchMode, columns []string, row []any) any {
	switch mode {
	case FetchAssoc, FetchNamed:
		return assocRow(columns, row)
	case FetchNum:
		return slicesClone(row)
	case FetchObj:
		return &Object{columns: columns, values: slicesClone(row)}
	}
	return BothRow{Named: assocRow(columns, row), Positional: slicesClone(row)}
}

func assocRow(columns []string, row []any) map[string]any {
	m := make(map[string]any, len(columns))
	for i, c := range columns {
		if i < len(row) {
			m[c] = row[i]
		}
	}
	return m
}

func slicesClone[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
