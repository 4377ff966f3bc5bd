package database

import (
	"maps"
	"slices"
	"strings"

	"github.com/ineersa/libsqlshim/libsql"
)

// ParamType is the caller's type hint for a bound value. It is accepted for
// compatibility only: the type sent to the engine is always inferred from
// the value by libsql.Coerce.
type ParamType int

const (
	ParamNull ParamType = iota
	ParamInt
	ParamStr
	ParamLOB
	ParamBool
)

// bindings holds the values bound to one statement, keyed by position or by
// name. Rebinding a key replaces its value.
type bindings struct {
	positional map[int]libsql.Value
	named      map[string]libsql.Value
}

func (b *bindings) set(pos int, v libsql.Value) {
	if b.positional == nil {
		b.positional = make(map[int]libsql.Value)
	}
	b.positional[pos] = v
}

func (b *bindings) setNamed(name string, v libsql.Value) {
	if b.named == nil {
		b.named = make(map[string]libsql.Value)
	}
	v.Name = name
	b.named[name] = v
}

// values projects the bindings to the ordered sequence sent to the engine:
// positional values in ascending key order, then named values sorted by name.
// The keys themselves are dropped, so positional keys must follow the order
// of the placeholders in the query.
func (b *bindings) values() []libsql.Value {
	out := make([]libsql.Value, 0, len(b.positional)+len(b.named))
	for _, pos := range slices.Sorted(maps.Keys(b.positional)) {
		out = append(out, b.positional[pos])
	}
	for _, name := range slices.Sorted(maps.Keys(b.named)) {
		out = append(out, b.named[name])
	}
	return out
}

// trimParamName strips the placeholder prefix so ":id", "@id", "$id" and "id"
// all bind the same parameter.
func trimParamName(name string) string {
	return strings.TrimLeft(name, ":@$")
}
