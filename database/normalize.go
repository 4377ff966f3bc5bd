package database

import "regexp"

// qualifiedAssignment matches a quoted, table-qualified column compared or
// assigned to a placeholder: `,"users"."name" = ?`.
var qualifiedAssignment = regexp.MustCompile(`(\s|,)"[a-zA-Z0-9_]+"\."([a-zA-Z0-9_]+)"\s*=\s*\?`)

// NormalizeQuery rewrites `"table"."column" = ?` to `"column" = ?`, since
// the engine rejects qualified column names on the left of an UPDATE ... SET
// assignment. Text that does not contain the pattern is returned unchanged,
// and the placeholders are never added, removed or reordered. The separator
// before the column is kept so comma-joined assignments stay comma-joined.
func NormalizeQuery(query string) string {
	return qualifiedAssignment.ReplaceAllString(query, `${1}"${2}" = ?`)
}
