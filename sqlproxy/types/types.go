package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// --- JSON structures for primary/replica communication ---

const (
	CommandQuery     = "query"
	CommandPrepare   = "prepare"
	CommandExecute   = "execute"
	CommandCloseStmt = "close_stmt"
)

// Headers sent with a snapshot response.
const (
	HeaderGeneration = "X-Libsql-Generation"
	HeaderChecksum   = "X-Libsql-Checksum"
)

// SQLRequest defines the structure for requests sent to the primary.
type SQLRequest struct {
	Command string  `json:"command"`
	SQL     string  `json:"sql,omitempty"`
	Args    []Value `json:"args,omitempty"`
	StmtID  string  `json:"stmt_id,omitempty"` // Set for 'execute' and 'close_stmt'
}

// Response is returned for every command. Only the fields relevant to the
// command are populated; Error is non-empty when the primary rejected it.
type Response struct {
	StmtID          string    `json:"stmt_id,omitempty"` // For 'prepare', the primary's statement handle
	Columns         []string  `json:"columns,omitempty"`
	Rows            [][]Value `json:"rows,omitempty"`
	LastInsertRowID int64     `json:"last_insert_rowid,omitempty"`
	RowsAffected    int64     `json:"rows_affected,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Value is a typed cell or argument. Integers travel as strings so they keep
// full 64-bit precision; blobs are base64. Text that is not valid UTF-8 would
// be rewritten by JSON, so it travels as base64 too. NaN and infinities have
// no JSON number form and are sent as strings.
//
//	{"type":"integer","value":"42"}
//	{"type":"float","value":1.5}
//	{"type":"float","value":"+Inf"}
//	{"type":"text","value":"abc"}
//	{"type":"text","base64":"/2E="}
//	{"type":"blob","base64":"AAE="}
//	{"type":"null"}
type Value struct {
	Name   string          `json:"name,omitempty"`
	Type   string          `json:"type"`
	Value  json.RawMessage `json:"value,omitempty"`
	Base64 string          `json:"base64,omitempty"`
}

const (
	TypeNull    = "null"
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeText    = "text"
	TypeBlob    = "blob"
)

// NewValue encodes a plain Go value (nil, int64, float64, string, []byte).
// Anything else is sent as its text form.
func NewValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{Type: TypeNull}
	case int64:
		raw, _ := json.Marshal(strconv.FormatInt(x, 10))
		return Value{Type: TypeInteger, Value: raw}
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			raw, _ := json.Marshal(strconv.FormatFloat(x, 'g', -1, 64))
			return Value{Type: TypeFloat, Value: raw}
		}
		raw, _ := json.Marshal(x)
		return Value{Type: TypeFloat, Value: raw}
	case string:
		return textValue(x)
	case []byte:
		return Value{Type: TypeBlob, Base64: base64.StdEncoding.EncodeToString(x)}
	}
	return textValue(fmt.Sprint(v))
}

func textValue(s string) Value {
	if !utf8.ValidString(s) {
		return Value{Type: TypeText, Base64: base64.StdEncoding.EncodeToString([]byte(s))}
	}
	raw, _ := json.Marshal(s)
	return Value{Type: TypeText, Value: raw}
}

// Decode returns the plain Go value (nil, int64, float64, string or []byte).
func (v Value) Decode() (any, error) {
	switch v.Type {
	case TypeNull, "":
		return nil, nil
	case TypeInteger:
		var s string
		if err := json.Unmarshal(v.Value, &s); err != nil {
			return nil, fmt.Errorf("decode integer: %w", err)
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode integer: %w", err)
		}
		return i, nil
	case TypeFloat:
		if len(v.Value) > 0 && v.Value[0] == '"' {
			var s string
			if err := json.Unmarshal(v.Value, &s); err != nil {
				return nil, fmt.Errorf("decode float: %w", err)
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("decode float: %w", err)
			}
			return f, nil
		}
		var f float64
		if err := json.Unmarshal(v.Value, &f); err != nil {
			return nil, fmt.Errorf("decode float: %w", err)
		}
		return f, nil
	case TypeText:
		if v.Base64 != "" {
			b, err := base64.StdEncoding.DecodeString(v.Base64)
			if err != nil {
				return nil, fmt.Errorf("decode text: %w", err)
			}
			return string(b), nil
		}
		var s string
		if err := json.Unmarshal(v.Value, &s); err != nil {
			return nil, fmt.Errorf("decode text: %w", err)
		}
		return s, nil
	case TypeBlob:
		b, err := base64.StdEncoding.DecodeString(v.Base64)
		if err != nil {
			return nil, fmt.Errorf("decode blob: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown value type %q", v.Type)
}

// Checksum formats an xxh3 hash the way snapshot headers carry it.
func Checksum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}
