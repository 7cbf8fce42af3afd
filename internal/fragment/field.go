// Package fragment builds escaped SQL fragments for INSERT and UPDATE
// statements from field mappings, keyed rows and a parameter bag.
//
// Every value that reaches statement text passes through sqlesc.Literal and
// every destination column through sqlesc.Column. The functions here are
// pure: they never touch a connection.
package fragment

import (
	"fmt"
	"sort"
)

// Record is a keyed row of values.
type Record map[string]any

// Params is an out-of-band value bag that fields can read from instead of
// the row.
type Params map[string]any

// FieldKind selects where a Field reads its value from.
type FieldKind int

const (
	// FieldName reads row[Name].
	FieldName FieldKind = iota
	// FieldKey reads row[Source] and writes it to column Name.
	FieldKey
	// FieldParam reads params[Source] and writes it to column Name.
	FieldParam
)

func (k FieldKind) String() string {
	switch k {
	case FieldName:
		return "name"
	case FieldKey:
		return "key"
	case FieldParam:
		return "param"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// Field describes how one destination column gets its value.
type Field struct {
	Name   string
	Kind   FieldKind
	Source string
}

// Name returns a field whose value is read from the row under the same name.
func Name(name string) Field {
	return Field{Name: name, Kind: FieldName, Source: name}
}

// Key returns a field whose value is read from the row under key.
func Key(name, key string) Field {
	return Field{Name: name, Kind: FieldKey, Source: key}
}

// Param returns a field whose value is read from the parameter bag.
func Param(name, param string) Field {
	return Field{Name: name, Kind: FieldParam, Source: param}
}

// Fields returns a FieldName field for each name.
func Fields(names ...string) []Field {
	fields := make([]Field, len(names))
	for i, n := range names {
		fields[i] = Name(n)
	}
	return fields
}

// Resolve returns the field's value. Missing values resolve to nil, which
// renders as NULL.
func (f Field) Resolve(row Record, params Params) any {
	switch f.Kind {
	case FieldParam:
		return params[f.Source]
	case FieldKey:
		return row[f.Source]
	default:
		return row[f.Name]
	}
}

// FieldDef is the loose, decoded form of a field mapping as it appears in
// JSON or YAML job descriptions.
type FieldDef struct {
	Field string `json:"field"`
	Key   string `json:"key,omitempty"`
	Param string `json:"param,omitempty"`
}

// NormalizeFields converts loose definitions into Fields. When both Param
// and Key are set, Param wins.
func NormalizeFields(defs []FieldDef) ([]Field, error) {
	fields := make([]Field, len(defs))
	seen := make(map[string]bool, len(defs))

	for i, d := range defs {
		if d.Field == "" {
			return nil, ValidationError{
				Field:   fmt.Sprintf("fields[%d]", i),
				Message: "destination field name is required",
			}
		}
		if seen[d.Field] {
			return nil, ValidationError{
				Field:   d.Field,
				Value:   d.Field,
				Message: "destination field declared more than once",
			}
		}
		seen[d.Field] = true

		switch {
		case d.Param != "":
			fields[i] = Param(d.Field, d.Param)
		case d.Key != "":
			fields[i] = Key(d.Field, d.Key)
		default:
			fields[i] = Name(d.Field)
		}
	}

	return fields, nil
}

// ObjectFields returns a FieldName field for every key of obj, sorted so
// that the generated column order is stable.
func ObjectFields(obj Record) []Field {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Fields(keys...)
}

// ParseValues resolves every field against every row and returns new rows
// keyed by destination field name. No escaping is applied.
func ParseValues(fields []Field, rows []Record, params Params) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		rec := make(Record, len(fields))
		for _, f := range fields {
			rec[f.Name] = f.Resolve(row, params)
		}
		out[i] = rec
	}
	return out
}
