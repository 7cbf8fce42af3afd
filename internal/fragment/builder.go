package fragment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/sqlpipe/internal/sqlesc"
)

// Insert holds the escaped column list and value tuples of a multi-row
// INSERT. The zero value is empty and must not be turned into a statement.
type Insert struct {
	Fields []string // escaped column identifiers
	Values []string // escaped tuples, each "(v1, v2, ...)"
}

// Empty reports whether there is nothing to insert.
func (i Insert) Empty() bool {
	return len(i.Fields) == 0 || len(i.Values) == 0
}

// InsertMode selects how the INSERT treats conflicting rows.
type InsertMode int

const (
	// InsertPlain fails on any constraint violation.
	InsertPlain InsertMode = iota
	// InsertIgnore skips rows that violate a unique or exclusion constraint.
	InsertIgnore
)

// ParseInsertMode maps "", "plain", "ignore" to an InsertMode.
func ParseInsertMode(s string) (InsertMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain":
		return InsertPlain, nil
	case "ignore":
		return InsertIgnore, nil
	default:
		return InsertPlain, ValidationError{Field: "mode", Value: s, Message: "must be plain or ignore"}
	}
}

// PrepareInsert resolves fields against rows and escapes every value and
// column name. Empty rows or fields yield an empty Insert.
func PrepareInsert(fields []Field, rows []Record, params Params) Insert {
	if len(fields) == 0 || len(rows) == 0 {
		return Insert{}
	}

	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = sqlesc.Column(f.Name)
	}

	values := make([]string, len(rows))
	lits := make([]string, len(fields))
	for r, row := range rows {
		for i, f := range fields {
			lits[i] = sqlesc.Literal(f.Resolve(row, params))
		}
		values[r] = "(" + strings.Join(lits, ", ") + ")"
	}

	return Insert{Fields: cols, Values: values}
}

// PrepareRows escapes positional CSV rows under header. Every row must have
// exactly one cell per header column. When emptyAsNull is set, empty cells
// become NULL instead of ''.
func PrepareRows(header []string, rows [][]string, emptyAsNull bool) (Insert, error) {
	if len(header) == 0 {
		return Insert{}, ValidationError{Field: "header", Message: "header row is empty"}
	}
	for i, h := range header {
		if strings.TrimSpace(h) == "" {
			return Insert{}, ValidationError{
				Field:   fmt.Sprintf("header[%d]", i),
				Message: "column name is blank",
			}
		}
	}
	if len(rows) == 0 {
		return Insert{}, nil
	}

	values := make([]string, len(rows))
	lits := make([]string, len(header))
	for r, row := range rows {
		if len(row) != len(header) {
			return Insert{}, ValidationError{
				Field:   fmt.Sprintf("row %d", r+1),
				Value:   strings.Join(row, ","),
				Message: fmt.Sprintf("has %d columns, header has %d", len(row), len(header)),
			}
		}
		for i, cell := range row {
			if emptyAsNull && cell == "" {
				lits[i] = "NULL"
				continue
			}
			lits[i] = sqlesc.Literal(cell)
		}
		values[r] = "(" + strings.Join(lits, ", ") + ")"
	}

	return Insert{Fields: sqlesc.Columns(header), Values: values}, nil
}

// InsertStatement renders a complete INSERT for ins into table.
func InsertStatement(table string, ins Insert, mode InsertMode) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlesc.Identifier(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(ins.Fields, ", "))
	b.WriteString(") VALUES ")
	b.WriteString(strings.Join(ins.Values, ", "))
	if mode == InsertIgnore {
		b.WriteString(" ON CONFLICT DO NOTHING")
	}
	return b.String()
}

// PrepareUpdate returns one escaped assignment per field, resolved against
// the first row only.
func PrepareUpdate(fields []Field, rows []Record, params Params) ([]string, error) {
	if len(rows) == 0 {
		return nil, ValidationError{Field: "rows", Message: "no values to update"}
	}

	row := rows[0]
	assignments := make([]string, len(fields))
	for i, f := range fields {
		assignments[i] = sqlesc.Column(f.Name) + " = " + sqlesc.Literal(f.Resolve(row, params))
	}
	return assignments, nil
}

// ParseSetter renders m as a comma-joined assignment list. Keys are sorted.
// An empty map yields "".
func ParseSetter(m map[string]any) string {
	return joinSorted(m, ", ", func(k string, v any) string {
		return sqlesc.Column(k) + " = " + sqlesc.Literal(v)
	})
}

// ParseWhere renders m as an AND-joined equality predicate. Nil values
// become IS NULL. An empty map yields "".
func ParseWhere(m map[string]any) string {
	return joinSorted(m, " AND ", func(k string, v any) string {
		if v == nil {
			return sqlesc.Column(k) + " IS NULL"
		}
		return sqlesc.Column(k) + " = " + sqlesc.Literal(v)
	})
}

func joinSorted(m map[string]any, sep string, render func(string, any) string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = render(k, m[k])
	}
	return strings.Join(parts, sep)
}

// UpdateStatement renders an UPDATE of table. where must be non-empty.
func UpdateStatement(table string, assignments []string, where string) (string, error) {
	if len(assignments) == 0 {
		return "", ValidationError{Field: "set", Message: "no columns to update"}
	}
	if strings.TrimSpace(where) == "" {
		return "", ValidationError{Field: "where", Message: "refusing to update without a condition"}
	}
	return "UPDATE " + sqlesc.Identifier(table) +
		" SET " + strings.Join(assignments, ", ") +
		" WHERE " + where, nil
}
