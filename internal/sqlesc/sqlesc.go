// Package sqlesc escapes identifiers and literal values for PostgreSQL.
//
// Literal output is embedded directly in generated INSERT and UPDATE text,
// so a batch of any size is a single statement. It assumes
// standard_conforming_strings is on. Interpolate renders a parameterized
// statement with its arguments for errors and debug logs.
package sqlesc

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Identifier quotes a table or column name. Dotted names are treated as
// schema-qualified: "public.orders" becomes "public"."orders".
func Identifier(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// Column quotes a single column name without splitting on dots.
func Column(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Columns quotes each name with Column.
func Columns(names []string) []string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = Column(n)
	}
	return quoted
}

// Literal renders v as a SQL literal.
func Literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return float(float64(x), 32)
	case float64:
		return float(x, 64)
	case string:
		return quote(x)
	case []byte:
		return `'\x` + hex.EncodeToString(x) + `'`
	case time.Time:
		return quote(x.Format("2006-01-02 15:04:05.999999999Z07:00"))
	case [16]byte:
		return quote(uuid.UUID(x).String())
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return quote(fmt.Sprint(v))
		}
		return Literal(dv)
	case fmt.Stringer:
		return quote(x.String())
	}

	switch v.(type) {
	case map[string]any, []any, []string, []int, []int64, []float64:
		if b, err := json.Marshal(v); err == nil {
			return quote(string(b))
		}
	}
	return quote(fmt.Sprint(v))
}

func float(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "'NaN'"
	case math.IsInf(f, 1):
		return "'Infinity'"
	case math.IsInf(f, -1):
		return "'-Infinity'"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

func quote(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Interpolate substitutes $N placeholders in sql with literal renderings of
// args. Placeholders inside quoted strings, quoted identifiers and comments
// are left alone, as are placeholders without a matching argument.
func Interpolate(sql string, args []any) string {
	if len(args) == 0 {
		return sql
	}

	var b strings.Builder
	b.Grow(len(sql) + 16*len(args))

	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'' || c == '"':
			end := skipQuoted(sql, i, c)
			b.WriteString(sql[i:end])
			i = end
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				end = len(sql) - i
			}
			b.WriteString(sql[i : i+end])
			i += end
		case c == '$' && i+1 < len(sql) && isDigit(sql[i+1]):
			j := i + 1
			for j < len(sql) && isDigit(sql[j]) {
				j++
			}
			n, err := strconv.Atoi(sql[i+1 : j])
			if err != nil || n < 1 || n > len(args) {
				b.WriteString(sql[i:j])
			} else {
				lit := Literal(args[n-1])
				if strings.HasPrefix(lit, "-") {
					lit = "(" + lit + ")"
				}
				b.WriteString(lit)
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String()
}

// skipQuoted returns the index just past the quoted run starting at i.
// A doubled quote character is an escaped quote.
func skipQuoted(s string, i int, q byte) int {
	j := i + 1
	for j < len(s) {
		if s[j] == q {
			if j+1 < len(s) && s[j+1] == q {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(s)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
