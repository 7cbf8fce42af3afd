package csvcodec

import (
	"bufio"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Writer encodes records as CSV. Strings are always double-quoted, numbers
// and booleans are written bare, and nil is an empty cell. Byte slices use
// the PostgreSQL bytea hex form (\x...), which reads back as the same bytes.
type Writer struct {
	w     *bufio.Writer
	comma byte
	rows  int64
}

// NewWriter returns a Writer buffering into w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), comma: ','}
}

// WriteHeader writes the column names, each double-quoted.
func (w *Writer) WriteHeader(columns []string) error {
	for i, c := range columns {
		if i > 0 {
			w.w.WriteByte(w.comma)
		}
		w.writeQuoted(c)
	}
	_, err := w.w.WriteString("\n")
	return err
}

// Write encodes one record.
func (w *Writer) Write(values []any) error {
	// A single NULL cell would be an empty line, which readers skip.
	if len(values) == 1 && isNull(values[0]) {
		w.writeQuoted("")
		if _, err := w.w.WriteString("\n"); err != nil {
			return err
		}
		w.rows++
		return nil
	}

	for i, v := range values {
		if i > 0 {
			w.w.WriteByte(w.comma)
		}
		if err := w.writeValue(v); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns the number of records written, excluding the header.
func (w *Writer) Rows() int64 { return w.rows }

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

func (w *Writer) writeValue(v any) error {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		w.writeQuoted(x)
	case bool:
		w.w.WriteString(strconv.FormatBool(x))
	case int:
		w.w.WriteString(strconv.Itoa(x))
	case int8, int16, int32, int64:
		w.w.WriteString(fmt.Sprint(x))
	case uint, uint8, uint16, uint32, uint64:
		w.w.WriteString(fmt.Sprint(x))
	case float32:
		w.w.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case float64:
		w.w.WriteString(strconv.FormatFloat(x, 'f', -1, 64))
	case time.Time:
		w.writeQuoted(x.Format(time.RFC3339Nano))
	case []byte:
		w.writeQuoted(`\x` + hex.EncodeToString(x))
	case [16]byte:
		w.writeQuoted(uuid.UUID(x).String())
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return err
		}
		return w.writeValue(dv)
	case fmt.Stringer:
		w.writeQuoted(x.String())
	default:
		b, err := json.Marshal(x)
		if err != nil {
			w.writeQuoted(fmt.Sprint(x))
			return nil
		}
		w.writeQuoted(string(b))
	}
	return nil
}

func (w *Writer) writeQuoted(s string) {
	w.w.WriteByte('"')
	w.w.WriteString(strings.ReplaceAll(s, `"`, `""`))
	w.w.WriteByte('"')
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	if dv, ok := v.(driver.Valuer); ok {
		inner, err := dv.Value()
		return err == nil && isNull(inner)
	}
	return false
}
