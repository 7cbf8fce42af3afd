// Package csvcodec reads and writes the delimited text files moved in and
// out of the database.
//
// Reading is lenient: a leading BOM is dropped, invalid bytes are replaced
// with '?' and ragged rows are returned as-is for the caller to reject.
// Rows of blank cells are data (an exported all-NULL row looks like one) and
// are kept. Writing
// always double-quotes string values so that an exported file can be
// imported without guessing which cells were text.
package csvcodec

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"
)

// Parse decodes a whole CSV document. The first returned record is the
// header. Every other record is returned in file order, blank or not.
func Parse(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = sanitizeUTF8(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return records, nil
}

// ReadAll reads r to the end and parses it.
func ReadAll(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return Parse(data)
}

// ReadFile opens path (gunzipping a .gz file) and parses it.
func ReadFile(path string) ([][]string, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAll(f)
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteByte(replacement)
		} else {
			buf.Write(data[:size])
		}
		data = data[size:]
	}
	return buf.Bytes()
}
