package extractor

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVOptions controls how CSV files are read.
type CSVOptions struct {
	// Delimiter defaults to comma.
	Delimiter rune
	// Headers is "auto", "true" or "false". "auto" and "true" treat the
	// first record as the header row; "false" produces colN labels.
	Headers string
}

func (o CSVOptions) delimiter() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

func (o CSVOptions) hasHeaders() bool {
	return strings.ToLower(o.Headers) != "false"
}

// ReadCSVRows reads all records from a CSV file (gzipped or not). headers is
// nil when the file is read without a header row.
func ReadCSVRows(path string, opts CSVOptions) (headers []string, rows [][]string, err error) {
	r, closeFn, err := openMaybeGzip(path)
	if err != nil {
		return nil, nil, err
	}
	defer closeFn()

	cr := csv.NewReader(r)
	cr.Comma = opts.delimiter()
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	if opts.hasHeaders() {
		return records[0], records[1:], nil
	}
	return nil, records, nil
}

// CSVRowText renders one row as "header: value | header: value" pairs, or
// "colN: value" pairs when headers is nil. This text is what gets hashed and
// chunked for a row pseudo-document.
func CSVRowText(headers, row []string) string {
	parts := make([]string, 0, len(row))
	for i, v := range row {
		label := fmt.Sprintf("col%d", i+1)
		if i < len(headers) {
			label = strings.TrimSpace(headers[i])
		}
		parts = append(parts, fmt.Sprintf("%s: %s", label, v))
	}
	return collapseWhitespace(strings.Join(parts, " | "))
}

// ExtractCSV renders a whole CSV file as one document: a header line followed
// by one rendered line per row.
func ExtractCSV(path string) (string, error) {
	headers, rows, err := ReadCSVRows(path, CSVOptions{Headers: "auto"})
	if err != nil {
		return "", err
	}
	var lines []string
	if len(headers) > 0 {
		lines = append(lines, "Headers: "+strings.Join(headers, ", "))
	}
	for _, row := range rows {
		lines = append(lines, CSVRowText(headers, row))
	}
	return strings.Join(lines, "\n"), nil
}

// MatchCSVRow applies key=value equality filters against a row; every filter
// must match. Rows from headerless files never match a non-empty filter set.
func MatchCSVRow(filters map[string]string, headers, row []string) bool {
	if len(filters) == 0 {
		return true
	}
	if len(headers) == 0 {
		return false
	}
	byName := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(row) {
			byName[strings.TrimSpace(h)] = row[i]
		}
	}
	for k, v := range filters {
		if byName[k] != v {
			return false
		}
	}
	return true
}

func openMaybeGzip(path string) (io.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return gz, func() error {
			gz.Close()
			return f.Close()
		}, nil
	}
	return f, f.Close, nil
}
