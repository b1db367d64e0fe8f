// Package tabular turns uploaded CSV and spreadsheet files into header-keyed rows.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrEmptySource is returned when a file decodes to zero data rows.
	ErrEmptySource = errors.New("file contains no data rows")
	// ErrUnsupportedFormat is returned for extensions the decoder does not read.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Row maps a column header to its cell text.
type Row map[string]string

// Table is the decoded content of the first non-empty sheet.
type Table struct {
	Headers []string
	Rows    []Row
	// Lines holds the 1-based source row number of each entry in Rows.
	Lines []int
}

// Line returns the source row number of Rows[i]. Tables built without line
// information assume one header row and no gaps.
func (t Table) Line(i int) int {
	if i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

// Decode reads name's content from r. The first row is the header row.
func Decode(name string, r io.Reader) (Table, error) {
	var (
		records [][]string
		lines   []int
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		records, lines, err = readCSV(r)
	case ".xlsx", ".xlsm", ".xltx":
		records, lines, err = readWorkbook(r)
	default:
		return Table{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err != nil {
		return Table{}, err
	}
	return buildTable(records, lines)
}

// readCSV returns the records and the line each one starts on. Empty lines
// produce no record, so the two can drift apart.
func readCSV(r io.Reader) ([][]string, []int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return records, lines, nil
}

// readWorkbook returns the rows of the first sheet that has any content.
// Raw cell values are kept so date cells arrive as Excel serial numbers.
func readWorkbook(r io.Reader) ([][]string, []int, error) {
	f, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if hasContent(rows) {
			// GetRows keeps empty rows in place, so sheet rows are index+1
			lines := make([]int, len(rows))
			for i := range rows {
				lines[i] = i + 1
			}
			return rows, lines, nil
		}
	}
	return nil, nil, nil
}

func buildTable(records [][]string, lines []int) (Table, error) {
	start := 0
	for start < len(records) && blank(records[start]) {
		start++
	}
	if start >= len(records) {
		return Table{}, ErrEmptySource
	}

	header := records[start]
	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = strings.TrimSpace(h)
	}

	t := Table{Headers: nonEmpty(headers)}
	for n, rec := range records[start+1:] {
		if blank(rec) {
			continue
		}
		row := make(Row, len(t.Headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = ""
			}
		}
		t.Rows = append(t.Rows, row)
		t.Lines = append(t.Lines, lines[start+1+n])
	}
	if len(t.Rows) == 0 {
		return Table{}, ErrEmptySource
	}
	return t, nil
}

func hasContent(rows [][]string) bool {
	for _, r := range rows {
		if !blank(r) {
			return true
		}
	}
	return false
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
