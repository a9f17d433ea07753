package services

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// table is a header row plus data rows, all cells trimmed.
type table struct {
	header []string
	rows   [][]string
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.Fields(h), "_")
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

func readCSV(r io.Reader) (*table, error) {
	cr := csv.NewReader(stripUTF8BOM(bufio.NewReader(r)))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header", ErrValidation)
		}
		return nil, fmt.Errorf("%w: csv: %v", ErrDecode, err)
	}
	t := &table{header: normalizeHeaders(header)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", ErrDecode, err)
		}
		t.rows = append(t.rows, trimCells(rec))
	}
	return t, nil
}

// readXLSX reads the first sheet of a workbook. Cells are read raw so that
// number formats do not leak into the data; date and time serials are
// converted back to YYYY-MM-DD and HH:MM.
func readXLSX(r io.Reader) (*table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", ErrDecode, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrValidation)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", ErrDecode, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrValidation)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	t := &table{header: normalizeHeaders(rows[0])}
	for _, row := range rows[1:] {
		rec := trimCells(row)
		for i, h := range t.header {
			if i >= len(rec) {
				break
			}
			switch h {
			case "date_of_birth":
				rec[i] = excelSerial(rec[i], date1904, "2006-01-02")
			case "time_of_birth":
				rec[i] = excelSerial(rec[i], date1904, "15:04")
			}
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

// excelSerial formats a numeric date/time serial with layout. Anything that
// is not a number is returned as typed.
func excelSerial(v string, date1904 bool, layout string) string {
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial < 0 {
		return v
	}
	tm, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return v
	}
	return tm.Format(layout)
}

func normalizeHeaders(h []string) []string {
	out := make([]string, len(h))
	for i, v := range h {
		out[i] = normalizeHeader(v)
	}
	return out
}

func trimCells(rec []string) []string {
	out := make([]string, len(rec))
	for i, v := range rec {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func blankRow(rec []string) bool {
	for _, v := range rec {
		if v != "" {
			return false
		}
	}
	return true
}

// cell returns the value under column, or "" when the row is short.
func (t *table) cell(rec []string, column string) string {
	for i, h := range t.header {
		if h == column && i < len(rec) {
			return rec[i]
		}
	}
	return ""
}

func (t *table) has(column string) bool {
	for _, h := range t.header {
		if h == column {
			return true
		}
	}
	return false
}
