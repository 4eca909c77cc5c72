package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

// Table is a parsed spreadsheet: lower-cased header keys and one map per
// non-blank data row.
type Table struct {
	Headers []string
	Rows    []map[string]string
}

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// ParseTable reads a CSV, TSV or XLSX file. The first row is the header.
// Empty files, header-less files and legacy .xls workbooks are rejected
// with *domain.ErrImportFile.
func ParseTable(fileName string, data []byte) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &domain.ErrImportFile{File: fileName, Reason: "file is empty"}
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case ext == ".xls" || bytes.HasPrefix(data, oleMagic):
		return nil, &domain.ErrImportFile{File: fileName, Reason: "legacy .xls workbooks are not supported, save as .xlsx or .csv"}
	case ext == ".xlsx" || bytes.HasPrefix(data, zipMagic):
		records, err := readXLSX(data)
		if err != nil {
			return nil, &domain.ErrImportFile{File: fileName, Reason: err.Error()}
		}
		return buildTable(fileName, records)
	default:
		comma := sniffDelimiter(data)
		if ext == ".tsv" {
			comma = '\t'
		}
		records, err := readDelimited(data, comma)
		if err != nil {
			return nil, &domain.ErrImportFile{File: fileName, Reason: err.Error()}
		}
		return buildTable(fileName, records)
	}
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unreadable workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readDelimited(data []byte, comma rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var out [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("malformed text file: %w", err)
		}
		out = append(out, rec)
	}
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab on the
// header line.
func sniffDelimiter(data []byte) rune {
	line := bytes.TrimPrefix(data, utf8BOM)
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestN := ',', bytes.Count(line, []byte{','})
	for _, c := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(c))); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}

func buildTable(fileName string, records [][]string) (*Table, error) {
	// leading blank lines are not a header
	for len(records) > 0 && blankRecord(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, &domain.ErrImportFile{File: fileName, Reason: "no header row found"}
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "" {
			key = fmt.Sprintf("column_%d", i+1)
		}
		headers[i] = key
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		row := make(map[string]string, len(headers))
		for i, key := range headers {
			if i < len(rec) {
				if v := strings.TrimSpace(rec[i]); v != "" {
					row[key] = v
				}
			}
		}
		rows = append(rows, row)
	}
	return &Table{Headers: headers, Rows: rows}, nil
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
