package service

import (
	"errors"
	"testing"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

func TestParseTable_Delimiters(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"comma", "a.csv", "Name,Phone\nAli,0300 1234567\n"},
		{"semicolon", "a.csv", "Name;Phone\nAli;0300 1234567\n"},
		{"tab sniffed", "a.txt", "Name\tPhone\nAli\t0300 1234567\n"},
		{"tsv extension", "a.tsv", "Name\tPhone\nAli\t0300 1234567\n"},
		{"bom and crlf", "a.csv", "\xEF\xBB\xBFName,Phone\r\nAli,0300 1234567\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseTable(tt.file, []byte(tt.data))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(table.Rows) != 1 {
				t.Fatalf("expected 1 row, got %d", len(table.Rows))
			}
			row := table.Rows[0]
			if row["name"] != "Ali" || row["phone"] != "0300 1234567" {
				t.Errorf("unexpected row %v", row)
			}
		})
	}
}

func TestParseTable_SkipsBlankRowsAndNamesEmptyHeaders(t *testing.T) {
	data := "\n\nName,,City\nAli,x,Lahore\n,,\nSara,,\n"
	table, err := ParseTable("a.csv", []byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Headers[1] != "column_2" {
		t.Errorf("expected generated header, got %q", table.Headers[1])
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if _, ok := table.Rows[1]["city"]; ok {
		t.Error("empty cells should be omitted")
	}
}

func TestParseTable_Rejections(t *testing.T) {
	for _, tc := range []struct {
		name, file, data string
	}{
		{"empty", "a.csv", ""},
		{"whitespace", "a.csv", " \n\t\n"},
		{"xls", "a.xls", "Name,Phone\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTable(tc.file, []byte(tc.data))
			var fileErr *domain.ErrImportFile
			if !errors.As(err, &fileErr) {
				t.Fatalf("expected ErrImportFile, got %v", err)
			}
		})
	}
}

func TestParseTable_HeaderOnly(t *testing.T) {
	table, err := ParseTable("a.csv", []byte("Name,Phone\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Rows) != 0 || len(table.Headers) != 2 {
		t.Errorf("unexpected table %+v", table)
	}
}
