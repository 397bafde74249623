// Package workbook turns a downloaded spreadsheet into normalized customer
// rows: locate the header row, map columns to canonical field names, and
// filter out footers and blanks.
package workbook

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"customer-export/internal/normalize"

	"github.com/xuri/excelize/v2"
)

var (
	ErrEmptyWorkbook = errors.New("workbook does not contain any sheets")
	ErrNoHeaderRow   = errors.New("unable to locate header row in workbook")
)

// footerMarker is the literal the export service writes into the code
// column of its totals row.
const footerMarker = "Tổng"

// headerMarkers identifies the header row: the first row containing any of
// these canonical keys, in either language's spelling.
var headerMarkers = map[string]struct{}{
	"customer_code":  {},
	"customer_name":  {},
	"ma_khach_hang":  {},
	"ten_khach_hang": {},
}

// headerSynonyms maps canonical header keys to output field names. An empty
// value means the column is dropped (row numbers, section titles). Captions
// not listed here pass through under their camel-cased key.
var headerSynonyms = map[string]string{
	"customer_list":         "",
	"stt":                   "",
	"customer_code":         "customerCode",
	"customer_name":         "customerName",
	"ma_khach_hang":         "customerCode",
	"ten_khach_hang":        "customerName",
	"address":               "address",
	"dia_chi":               "address",
	"closing_amount":        "outstandingAmount",
	"outstanding_amount":    "outstandingAmount",
	"cong_no":               "outstandingAmount",
	"company_tax_code":      "taxCode",
	"tax_code":              "taxCode",
	"ma_so_thuecccd_chu_ho": "taxCode",
	"tel":                   "phone",
	"phone":                 "phone",
	"dien_thoai":            "phone",
	"contact_mobile":        "contactMobile",
	"dt_di_dong_nlh":        "contactMobile",
	"is_local_object":       "isInternal",
	"la_doi_tuong_noi_bo":   "isInternal",
	"custom_field_1":        "additionalField1",
	"custom_field1":         "additionalField1",
	"truong_mo_rong":        "additionalField1",
	"truong_mo_rong_1":      "additionalField1",
	"email":                 "email",
	"contact_name":          "contactName",
}

// Row is a sparse record: only non-empty fields are present.
type Row map[string]string

// Result is the ordered surviving records plus sheet diagnostics.
type Result struct {
	Rows      []Row
	SheetName string
	RowCount  int
}

// Extract reads the first sheet of an xlsx buffer and emits normalized
// customer rows in original order.
func Extract(buf []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	sheetName := sheets[0]

	rawRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheetName, err)
	}

	matrix := dropBlankRows(rawRows)
	if len(matrix) == 0 {
		return &Result{Rows: []Row{}, SheetName: sheetName}, nil
	}

	headerIndex := findHeaderRow(matrix)
	if headerIndex < 0 {
		return nil, ErrNoHeaderRow
	}

	fields := mapColumns(matrix[headerIndex])
	rows := make([]Row, 0, len(matrix)-headerIndex-1)
	for _, raw := range matrix[headerIndex+1:] {
		if row := buildRow(fields, raw); row != nil {
			rows = append(rows, row)
		}
	}

	return &Result{Rows: rows, SheetName: sheetName, RowCount: len(rows)}, nil
}

func dropBlankRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		blank := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				blank = false
				break
			}
		}
		if !blank {
			out = append(out, row)
		}
	}
	return out
}

func findHeaderRow(matrix [][]string) int {
	for i, row := range matrix {
		for _, cell := range row {
			if _, ok := headerMarkers[normalize.Header(cell)]; ok {
				return i
			}
		}
	}
	return -1
}

// mapColumns resolves each header cell to an output field name; "" means
// the column is skipped.
func mapColumns(header []string) []string {
	fields := make([]string, len(header))
	for i, cell := range header {
		key := normalize.Header(cell)
		if key == "" {
			key = fmt.Sprintf("column_%d", i+1)
		}
		if field, ok := headerSynonyms[key]; ok {
			fields[i] = field
			continue
		}
		fields[i] = normalize.CamelCase(key)
	}
	return fields
}

func buildRow(fields []string, raw []string) Row {
	row := Row{}
	for i, field := range fields {
		if field == "" || i >= len(raw) {
			continue
		}
		value := strings.TrimSpace(raw[i])
		if value == "" {
			continue
		}
		row[field] = value
	}

	if len(row) == 0 {
		return nil
	}
	if row["customerCode"] == footerMarker {
		return nil
	}
	if row["customerCode"] == "" && row["customerName"] == "" && row["additionalField1"] == "" {
		return nil
	}
	return row
}
