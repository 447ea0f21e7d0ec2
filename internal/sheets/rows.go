package sheets

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// maxImportRows caps how many rows are read from an uploaded file.
const maxImportRows = 100000

// ReadRows reads the cells of an uploaded .xls, .xlsx or .csv file. For
// workbooks the tab named preferSheet is used when present, otherwise the first.
func ReadRows(reader io.Reader, filename, preferSheet string) ([][]string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, err
		}
		if workbook.NumSheets() == 0 {
			return nil, fmt.Errorf("no worksheet found")
		}
		if workbook.NumSheets() > 1 {
			return nil, fmt.Errorf("multiple worksheets found; please upload a file with a single sheet")
		}
		rows = workbook.ReadAllCells(maxImportRows)
	case ".csv":
		r := csv.NewReader(bytes.NewReader(data))
		r.FieldsPerRecord = -1
		rows, err = r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
	case ".xlsx", ".xlsm":
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = file.Close() }()

		sheetName := file.GetSheetName(0)
		if preferSheet != "" {
			if idx, err := file.GetSheetIndex(preferSheet); err == nil && idx >= 0 {
				sheetName = file.GetSheetName(idx)
			}
		}
		if sheetName == "" {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows, err = file.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported file type %q (use .xls, .xlsx or .csv)", filepath.Ext(filename))
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("worksheet is empty")
	}
	return rows, nil
}

// FirstColumn returns the trimmed, non-empty first cell of each row.
// A leading header cell such as "Address" is skipped.
func FirstColumn(rows [][]string) []string {
	var out []string
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		value := strings.TrimSpace(row[0])
		if value == "" {
			continue
		}
		if i == 0 && isAddressHeader(value) {
			continue
		}
		out = append(out, value)
	}
	return out
}

func isAddressHeader(value string) bool {
	switch strings.ToLower(value) {
	case "address", "addresses", "house address", "property address":
		return true
	default:
		return false
	}
}
