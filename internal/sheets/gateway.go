// Package sheets is the boundary to the spreadsheet service that stores
// addresses and visitor sign-ins. Callers depend on the Gateway interface;
// backends live alongside it (Google Sheets, local xlsx workbooks, memory).
package sheets

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSpreadsheetNotFound = errors.New("spreadsheet not found")
	ErrWorksheetNotFound   = errors.New("worksheet not found")
	ErrWorksheetExists     = errors.New("worksheet already exists")
)

// Gateway opens spreadsheets by identifier.
type Gateway interface {
	Open(ctx context.Context, id string) (Spreadsheet, error)
}

// Spreadsheet is a collection of named worksheets.
type Spreadsheet interface {
	ID() string
	// Worksheet returns ErrWorksheetNotFound when no tab has the given title.
	Worksheet(ctx context.Context, title string) (Worksheet, error)
	// AddWorksheet returns ErrWorksheetExists when the title is taken.
	AddWorksheet(ctx context.Context, title string, rows, cols int) (Worksheet, error)
}

// Worksheet is a single tab.
type Worksheet interface {
	Title() string
	// ColumnValues returns the cells of the 1-based column col, top to bottom,
	// up to the last non-empty cell.
	ColumnValues(ctx context.Context, col int) ([]string, error)
	AppendRow(ctx context.Context, cells []string) error
}

func checkColumn(col int) error {
	if col < 1 {
		return fmt.Errorf("column index %d out of range", col)
	}
	return nil
}

func trimTrailingEmpty(values []string) []string {
	end := len(values)
	for end > 0 && values[end-1] == "" {
		end--
	}
	return values[:end]
}

// columnLetters converts a 1-based column index into A1 notation letters.
func columnLetters(col int) string {
	var out []byte
	for col > 0 {
		col--
		out = append([]byte{byte('A' + col%26)}, out...)
		col /= 26
	}
	return string(out)
}
