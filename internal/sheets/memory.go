package sheets

import (
	"context"
	"fmt"
	"sync"
)

// MemoryGateway keeps spreadsheets in process memory. It backs the demo
// backend and the tests of everything above the gateway.
type MemoryGateway struct {
	mu       sync.Mutex
	books    map[string]*memoryBook
	failures map[string]error
}

type memoryBook struct {
	id     string
	order  []string
	sheets map[string]*memorySheet
}

type memorySheet struct {
	title string
	rows  int
	cols  int
	data  [][]string
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		books:    map[string]*memoryBook{},
		failures: map[string]error{},
	}
}

// CreateSpreadsheet registers an empty spreadsheet. It is a no-op when the
// identifier already exists.
func (g *MemoryGateway) CreateSpreadsheet(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.books[id]; ok {
		return
	}
	g.books[id] = &memoryBook{id: id, sheets: map[string]*memorySheet{}}
}

// Seed creates the spreadsheet and worksheet if needed and appends rows.
func (g *MemoryGateway) Seed(id, title string, rows ...[]string) {
	g.CreateSpreadsheet(id)
	g.mu.Lock()
	defer g.mu.Unlock()
	book := g.books[id]
	sheet, ok := book.sheets[title]
	if !ok {
		sheet = &memorySheet{title: title, rows: 1000, cols: 26}
		book.sheets[title] = sheet
		book.order = append(book.order, title)
	}
	for _, row := range rows {
		sheet.data = append(sheet.data, append([]string(nil), row...))
	}
}

// Rows returns a copy of a worksheet's cells.
func (g *MemoryGateway) Rows(id, title string) ([][]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	book, ok := g.books[id]
	if !ok {
		return nil, false
	}
	sheet, ok := book.sheets[title]
	if !ok {
		return nil, false
	}
	out := make([][]string, len(sheet.data))
	for i, row := range sheet.data {
		out[i] = append([]string(nil), row...)
	}
	return out, true
}

// Titles lists worksheet titles in creation order.
func (g *MemoryGateway) Titles(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	book, ok := g.books[id]
	if !ok {
		return nil
	}
	return append([]string(nil), book.order...)
}

// DeleteWorksheet removes a tab, simulating an edit made outside the portal.
func (g *MemoryGateway) DeleteWorksheet(id, title string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	book, ok := g.books[id]
	if !ok {
		return
	}
	delete(book.sheets, title)
	for i, name := range book.order {
		if name == title {
			book.order = append(book.order[:i], book.order[i+1:]...)
			break
		}
	}
}

// FailOn makes every later call of op ("open", "worksheet", "add", "column",
// "append") return err. A nil err clears the failure.
func (g *MemoryGateway) FailOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, op)
		return
	}
	g.failures[op] = err
}

func (g *MemoryGateway) failure(op string) error {
	return g.failures[op]
}

func (g *MemoryGateway) Open(ctx context.Context, id string) (Spreadsheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("open"); err != nil {
		return nil, err
	}
	if _, ok := g.books[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSpreadsheetNotFound, id)
	}
	return &memorySpreadsheet{g: g, id: id}, nil
}

type memorySpreadsheet struct {
	g  *MemoryGateway
	id string
}

func (s *memorySpreadsheet) ID() string { return s.id }

func (s *memorySpreadsheet) Worksheet(ctx context.Context, title string) (Worksheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	if err := s.g.failure("worksheet"); err != nil {
		return nil, err
	}
	book, ok := s.g.books[s.id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSpreadsheetNotFound, s.id)
	}
	if _, ok := book.sheets[title]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorksheetNotFound, title)
	}
	return &memoryWorksheet{g: s.g, id: s.id, title: title}, nil
}

func (s *memorySpreadsheet) AddWorksheet(ctx context.Context, title string, rows, cols int) (Worksheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	if err := s.g.failure("add"); err != nil {
		return nil, err
	}
	book, ok := s.g.books[s.id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSpreadsheetNotFound, s.id)
	}
	if _, ok := book.sheets[title]; ok {
		return nil, fmt.Errorf("%w: %s", ErrWorksheetExists, title)
	}
	book.sheets[title] = &memorySheet{title: title, rows: rows, cols: cols}
	book.order = append(book.order, title)
	return &memoryWorksheet{g: s.g, id: s.id, title: title}, nil
}

type memoryWorksheet struct {
	g     *MemoryGateway
	id    string
	title string
}

func (w *memoryWorksheet) Title() string { return w.title }

func (w *memoryWorksheet) sheet() (*memorySheet, error) {
	book, ok := w.g.books[w.id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSpreadsheetNotFound, w.id)
	}
	sheet, ok := book.sheets[w.title]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorksheetNotFound, w.title)
	}
	return sheet, nil
}

func (w *memoryWorksheet) ColumnValues(ctx context.Context, col int) ([]string, error) {
	if err := checkColumn(col); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.g.mu.Lock()
	defer w.g.mu.Unlock()
	if err := w.g.failure("column"); err != nil {
		return nil, err
	}
	sheet, err := w.sheet()
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(sheet.data))
	for _, row := range sheet.data {
		if col-1 < len(row) {
			values = append(values, row[col-1])
		} else {
			values = append(values, "")
		}
	}
	return trimTrailingEmpty(values), nil
}

func (w *memoryWorksheet) AppendRow(ctx context.Context, cells []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.g.mu.Lock()
	defer w.g.mu.Unlock()
	if err := w.g.failure("append"); err != nil {
		return err
	}
	sheet, err := w.sheet()
	if err != nil {
		return err
	}
	sheet.data = append(sheet.data, append([]string(nil), cells...))
	return nil
}
