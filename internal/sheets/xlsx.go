package sheets

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// maxXLSXSheetName is Excel's limit on worksheet name length.
const maxXLSXSheetName = 31

// XLSXGateway stores each spreadsheet as a workbook file under dir. The
// identifier is the workbook file name; ".xlsx" is added when missing.
// Every operation opens, edits and saves the file under a per-workbook lock,
// so appends from different sessions are serialized.
type XLSXGateway struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewXLSXGateway(dir string) (*XLSXGateway, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("workbook directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workbook directory %s: %w", dir, err)
	}
	return &XLSXGateway{dir: dir, locks: map[string]*sync.Mutex{}}, nil
}

// Path returns the workbook file backing id.
func (g *XLSXGateway) Path(id string) string {
	name := filepath.Base(strings.TrimSpace(id))
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		name += ".xlsx"
	}
	return filepath.Join(g.dir, name)
}

func (g *XLSXGateway) lock(path string) func() {
	g.mu.Lock()
	l, ok := g.locks[path]
	if !ok {
		l = &sync.Mutex{}
		g.locks[path] = l
	}
	g.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Create makes a new workbook whose only worksheet is firstSheet. It fails if
// the workbook already exists.
func (g *XLSXGateway) Create(ctx context.Context, id, firstSheet string) (Spreadsheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := g.Path(id)
	unlock := g.lock(path)
	defer unlock()

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("workbook %s already exists", path)
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheetName(firstSheet)); err != nil {
		return nil, fmt.Errorf("name first worksheet: %w", err)
	}
	if err := saveWorkbook(f, path); err != nil {
		return nil, err
	}
	return &xlsxSpreadsheet{g: g, id: id, path: path}, nil
}

func (g *XLSXGateway) Open(ctx context.Context, id string) (Spreadsheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := g.Path(id)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSpreadsheetNotFound, path)
		}
		return nil, err
	}
	return &xlsxSpreadsheet{g: g, id: id, path: path}, nil
}

type xlsxSpreadsheet struct {
	g    *XLSXGateway
	id   string
	path string
}

func (s *xlsxSpreadsheet) ID() string { return s.id }

// withWorkbook runs fn against the opened workbook and saves it when save is set.
func (s *xlsxSpreadsheet) withWorkbook(ctx context.Context, save bool, fn func(f *excelize.File) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.g.lock(s.path)
	defer unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSpreadsheetNotFound, s.path)
		}
		return fmt.Errorf("open workbook %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	if err := fn(f); err != nil {
		return err
	}
	if !save {
		return nil
	}
	return saveWorkbook(f, s.path)
}

func (s *xlsxSpreadsheet) Worksheet(ctx context.Context, title string) (Worksheet, error) {
	name := xlsxSheetName(title)
	err := s.withWorkbook(ctx, false, func(f *excelize.File) error {
		idx, err := f.GetSheetIndex(name)
		if err != nil {
			return err
		}
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrWorksheetNotFound, title)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &xlsxWorksheet{s: s, title: title, name: name}, nil
}

// AddWorksheet creates the tab. Excel has no fixed grid, so rows and cols are
// accepted for interface parity only.
func (s *xlsxSpreadsheet) AddWorksheet(ctx context.Context, title string, rows, cols int) (Worksheet, error) {
	name := xlsxSheetName(title)
	err := s.withWorkbook(ctx, true, func(f *excelize.File) error {
		idx, err := f.GetSheetIndex(name)
		if err != nil {
			return err
		}
		if idx >= 0 {
			return fmt.Errorf("%w: %s", ErrWorksheetExists, title)
		}
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("add worksheet %q: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &xlsxWorksheet{s: s, title: title, name: name}, nil
}

type xlsxWorksheet struct {
	s     *xlsxSpreadsheet
	title string
	name  string
}

func (w *xlsxWorksheet) Title() string { return w.title }

func (w *xlsxWorksheet) requireSheet(f *excelize.File) error {
	idx, err := f.GetSheetIndex(w.name)
	if err != nil {
		return err
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrWorksheetNotFound, w.title)
	}
	return nil
}

func (w *xlsxWorksheet) ColumnValues(ctx context.Context, col int) ([]string, error) {
	if err := checkColumn(col); err != nil {
		return nil, err
	}
	var values []string
	err := w.s.withWorkbook(ctx, false, func(f *excelize.File) error {
		if err := w.requireSheet(f); err != nil {
			return err
		}
		rows, err := f.GetRows(w.name)
		if err != nil {
			return fmt.Errorf("read worksheet %q: %w", w.name, err)
		}
		values = make([]string, 0, len(rows))
		for _, row := range rows {
			if col-1 < len(row) {
				values = append(values, row[col-1])
			} else {
				values = append(values, "")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trimTrailingEmpty(values), nil
}

func (w *xlsxWorksheet) AppendRow(ctx context.Context, cells []string) error {
	return w.s.withWorkbook(ctx, true, func(f *excelize.File) error {
		if err := w.requireSheet(f); err != nil {
			return err
		}
		rows, err := f.GetRows(w.name)
		if err != nil {
			return fmt.Errorf("read worksheet %q: %w", w.name, err)
		}
		cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
		if err != nil {
			return err
		}
		row := append([]string(nil), cells...)
		if err := f.SetSheetRow(w.name, cell, &row); err != nil {
			return fmt.Errorf("append row to %q: %w", w.name, err)
		}
		return nil
	})
}

func saveWorkbook(f *excelize.File, path string) error {
	// SaveAs checks the extension, so the temp file keeps .xlsx.
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp.xlsx")
	if err := f.SaveAs(tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace workbook %s: %w", path, err)
	}
	return nil
}

var xlsxNameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", "?", "-", "*", "-", "[", "-", "]", "-", ":", "-",
)

// xlsxSheetName maps a worksheet title onto a name Excel accepts. Names that
// have to be shortened or stripped of quotes get a hash of the full title as
// suffix, so distinct titles keep distinct tabs.
func xlsxSheetName(title string) string {
	name := xlsxNameReplacer.Replace(title)
	trimmed := strings.Trim(name, "'")
	runes := []rune(trimmed)
	if trimmed == name && len(runes) <= maxXLSXSheetName {
		if name == "" {
			return "Sheet"
		}
		return name
	}
	h := fnv.New32a()
	h.Write([]byte(title))
	suffix := fmt.Sprintf("~%08x", h.Sum32())
	if keep := maxXLSXSheetName - len(suffix); len(runes) > keep {
		runes = runes[:keep]
	}
	return strings.TrimSpace(string(runes)) + suffix
}
