package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// GoogleGateway talks to the Google Sheets v4 API with a service account.
// Identifiers may be bare spreadsheet IDs or full docs.google.com URLs.
type GoogleGateway struct {
	svc *gsheets.Service
}

// NewGoogleGateway authenticates with a service-account JSON key.
func NewGoogleGateway(ctx context.Context, credentialsJSON []byte, opts ...option.ClientOption) (*GoogleGateway, error) {
	base := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsScope)}
	if len(credentialsJSON) > 0 {
		base = append(base, option.WithCredentialsJSON(credentialsJSON))
	}
	svc, err := gsheets.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &GoogleGateway{svc: svc}, nil
}

// SpreadsheetID extracts the spreadsheet ID from a sheet URL. Anything that is
// not a URL is returned trimmed.
func SpreadsheetID(raw string) string {
	raw = strings.TrimSpace(raw)
	const marker = "/spreadsheets/d/"
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return raw
	}
	rest := raw[idx+len(marker):]
	if end := strings.IndexAny(rest, "/?#"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func (g *GoogleGateway) Open(ctx context.Context, id string) (Spreadsheet, error) {
	spreadsheetID := SpreadsheetID(id)
	if spreadsheetID == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrSpreadsheetNotFound)
	}
	if _, err := g.sheetProperties(ctx, spreadsheetID); err != nil {
		return nil, err
	}
	return &googleSpreadsheet{g: g, id: spreadsheetID}, nil
}

func (g *GoogleGateway) sheetProperties(ctx context.Context, spreadsheetID string) ([]*gsheets.SheetProperties, error) {
	resp, err := g.svc.Spreadsheets.Get(spreadsheetID).Fields("spreadsheetId", "sheets.properties").Context(ctx).Do()
	if err != nil {
		if isStatus(err, http.StatusNotFound) || isStatus(err, http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %s: %v", ErrSpreadsheetNotFound, spreadsheetID, err)
		}
		return nil, fmt.Errorf("get spreadsheet %s: %w", spreadsheetID, err)
	}
	props := make([]*gsheets.SheetProperties, 0, len(resp.Sheets))
	for _, sheet := range resp.Sheets {
		if sheet != nil && sheet.Properties != nil {
			props = append(props, sheet.Properties)
		}
	}
	return props, nil
}

type googleSpreadsheet struct {
	g  *GoogleGateway
	id string
}

func (s *googleSpreadsheet) ID() string { return s.id }

func (s *googleSpreadsheet) Worksheet(ctx context.Context, title string) (Worksheet, error) {
	props, err := s.g.sheetProperties(ctx, s.id)
	if err != nil {
		return nil, err
	}
	for _, p := range props {
		if p.Title == title {
			return &googleWorksheet{s: s, title: p.Title}, nil
		}
	}
	// Sheet titles are unique ignoring case.
	for _, p := range props {
		if strings.EqualFold(p.Title, title) {
			return &googleWorksheet{s: s, title: p.Title}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrWorksheetNotFound, title)
}

func (s *googleSpreadsheet) AddWorksheet(ctx context.Context, title string, rows, cols int) (Worksheet, error) {
	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{
				Properties: &gsheets.SheetProperties{
					Title: title,
					GridProperties: &gsheets.GridProperties{
						RowCount:    int64(rows),
						ColumnCount: int64(cols),
					},
				},
			},
		}},
	}
	resp, err := s.g.svc.Spreadsheets.BatchUpdate(s.id, req).Context(ctx).Do()
	if err != nil {
		if isStatus(err, http.StatusBadRequest) && strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return nil, fmt.Errorf("%w: %s", ErrWorksheetExists, title)
		}
		return nil, fmt.Errorf("add worksheet %q: %w", title, err)
	}
	created := title
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		created = resp.Replies[0].AddSheet.Properties.Title
	}
	return &googleWorksheet{s: s, title: created}, nil
}

type googleWorksheet struct {
	s     *googleSpreadsheet
	title string
}

func (w *googleWorksheet) Title() string { return w.title }

func (w *googleWorksheet) ColumnValues(ctx context.Context, col int) ([]string, error) {
	if err := checkColumn(col); err != nil {
		return nil, err
	}
	letters := columnLetters(col)
	rng := a1Range(w.title, letters+":"+letters)
	resp, err := w.s.g.svc.Spreadsheets.Values.Get(w.s.id, rng).MajorDimension("COLUMNS").Context(ctx).Do()
	if err != nil {
		if isMissingRange(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrWorksheetNotFound, w.title, err)
		}
		return nil, fmt.Errorf("read column %s of %q: %w", letters, w.title, err)
	}
	if len(resp.Values) == 0 {
		return []string{}, nil
	}
	values := make([]string, 0, len(resp.Values[0]))
	for _, v := range resp.Values[0] {
		values = append(values, fmt.Sprint(v))
	}
	return trimTrailingEmpty(values), nil
}

func (w *googleWorksheet) AppendRow(ctx context.Context, cells []string) error {
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	body := &gsheets.ValueRange{Values: [][]interface{}{row}}
	_, err := w.s.g.svc.Spreadsheets.Values.Append(w.s.id, a1Range(w.title, ""), body).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		if isMissingRange(err) {
			return fmt.Errorf("%w: %s: %v", ErrWorksheetNotFound, w.title, err)
		}
		return fmt.Errorf("append row to %q: %w", w.title, err)
	}
	return nil
}

// a1Range quotes a sheet title for A1 notation: 'It”s Here'!A:A.
func a1Range(title, cells string) string {
	quoted := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if cells == "" {
		return quoted
	}
	return quoted + "!" + cells
}

// isMissingRange reports the error the API returns when a range names a tab
// that no longer exists.
func isMissingRange(err error) bool {
	return isStatus(err, http.StatusBadRequest) && strings.Contains(strings.ToLower(err.Error()), "unable to parse range")
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
