package signin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/phillip-england/openhouse/internal/credentials"
	"github.com/phillip-england/openhouse/internal/events"
	"github.com/phillip-england/openhouse/internal/session"
	"github.com/phillip-england/openhouse/internal/sheets"
)

const (
	// AddressSheet is the worksheet whose first column lists the houses.
	AddressSheet = "Address"

	worksheetRows = 100
	worksheetCols = 20

	addressSheetRows = 1000
	addressSheetCols = 1

	dateLayout = "2006-01-02"
)

// HeaderRow is the first row of every per-address worksheet.
var HeaderRow = []string{"Date", "Visitor Name", "Email", "Phone Number", "Need a Realtor?", "Current Address", "Comments"}

// SpreadsheetResolver maps an agent's display name to a spreadsheet identifier.
type SpreadsheetResolver interface {
	SpreadsheetFor(agent string) (string, error)
}

// VisitorRecord is one submitted sign-in, in header order.
type VisitorRecord struct {
	Date           string
	Name           string
	Email          string
	Phone          string
	NeedsRealtor   session.Realtor
	CurrentAddress string
	Comments       string
}

func (r VisitorRecord) Row() []string {
	return []string{r.Date, r.Name, r.Email, r.Phone, string(r.NeedsRealtor), r.CurrentAddress, r.Comments}
}

// IntakeFlow records visitors into the agent's spreadsheet.
type IntakeFlow struct {
	gateway   sheets.Gateway
	mapping   SpreadsheetResolver
	publisher events.Publisher
	location  *time.Location
	now       func() time.Time
}

type IntakeOption func(*IntakeFlow)

// WithPublisher sends a VisitorRecorded event after each submission.
func WithPublisher(p events.Publisher) IntakeOption {
	return func(f *IntakeFlow) { f.publisher = p }
}

// WithLocation sets the time zone used for the record date.
func WithLocation(loc *time.Location) IntakeOption {
	return func(f *IntakeFlow) {
		if loc != nil {
			f.location = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) IntakeOption {
	return func(f *IntakeFlow) { f.now = now }
}

func NewIntakeFlow(gateway sheets.Gateway, mapping SpreadsheetResolver, opts ...IntakeOption) *IntakeFlow {
	f := &IntakeFlow{
		gateway:   gateway,
		mapping:   mapping,
		publisher: &events.NoopPublisher{},
		location:  time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *IntakeFlow) ResolveAgentSpreadsheet(ctx context.Context, agent string) (sheets.Spreadsheet, error) {
	if f.mapping == nil {
		return nil, &ConfigurationError{Err: errors.New("agent mapping is not loaded")}
	}
	id, err := f.mapping.SpreadsheetFor(agent)
	if err != nil {
		if errors.Is(err, credentials.ErrNoSpreadsheet) {
			return nil, &MappingError{Agent: agent, Err: err}
		}
		return nil, &ConfigurationError{Err: err}
	}
	ss, err := f.gateway.Open(ctx, id)
	if err != nil {
		return nil, &GatewayError{Op: "open", Err: err}
	}
	return ss, nil
}

// LoadAddresses reads column A of the Address worksheet. Values are trimmed;
// blank cells and repeats are dropped.
func (f *IntakeFlow) LoadAddresses(ctx context.Context, ss sheets.Spreadsheet) ([]string, error) {
	ws, err := ss.Worksheet(ctx, AddressSheet)
	if err != nil {
		if errors.Is(err, sheets.ErrWorksheetNotFound) {
			return nil, ErrMissingAddressSheet
		}
		return nil, &GatewayError{Op: "read addresses", Err: err}
	}
	values, err := ws.ColumnValues(ctx, 1)
	if err != nil {
		if errors.Is(err, sheets.ErrWorksheetNotFound) {
			return nil, ErrMissingAddressSheet
		}
		return nil, &GatewayError{Op: "read addresses", Err: err}
	}
	addresses := cleanAddresses(values)
	if len(addresses) == 0 {
		return nil, ErrEmptyAddressList
	}
	return addresses, nil
}

func cleanAddresses(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// EnsureWorksheet returns the worksheet for address, creating it with the
// header row when missing. Losing a creation race to another session reuses
// the winner's worksheet without writing a second header.
func (f *IntakeFlow) EnsureWorksheet(ctx context.Context, ss sheets.Spreadsheet, address string) (sheets.Worksheet, error) {
	title := NormalizeAddress(address)
	ws, err := ss.Worksheet(ctx, title)
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, sheets.ErrWorksheetNotFound) {
		return nil, &GatewayError{Op: "find worksheet", Err: err}
	}

	ws, err = ss.AddWorksheet(ctx, title, worksheetRows, worksheetCols)
	if errors.Is(err, sheets.ErrWorksheetExists) {
		ws, err = ss.Worksheet(ctx, title)
		if err != nil {
			return nil, &GatewayError{Op: "find worksheet", Err: err}
		}
		return ws, nil
	}
	if err != nil {
		return nil, &GatewayError{Op: "add worksheet", Err: err}
	}
	if err := ws.AppendRow(ctx, HeaderRow); err != nil {
		return nil, &GatewayError{Op: "write header", Err: err}
	}
	log.Printf("created worksheet %q in %s", title, ss.ID())
	return ws, nil
}

// EnsureWorksheets refuses address lists where two entries would share one
// worksheet, then ensures each worksheet.
func (f *IntakeFlow) EnsureWorksheets(ctx context.Context, ss sheets.Spreadsheet, addresses []string) error {
	if err := checkWorksheetTitles(addresses); err != nil {
		return err
	}
	for _, address := range addresses {
		if _, err := f.EnsureWorksheet(ctx, ss, address); err != nil {
			return err
		}
	}
	return nil
}

// worksheetKey is the identity of an address's worksheet. Spreadsheet
// backends match tab names ignoring case.
func worksheetKey(address string) string {
	return cases.Fold().String(NormalizeAddress(address))
}

func checkWorksheetTitles(addresses []string) error {
	owners := map[string]string{worksheetKey(AddressSheet): AddressSheet}
	for _, address := range addresses {
		key := worksheetKey(address)
		if other, ok := owners[key]; ok {
			return &WorksheetClashError{Address: address, Other: other, Title: NormalizeAddress(address)}
		}
		owners[key] = address
	}
	return nil
}

// ValidateDraft requires name, email and phone. Whitespace alone is empty.
func ValidateDraft(draft session.Draft) error {
	var missing []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{"name", draft.Name},
		{"email", draft.Email},
		{"phone", draft.Phone},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldError{Fields: missing}
	}
	return nil
}

// Submit appends the session's draft to the worksheet of its selected address
// and resets the draft. On any error the session is unchanged.
func (f *IntakeFlow) Submit(ctx context.Context, sess *session.Session, ss sheets.Spreadsheet) (VisitorRecord, error) {
	if err := ValidateDraft(sess.Draft); err != nil {
		return VisitorRecord{}, err
	}
	if strings.TrimSpace(sess.SelectedAddress) == "" {
		return VisitorRecord{}, ErrNoAddressSelected
	}

	title := NormalizeAddress(sess.SelectedAddress)
	ws, err := ss.Worksheet(ctx, title)
	if err != nil {
		if errors.Is(err, sheets.ErrWorksheetNotFound) {
			return VisitorRecord{}, &WorksheetError{Address: sess.SelectedAddress, Err: err}
		}
		return VisitorRecord{}, &GatewayError{Op: "find worksheet", Err: err}
	}

	now := f.now()
	record := VisitorRecord{
		Date:           now.In(f.location).Format(dateLayout),
		Name:           sess.Draft.Name,
		Email:          sess.Draft.Email,
		Phone:          sess.Draft.Phone,
		NeedsRealtor:   sess.Draft.NeedsRealtor,
		CurrentAddress: sess.Draft.CurrentAddress,
		Comments:       sess.Draft.Comments,
	}
	if record.NeedsRealtor == "" {
		record.NeedsRealtor = session.RealtorYes
	}
	if err := ws.AppendRow(ctx, record.Row()); err != nil {
		if errors.Is(err, sheets.ErrWorksheetNotFound) {
			return VisitorRecord{}, &WorksheetError{Address: sess.SelectedAddress, Err: err}
		}
		return VisitorRecord{}, &GatewayError{Op: "append row", Err: err}
	}
	sess.ResetDraft()

	event := events.VisitorRecorded{
		Agent:          sess.Agent,
		Spreadsheet:    ss.ID(),
		Worksheet:      ws.Title(),
		Date:           record.Date,
		Name:           record.Name,
		Email:          record.Email,
		Phone:          record.Phone,
		NeedsRealtor:   string(record.NeedsRealtor),
		CurrentAddress: record.CurrentAddress,
		Comments:       record.Comments,
		RecordedAt:     now.UTC(),
	}
	if err := f.publisher.Publish(ctx, events.TopicVisitorRecorded, event); err != nil {
		log.Printf("publish %s: %v", events.TopicVisitorRecorded, err)
	}
	return record, nil
}

// ImportAddresses appends addresses missing from the Address worksheet,
// creating it when needed, and makes sure every listed address has its own
// worksheet. Addresses whose worksheet title clashes with a listed one are
// skipped. It returns the addresses that were added.
func (f *IntakeFlow) ImportAddresses(ctx context.Context, ss sheets.Spreadsheet, addresses []string) ([]string, error) {
	ws, err := ss.Worksheet(ctx, AddressSheet)
	if errors.Is(err, sheets.ErrWorksheetNotFound) {
		ws, err = ss.AddWorksheet(ctx, AddressSheet, addressSheetRows, addressSheetCols)
		if errors.Is(err, sheets.ErrWorksheetExists) {
			ws, err = ss.Worksheet(ctx, AddressSheet)
		}
	}
	if err != nil {
		return nil, &GatewayError{Op: "open address worksheet", Err: err}
	}

	existing, err := ws.ColumnValues(ctx, 1)
	if err != nil {
		return nil, &GatewayError{Op: "read addresses", Err: err}
	}
	known := make(map[string]bool, len(existing))
	titles := map[string]string{worksheetKey(AddressSheet): AddressSheet}
	for _, a := range cleanAddresses(existing) {
		known[a] = true
		titles[worksheetKey(a)] = a
	}

	var added []string
	for _, address := range cleanAddresses(addresses) {
		if known[address] {
			continue
		}
		key := worksheetKey(address)
		if other, ok := titles[key]; ok {
			log.Printf("skip address %q: worksheet title clashes with %q", address, other)
			continue
		}
		if err := ws.AppendRow(ctx, []string{address}); err != nil {
			return added, &GatewayError{Op: "append address", Err: err}
		}
		known[address] = true
		titles[key] = address
		added = append(added, address)
	}

	all := make([]string, 0, len(known))
	all = append(all, cleanAddresses(existing)...)
	all = append(all, added...)
	if err := f.EnsureWorksheets(ctx, ss, all); err != nil {
		return added, fmt.Errorf("prepare worksheets: %w", err)
	}
	return added, nil
}
