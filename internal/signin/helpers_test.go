package signin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phillip-england/openhouse/internal/credentials"
	"github.com/phillip-england/openhouse/internal/session"
	"github.com/phillip-england/openhouse/internal/sheets"
)

var fixedNow = time.Date(2024, 5, 1, 15, 4, 5, 0, time.UTC)

func newTestStore(t *testing.T) *credentials.Store {
	t.Helper()
	store, err := credentials.New(
		map[string]credentials.User{
			"alice": {Password: "pw1", Name: "Alice Agent"},
			"carol": {Password: "pw3", Name: "Carol Closer"},
		},
		map[string]string{"Alice Agent": "sheet-123"},
	)
	if err != nil {
		t.Fatalf("credentials.New: %v", err)
	}
	return store
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	store      *credentials.Store
	gateway    *sheets.MemoryGateway
	publisher  *recordingPublisher
	intake     *IntakeFlow
	controller *Controller
}

func newFixture(t *testing.T, addresses ...string) *fixture {
	t.Helper()
	f := &fixture{
		store:     newTestStore(t),
		gateway:   sheets.NewMemoryGateway(),
		publisher: &recordingPublisher{},
	}
	rows := make([][]string, 0, len(addresses))
	for _, a := range addresses {
		rows = append(rows, []string{a})
	}
	f.gateway.Seed("sheet-123", AddressSheet, rows...)
	f.intake = NewIntakeFlow(f.gateway, f.store,
		WithPublisher(f.publisher),
		WithLocation(time.UTC),
		WithClock(func() time.Time { return fixedNow }),
	)
	f.controller = NewController(NewAuthenticator(f.store), f.intake)
	return f
}

func (f *fixture) open(t *testing.T) sheets.Spreadsheet {
	t.Helper()
	ss, err := f.gateway.Open(context.Background(), "sheet-123")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return ss
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.New(time.Hour)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return s
}

func loggedIn(t *testing.T) *session.Session {
	t.Helper()
	s := newSession(t)
	s.Agent = "Alice Agent"
	s.Page = session.PageIntake
	return s
}
