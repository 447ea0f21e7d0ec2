package openhousecli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/phillip-england/openhouse/internal/events"
	"github.com/phillip-england/openhouse/internal/security"
	"github.com/phillip-england/openhouse/internal/ui"
)

const testSecrets = `[credentials.alice]
password = "pw1"
name = "Alice Agent"

[agent_mapping]
"Alice Agent" = "alice-houses"
`

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestApp(t *testing.T, stdin string) (*app, *syncBuffer, *syncBuffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stdin")
	if err := os.WriteFile(path, []byte(stdin), 0o600); err != nil {
		t.Fatal(err)
	}
	in, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { in.Close() })

	out, errOut := &syncBuffer{}, &syncBuffer{}
	a := newApp(in, out, errOut)
	a.style = ui.Styler{}
	return a, out, errOut
}

// xlsxEnv points the portal config at a temp workbook directory and secrets file.
func xlsxEnv(t *testing.T) (dir, workbooks string) {
	t.Helper()
	dir = t.TempDir()
	workbooks = filepath.Join(dir, "workbooks")
	secrets := filepath.Join(dir, "secrets.toml")
	if err := os.WriteFile(secrets, []byte(testSecrets), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHEETS_BACKEND", "xlsx")
	t.Setenv("WORKBOOK_DIR", workbooks)
	t.Setenv("SECRETS_PATH", secrets)
	t.Setenv("PORTAL_TIMEZONE", "UTC")
	t.Setenv("SESSION_TTL", "1h")
	return dir, workbooks
}

func TestSetupWritesEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	a, out, _ := newTestApp(t, "")

	err := a.execute([]string{"setup", "--env-file", envFile, "--backend", "xlsx", "--secrets", filepath.Join(dir, "secrets.toml")})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	data, err := os.ReadFile(envFile)
	if err != nil {
		t.Fatalf("read env: %v", err)
	}
	for _, want := range []string{"SHEETS_BACKEND=xlsx", "PORTAL_ADDR=:3000", "SESSION_DB_PATH=data/sessions.db"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("env file missing %q:\n%s", want, data)
		}
	}
	if strings.Contains(string(data), "NATS_URL") {
		t.Fatalf("empty NATS_URL written:\n%s", data)
	}
	if !strings.Contains(out.String(), "not found") {
		t.Fatalf("expected missing secrets warning, got %q", out.String())
	}

	b, _, _ := newTestApp(t, "")
	if err := b.execute([]string{"setup", "--env-file", envFile}); err == nil {
		t.Fatalf("expected error when env file exists")
	}
	if err := b.execute([]string{"setup", "--env-file", envFile, "--force"}); err != nil {
		t.Fatalf("forced setup: %v", err)
	}
}

func TestSetupRejectsUnknownBackend(t *testing.T) {
	a, _, _ := newTestApp(t, "")
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := a.execute([]string{"setup", "--env-file", envFile, "--backend", "postgres"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := os.Stat(envFile); err == nil {
		t.Fatalf("env file written for invalid config")
	}
}

func TestHashPassword(t *testing.T) {
	a, out, _ := newTestApp(t, "correct horse\n")
	if err := a.execute([]string{"hash-password"}); err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if !security.IsHashed(hash) || !security.VerifyPassword("correct horse", hash) {
		t.Fatalf("unexpected hash %q", hash)
	}
}

func TestHashPasswordTooShort(t *testing.T) {
	a, _, _ := newTestApp(t, "short\n")
	if err := a.execute([]string{"hash-password"}); err == nil {
		t.Fatalf("expected error for short password")
	}
}

func TestAddressesImportAndList(t *testing.T) {
	dir, workbooks := xlsxEnv(t)
	csvPath := filepath.Join(dir, "houses.csv")
	if err := os.WriteFile(csvPath, []byte("Address\n12 Oak St\n4 Elm Ave\n12 Oak St\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(dir, "missing.env")

	a, out, _ := newTestApp(t, "")
	if err := a.execute([]string{"addresses", "import", "--env-file", envFile, "--agent", "Alice Agent", csvPath}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out.String(), "added 2 of") {
		t.Fatalf("unexpected import output %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(workbooks, "alice-houses.xlsx")); err != nil {
		t.Fatalf("workbook not created: %v", err)
	}

	again, out2, _ := newTestApp(t, "")
	if err := again.execute([]string{"addresses", "import", "--env-file", envFile, "--agent", "Alice Agent", csvPath}); err != nil {
		t.Fatalf("second import: %v", err)
	}
	if !strings.Contains(out2.String(), "added 0 of") {
		t.Fatalf("import not idempotent: %q", out2.String())
	}

	list, listOut, _ := newTestApp(t, "")
	if err := list.execute([]string{"addresses", "list", "--env-file", envFile}); err != nil {
		t.Fatalf("list: %v", err)
	}
	got := listOut.String()
	for _, want := range []string{"Alice Agent (alice-houses)", "12 Oak St", "4 Elm Ave"} {
		if !strings.Contains(got, want) {
			t.Fatalf("list output missing %q:\n%s", want, got)
		}
	}
}

func TestAddressesListReportsMissingWorkbook(t *testing.T) {
	dir, _ := xlsxEnv(t)
	a, out, _ := newTestApp(t, "")
	err := a.execute([]string{"addresses", "list", "--env-file", filepath.Join(dir, "missing.env")})
	if err == nil {
		t.Fatalf("expected error for agent without workbook")
	}
	if !strings.Contains(out.String(), "Alice Agent:") {
		t.Fatalf("expected per-agent error line, got %q", out.String())
	}
}

func TestBackupToDirectory(t *testing.T) {
	dir, workbooks := xlsxEnv(t)
	csvPath := filepath.Join(dir, "houses.csv")
	if err := os.WriteFile(csvPath, []byte("12 Oak St\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(dir, "missing.env")
	a, _, _ := newTestApp(t, "")
	if err := a.execute([]string{"addresses", "import", "--env-file", envFile, "--agent", "Alice Agent", csvPath}); err != nil {
		t.Fatalf("import: %v", err)
	}

	dest := filepath.Join(dir, "backups")
	b, out, _ := newTestApp(t, "")
	if err := b.execute([]string{"backup", "--env-file", envFile, "--workbook-dir", workbooks, "--dest", dest}); err != nil {
		t.Fatalf("backup: %v", err)
	}
	entries, err := os.ReadDir(dest)
	if err != nil || len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), ".tar.xz") {
		t.Fatalf("unexpected backup dir %v (%v)", entries, err)
	}
	if !strings.Contains(out.String(), "1 workbooks") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestUsageErrors(t *testing.T) {
	tests := [][]string{
		{"frobnicate"},
		{"setup", "--no-such-flag"},
		{"backup", "--workbook-dir", "."},
		{"addresses", "import", "houses.csv"},
	}
	for _, args := range tests {
		a, _, _ := newTestApp(t, "")
		if err := a.execute(args); !errors.Is(err, ErrUsage) {
			t.Fatalf("%v: expected ErrUsage, got %v", args, err)
		}
	}
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf)
	for _, want := range []string{"setup", "run", "hash-password", "addresses", "backup", "watch"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("usage missing %q:\n%s", want, buf.String())
		}
	}
}

func TestFormatEvent(t *testing.T) {
	line := formatEvent(ui.Styler{}, []byte(`{"agent":"Alice Agent","worksheet":"12 Oak St","date":"2024-05-01","name":"Jane","email":"jane@example.com","phone":"555-0100","needs_realtor":"Yes"}`))
	for _, want := range []string{"2024-05-01", "12 Oak St", "Jane <jane@example.com> 555-0100", "needs a realtor", "Alice Agent"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
	if got := formatEvent(ui.Styler{}, []byte("not json")); got != "not json" {
		t.Fatalf("raw payload = %q", got)
	}
}

func TestWatchPrintsEvents(t *testing.T) {
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	url := srv.ClientURL()

	a, out, _ := newTestApp(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.watch(ctx, url) }()

	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	defer pub.Close()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "Jane") {
		if time.Now().After(deadline) {
			t.Fatalf("event not printed; output %q", out.String())
		}
		_ = pub.Publish(context.Background(), events.TopicVisitorRecorded, events.VisitorRecorded{
			Agent: "Alice Agent", Worksheet: "12 Oak St", Date: "2024-05-01", Name: "Jane", NeedsRealtor: "No",
		})
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not stop")
	}
}
