package ui

import (
	"os"
	"path/filepath"
	"testing"
)

func TestShouldUseColor(t *testing.T) {
	for _, tc := range []struct {
		name    string
		noColor string
		force   string
		cli     string
		want    bool
	}{
		{"no color wins", "1", "1", "", false},
		{"forced", "", "1", "", true},
		{"disabled", "", "", "0", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tc.noColor)
			t.Setenv("CLICOLOR_FORCE", tc.force)
			t.Setenv("CLICOLOR", tc.cli)
			if got := ShouldUseColor(); got != tc.want {
				t.Fatalf("ShouldUseColor() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStylerPlain(t *testing.T) {
	s := Styler{}
	for _, got := range []string{s.Title("x"), s.Success("x"), s.Warn("x"), s.Error("x"), s.Muted("x")} {
		if got != "x" {
			t.Fatalf("plain styler decorated text: %q", got)
		}
	}
}

func TestReadSecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input")
	if err := os.WriteFile(path, []byte("s3cret-pass\r\nnext\n"), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var out discard
	got, err := ReadSecret(f, &out, "Password: ")
	if err != nil {
		t.Fatalf("read secret: %v", err)
	}
	if got != "s3cret-pass" {
		t.Fatalf("got %q", got)
	}
}

type discard struct{ n int }

func (d *discard) Write(p []byte) (int, error) {
	d.n += len(p)
	return len(p), nil
}
