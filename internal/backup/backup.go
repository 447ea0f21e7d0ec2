// Package backup archives the local workbook directory into an xz-compressed
// tarball and ships it to a destination.
package backup

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

// Destination stores a finished archive under name.
type Destination interface {
	Write(ctx context.Context, name string, data []byte) error
}

// Summary describes one backup run.
type Summary struct {
	Name  string
	Files []string
	Bytes int
}

// ArchiveName is the object name used for a backup taken at t.
func ArchiveName(t time.Time) string {
	return "openhouse-workbooks-" + t.UTC().Format("20060102T150405Z") + ".tar.xz"
}

// Run archives every workbook in dir and writes the archive to dest.
func Run(ctx context.Context, dir string, dest Destination, now time.Time) (Summary, error) {
	var buf bytes.Buffer
	files, err := Archive(&buf, dir)
	if err != nil {
		return Summary{}, err
	}
	name := ArchiveName(now)
	if err := dest.Write(ctx, name, buf.Bytes()); err != nil {
		return Summary{}, fmt.Errorf("write %s: %w", name, err)
	}
	return Summary{Name: name, Files: files, Bytes: buf.Len()}, nil
}

// Archive writes an xz-compressed tar of the .xlsx files in dir to w and
// returns their names.
func Archive(w io.Writer, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workbook directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".xlsx") {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, errors.New("no workbooks to back up")
	}
	sort.Strings(names)

	xw, err := xz.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("create xz writer: %w", err)
	}
	tw := tar.NewWriter(xw)
	for _, name := range names {
		if err := addFile(tw, filepath.Join(dir, name), name); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := xw.Close(); err != nil {
		return nil, fmt.Errorf("close xz: %w", err)
	}
	return names, nil
}

func addFile(tw *tar.Writer, path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tar header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("tar write %s: %w", name, err)
	}
	return nil
}

// Extract unpacks an archive produced by Archive into dir, overwriting files
// with the same name.
func Extract(r io.Reader, dir string) ([]string, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xz: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tr := tar.NewReader(xr)
	var names []string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return names, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Base(hdr.Name)
		if name != hdr.Name || name == "." || name == ".." {
			return names, fmt.Errorf("unexpected path %q in archive", hdr.Name)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return names, fmt.Errorf("read %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return names, fmt.Errorf("write %s: %w", name, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// DirDestination writes archives into a local directory.
type DirDestination struct {
	Dir string
}

func (d DirDestination) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(d.Dir, name), data, 0o644)
}
