package seenset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/nationradar/nation-radar/internal/dedup"
)

// File stores fingerprints as sorted, newline-delimited hex digests.
type File struct {
	path string
}

// NewFile returns a file-backed set at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Load reads the file. Blank and malformed lines are skipped.
func (f *File) Load(ctx context.Context) (dedup.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set := make(dedup.Set)
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return set, nil
		}
		return nil, fmt.Errorf("read seen-set %s: %w", f.path, err)
	}

	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		fp, err := dedup.ParseFingerprint(string(line))
		if err != nil {
			continue
		}
		set.Add(fp)
	}
	return set, nil
}

// Save replaces the file atomically with the contents of set.
func (f *File) Save(ctx context.Context, set dedup.Set) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lines := make([]string, 0, len(set))
	for fp := range set {
		lines = append(lines, fp.String())
	}
	sort.Strings(lines)

	var buf bytes.Buffer
	buf.Grow(len(lines) * 65)
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}

	if dir := filepath.Dir(f.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create seen-set directory: %w", err)
		}
	}

	tmpFile := f.path + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmpFile, err)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("write %s: %w", tmpFile, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("sync %s: %w", tmpFile, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("close %s: %w", tmpFile, err)
	}
	return os.Rename(tmpFile, f.path)
}

// Clear deletes the file.
func (f *File) Clear(ctx context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove seen-set %s: %w", f.path, err)
	}
	return nil
}

func (f *File) Close() error { return nil }
