package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePersister keeps the override table in a single flat binary file that is rewritten wholesale
// on every save.
type FilePersister struct {
	Path string
}

// Load reads and decodes the file. A missing file is an empty table, not an error.
func (f *FilePersister) Load(_ context.Context) ([]Entry, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read override file %s: %w", f.Path, err)
	}
	entries, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode override file %s: %w", f.Path, err)
	}
	return entries, nil
}

// Save writes all entries to a temporary sibling and renames it over the target.
func (f *FilePersister) Save(_ context.Context, entries []Entry) error {
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create override dir: %w", err)
		}
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, Encode(entries), 0o644); err != nil {
		return fmt.Errorf("write override file: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("replace override file: %w", err)
	}
	return nil
}
