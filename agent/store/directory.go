package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Directory holds named tables, one file per name
type Directory struct {
	dir   string
	codec Codec
}

// NewDirectory creates dir if needed and stores tables in it using codec
func NewDirectory(dir string, codec Codec) (*Directory, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tables directory: %w", err)
	}
	if codec == nil {
		codec = BinaryCodec{}
	}
	return &Directory{dir: dir, codec: codec}, nil
}

// Store returns the FileStore for name
func (d *Directory) Store(name string) (*FileStore, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}
	return NewFileStoreWithCodec(d.getFilePath(name), d.codec), nil
}

// List returns the names of every stored table, sorted
func (d *Directory) List() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables directory: %w", err)
	}

	ext := d.codec.Extension()
	names := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ext) {
			names[strings.TrimSuffix(name, ext)] = true
		}
	}

	return sortedNames(names), nil
}

// Exists reports whether a table called name has been saved
func (d *Directory) Exists(name string) bool {
	st, err := d.Store(name)
	if err != nil {
		return false
	}
	return st.Exists()
}

// Delete removes the table called name
func (d *Directory) Delete(name string) error {
	st, err := d.Store(name)
	if err != nil {
		return err
	}
	return st.Delete()
}

// Path returns the directory
func (d *Directory) Path() string {
	return d.dir
}

func (d *Directory) getFilePath(name string) string {
	return filepath.Join(d.dir, name+d.codec.Extension())
}
