package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wricardo/mcp-training/montecarlo/agent/learning"
)

// DefaultPath is where the CLI keeps the learned table
const DefaultPath = "montecarlo.dat"

// FileStore keeps one table in one file
type FileStore struct {
	path  string
	codec Codec
}

// NewFileStore creates a store at path, picking the codec from its extension
func NewFileStore(path string) *FileStore {
	return NewFileStoreWithCodec(path, CodecFor(filepath.Ext(path)))
}

// NewFileStoreWithCodec creates a store at path using codec
func NewFileStoreWithCodec(path string, codec Codec) *FileStore {
	return &FileStore{path: path, codec: codec}
}

// Path returns the backing file
func (fs *FileStore) Path() string {
	return fs.path
}

// Save overwrites the file with the encoded table. The data is written to a
// temporary file in the same directory and renamed into place.
func (fs *FileStore) Save(table *learning.ActionValueTable) error {
	if table == nil {
		return fmt.Errorf("table cannot be nil")
	}

	var buf bytes.Buffer
	if err := fs.codec.Encode(&buf, table); err != nil {
		return fmt.Errorf("failed to encode action values: %w", err)
	}

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(fs.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write action values: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", fs.path, err)
	}

	return nil
}

// Load reads the table back. A missing file yields ErrNoData.
func (fs *FileStore) Load() (*learning.ActionValueTable, error) {
	f, err := os.Open(fs.path)
	if os.IsNotExist(err) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fs.path, err)
	}
	defer f.Close()

	table, err := fs.codec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", fs.path, err)
	}
	return table, nil
}

// Exists reports whether the file is present
func (fs *FileStore) Exists() bool {
	_, err := os.Stat(fs.path)
	return err == nil
}

// Delete removes the file
func (fs *FileStore) Delete() error {
	if err := os.Remove(fs.path); err != nil {
		if os.IsNotExist(err) {
			return ErrNoData
		}
		return fmt.Errorf("failed to remove %s: %w", fs.path, err)
	}
	return nil
}
