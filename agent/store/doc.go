// Package store persists learned action-value tables.
//
// The store package implements:
//   - A versioned binary encoding of the State -> Action -> value mapping
//   - An indented JSON encoding for tables meant to be read by people
//   - FileStore, a single-file store that overwrites on Save
//   - Directory, a set of named tables under one directory
//
// File Format:
//
// The binary format starts with the magic "MCQT" and a little-endian uint16
// version (currently 1), followed by a uint32 state count. Each state is a
// uint16 length-prefixed key, a uint8 action count, and per action a uint8
// action id and the IEEE-754 bits of its value as a uint64. States are written
// in sorted order and actions in ascending id, so equal tables encode to equal
// bytes.
//
// Missing Data:
//
// Load returns ErrNoData when the file does not exist and an error wrapping
// ErrCorruptTable when it cannot be decoded. Callers treat both as "no saved
// table" and train from scratch.
//
// Usage:
//
//	st := store.NewFileStore("montecarlo.dat")
//	if err := st.Save(table); err != nil {
//		return err
//	}
//
//	table, err := st.Load()
//	if errors.Is(err, store.ErrNoData) {
//		// nothing saved yet
//	}
package store
