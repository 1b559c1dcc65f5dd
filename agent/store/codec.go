package store

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/wricardo/mcp-training/montecarlo/agent/learning"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

const (
	// FormatVersion is the current encoding version of both codecs
	FormatVersion uint16 = 1

	binaryMagic = "MCQT"
)

var (
	ErrNoData       = errors.New("no saved action values")
	ErrCorruptTable = errors.New("corrupt action value table")
)

// Codec converts a table to and from a byte stream
type Codec interface {
	Encode(w io.Writer, table *learning.ActionValueTable) error
	Decode(r io.Reader) (*learning.ActionValueTable, error)
	Extension() string
}

// BinaryCodec is the compact default encoding
type BinaryCodec struct{}

// Extension returns the conventional file extension
func (BinaryCodec) Extension() string {
	return ".dat"
}

// Encode writes the table in the versioned binary format
func (BinaryCodec) Encode(w io.Writer, table *learning.ActionValueTable) error {
	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	if _, err := bw.WriteString(binaryMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, le, FormatVersion); err != nil {
		return err
	}

	states := table.States()
	if err := binary.Write(bw, le, uint32(len(states))); err != nil {
		return err
	}

	for _, s := range states {
		if len(s) > math.MaxUint16 {
			return fmt.Errorf("state key too long: %d bytes", len(s))
		}
		if err := binary.Write(bw, le, uint16(len(s))); err != nil {
			return err
		}
		if _, err := bw.WriteString(string(s)); err != nil {
			return err
		}

		actions := table.Actions(s)
		if err := bw.WriteByte(byte(len(actions))); err != nil {
			return err
		}
		for _, a := range world.AllActions {
			v, ok := actions[a]
			if !ok {
				continue
			}
			if err := bw.WriteByte(byte(a)); err != nil {
				return err
			}
			if err := binary.Write(bw, le, math.Float64bits(v)); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// Decode reads a table written by Encode
func (BinaryCodec) Decode(r io.Reader) (*learning.ActionValueTable, error) {
	br := bufio.NewReader(r)
	le := binary.LittleEndian

	magic := make([]byte, len(binaryMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, corrupt("reading magic: %v", err)
	}
	if string(magic) != binaryMagic {
		return nil, corrupt("bad magic %q", magic)
	}

	var version uint16
	if err := binary.Read(br, le, &version); err != nil {
		return nil, corrupt("reading version: %v", err)
	}
	if version != FormatVersion {
		return nil, corrupt("unsupported version %d", version)
	}

	var count uint32
	if err := binary.Read(br, le, &count); err != nil {
		return nil, corrupt("reading state count: %v", err)
	}

	table := learning.NewActionValueTable()
	for i := uint32(0); i < count; i++ {
		var keyLen uint16
		if err := binary.Read(br, le, &keyLen); err != nil {
			return nil, corrupt("state %d: reading key length: %v", i, err)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return nil, corrupt("state %d: reading key: %v", i, err)
		}

		n, err := br.ReadByte()
		if err != nil {
			return nil, corrupt("state %d: reading action count: %v", i, err)
		}
		if int(n) > world.NumActions {
			return nil, corrupt("state %q: %d actions", key, n)
		}

		for j := 0; j < int(n); j++ {
			id, err := br.ReadByte()
			if err != nil {
				return nil, corrupt("state %q: reading action: %v", key, err)
			}
			action := world.Action(id)
			if !action.Valid() {
				return nil, corrupt("state %q: invalid action %d", key, id)
			}
			var bits uint64
			if err := binary.Read(br, le, &bits); err != nil {
				return nil, corrupt("state %q: reading value: %v", key, err)
			}
			table.Set(world.State(key), action, math.Float64frombits(bits))
		}
	}

	if _, err := br.ReadByte(); err != io.EOF {
		return nil, corrupt("trailing data after %d states", count)
	}

	return table, nil
}

// JSONCodec writes tables as indented JSON keyed by action name
type JSONCodec struct{}

// jsonTable is the on-disk JSON document
type jsonTable struct {
	Version uint16                        `json:"version"`
	States  map[string]map[string]float64 `json:"states"`
}

// Extension returns the conventional file extension
func (JSONCodec) Extension() string {
	return ".json"
}

// Encode writes the table as JSON
func (JSONCodec) Encode(w io.Writer, table *learning.ActionValueTable) error {
	doc := jsonTable{
		Version: FormatVersion,
		States:  make(map[string]map[string]float64, table.Len()),
	}
	for s, actions := range table.Snapshot() {
		inner := make(map[string]float64, len(actions))
		for a, v := range actions {
			inner[a.String()] = v
		}
		doc.States[string(s)] = inner
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to marshal action values: %w", err)
	}
	return nil
}

// Decode reads a table written by Encode
func (JSONCodec) Decode(r io.Reader) (*learning.ActionValueTable, error) {
	var doc jsonTable
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, corrupt("invalid JSON: %v", err)
	}
	if doc.Version != FormatVersion {
		return nil, corrupt("unsupported version %d", doc.Version)
	}

	table := learning.NewActionValueTable()
	for s, actions := range doc.States {
		for name, v := range actions {
			a, err := world.ParseAction(name)
			if err != nil {
				return nil, corrupt("state %q: %v", s, err)
			}
			table.Set(world.State(s), a, v)
		}
	}
	return table, nil
}

// CodecFor picks the codec matching a file extension, binary by default
func CodecFor(ext string) Codec {
	if ext == (JSONCodec{}).Extension() {
		return JSONCodec{}
	}
	return BinaryCodec{}
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptTable, fmt.Sprintf(format, args...))
}

// sortedNames returns the keys of m in order
func sortedNames(m map[string]bool) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
