package flat

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Snapshot file layout, little-endian throughout:
//
//	magic "DSIX" | uint32 version | uint32 dim | uint32 count
//	per entry: uint32 hashLen | hash | dim*float32 vector | uint32 recLen | record JSON
const (
	snapshotMagic   = "DSIX"
	snapshotVersion = 1
)

// persist writes the full snapshot to a temp file and renames it over the
// target, so readers never observe a half-written index. Caller holds the
// writer lock. In-memory indexes skip persistence.
func (x *Index) persist() error {
	if x.path == "" {
		return nil
	}

	dir := filepath.Dir(x.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(x.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := bufio.NewWriter(tmp)
	if err := x.encode(w); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), x.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (x *Index) encode(w io.Writer) error {
	if _, err := w.Write([]byte(snapshotMagic)); err != nil {
		return err
	}
	header := []uint32{snapshotVersion, uint32(x.dim), uint32(len(x.entries))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	for _, e := range x.entries {
		if err := writeBytes(w, []byte(e.hash)); err != nil {
			return err
		}
		for _, f := range e.vector {
			if err := binary.Write(w, binary.LittleEndian, math.Float32bits(f)); err != nil {
				return err
			}
		}
		rec, err := json.Marshal(e.record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if err := writeBytes(w, rec); err != nil {
			return err
		}
	}
	return nil
}

// load reads the snapshot at x.path into memory. A missing file is an empty
// index, not an error.
func (x *Index) load() error {
	f, err := os.Open(x.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != snapshotMagic {
		return fmt.Errorf("bad magic %q", magic)
	}

	var version, dim, count uint32
	for _, v := range []*uint32{&version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("read header: %w", err)
		}
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", version)
	}

	entries := make([]entry, 0, count)
	hashes := make(map[string]int, count)
	for i := uint32(0); i < count; i++ {
		hash, err := readBytes(r)
		if err != nil {
			return fmt.Errorf("read hash: %w", err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			var bits uint32
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return fmt.Errorf("read vector: %w", err)
			}
			vec[j] = math.Float32frombits(bits)
		}
		recData, err := readBytes(r)
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		var e entry
		if err := json.Unmarshal(recData, &e.record); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}
		e.hash = string(hash)
		e.vector = vec
		entries = append(entries, e)
		hashes[e.hash]++
	}

	x.entries = entries
	x.hashes = hashes
	x.dim = int(dim)
	x.logger.Debug("Index snapshot loaded",
		zap.String("path", x.path),
		zap.Int("entries", len(entries)),
		zap.Int("dimensions", x.dim),
	)
	return nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
