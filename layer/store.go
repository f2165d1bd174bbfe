package layer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/pthm-cable/oilfield/depletion"
)

var (
	// ErrSnapshotExists is returned by Save when a snapshot is already on
	// disk. Hiding twice would overwrite the only copy of the original layer.
	ErrSnapshotExists = errors.New("snapshot already exists")
	// ErrSnapshotMissing is returned by Load when no snapshot has been saved.
	ErrSnapshotMissing = errors.New("snapshot not found")
	// ErrInvalidSnapshot is returned when a snapshot cannot be decoded or
	// fails validation.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// zstdMagic prefixes every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Store reads and writes one snapshot file.
//
// Files are written as zstd-compressed JSON. Plain JSON files are also read,
// so layers exported by other tools load unchanged.
type Store struct {
	Path     string
	Validate bool // check against the layer schema on Load
	Logger   *slog.Logger
}

// NewStore creates a store for path.
func NewStore(path string, validate bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Path: path, Validate: validate, Logger: logger}
}

// Exists reports whether a snapshot file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Save writes v, refusing to overwrite an existing snapshot. The finished
// file is hard-linked into place, so of two concurrent saves only one wins.
func (s *Store) Save(v Values) error {
	if s.Exists() {
		return fmt.Errorf("%w: %s", ErrSnapshotExists, s.Path)
	}
	return s.write(v, false)
}

// Replace writes v, overwriting any existing snapshot. The new file is
// written beside the old one and renamed into place.
func (s *Store) Replace(v Values) error {
	return s.write(v, true)
}

// Load reads the snapshot.
func (s *Store) Load() (Values, error) {
	var v Values
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return v, fmt.Errorf("%w: %s", ErrSnapshotMissing, s.Path)
	}
	if err != nil {
		return v, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 256*1024)
	head, _ := br.Peek(len(zstdMagic))

	var r io.Reader = br
	if bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return v, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		defer dec.Close()
		r = dec
	}

	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return v, fmt.Errorf("%w: decoding %s: %v", ErrInvalidSnapshot, s.Path, err)
	}

	if s.Validate {
		if err := Validate(v); err != nil {
			return v, err
		}
	} else if err := v.Check(); err != nil {
		return v, err
	}

	s.logger().Debug("loaded snapshot", "path", s.Path, "width", v.Width, "height", v.Height)
	return v, nil
}

// Remove deletes the snapshot file. Removing a missing file is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing snapshot: %w", err)
	}
	return nil
}

func (s *Store) write(v Values, replace bool) error {
	if err := v.Check(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := encode(tmp, v); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if replace {
		if err := os.Rename(tmpPath, s.Path); err != nil {
			return fmt.Errorf("renaming snapshot: %w", err)
		}
	} else if err := os.Link(tmpPath, s.Path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrSnapshotExists, s.Path)
		}
		return fmt.Errorf("linking snapshot: %w", err)
	}

	s.logger().Info("saved snapshot", "path", s.Path, "width", v.Width, "height", v.Height)
	return nil
}

func encode(w io.Writer, v Values) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)
	if err := json.NewEncoder(bw).Encode(v); err != nil {
		enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func (s *Store) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Hide saves the grid to the store and then zeroes it in place, so the field
// shows no oil until the layer is shown again. It fails without touching the
// grid if a snapshot already exists.
func Hide(s *Store, g *depletion.Grid) error {
	if err := s.Save(FromGrid(g)); err != nil {
		return err
	}
	w, h := g.Dimensions()
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			g.Set(x, y, 0)
		}
	}
	return nil
}

// Show loads the hidden snapshot as a new grid.
func Show(s *Store) (*depletion.Grid, error) {
	v, err := s.Load()
	if err != nil {
		return nil, err
	}
	return v.Grid(), nil
}
