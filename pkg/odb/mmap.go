package odb

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/calvinalkan/odb/pkg/fs"
)

// mapping is a read-only, shared memory map of a whole file.
//
// The map is released by a cleanup once the mapping becomes unreachable, so
// a slot can drop its reference while snapshots that still hold it keep
// reading valid memory. data must never escape a mapping method: a slice
// into the map does not keep the mapping reachable.
type mapping struct {
	path    string
	data    []byte
	size    int64
	modTime time.Time
}

// mapFile opens path through fsys and maps it read-only.
func mapFile(fsys fs.FS, path string) (*mapping, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}

	size := info.Size()
	if size > math.MaxInt {
		return nil, fmt.Errorf("%s: size %d not mappable: %w", path, size, ErrCorruptIndex)
	}

	m := &mapping{path: path, size: size, modTime: info.ModTime()}

	// mmap(2) rejects zero-length maps; format validation reports the
	// empty file.
	if size == 0 {
		m.data = []byte{}

		return m, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	m.data = data

	runtime.AddCleanup(m, func(data []byte) {
		_ = unix.Munmap(data)
	}, data)

	return m, nil
}

// readAt copies mapped bytes at off into b, with [io.ReaderAt] semantics.
func (m *mapping) readAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%s: read at %d: %w", m.path, off, ErrInvalidInput)
	}

	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}

	n := copy(b, m.data[off:])

	runtime.KeepAlive(m)

	if n < len(b) {
		return n, io.EOF
	}

	return n, nil
}
