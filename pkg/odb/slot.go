package odb

import (
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// SlotID is the fixed position of a slot in the store's slot array.
type SlotID int

// SlotState describes what a slot currently holds.
type SlotState uint8

const (
	// SlotEmpty slots hold nothing and are free for assignment.
	SlotEmpty SlotState = iota
	// SlotUnloaded slots have content assigned but its index is not mapped.
	SlotUnloaded
	// SlotLoaded slots have their index mapped and are visible to snapshots.
	SlotLoaded
)

func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "empty"
	case SlotUnloaded:
		return "unloaded"
	case SlotLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// onDiskFile is a file that is mapped on first use and can be dropped and
// remapped later without changing the identity of its slot.
type onDiskFile[T any] struct {
	path  string
	state atomic.Pointer[T]
}

// loaded returns the mapped value or nil.
func (f *onDiskFile[T]) loaded() *T {
	return f.state.Load()
}

// load maps the file with open unless already mapped. Concurrent loaders
// race; the first to publish wins and the others drop their maps.
func (f *onDiskFile[T]) load(open func(path string) (*T, error)) (*T, error) {
	if v := f.state.Load(); v != nil {
		return v, nil
	}

	v, err := open(f.path)
	if err != nil {
		return nil, err
	}

	if f.state.CompareAndSwap(nil, v) {
		return v, nil
	}

	if cur := f.state.Load(); cur != nil {
		return cur, nil
	}

	return v, nil
}

// unload drops the mapped value. It reports whether anything was mapped.
func (f *onDiskFile[T]) unload() bool {
	return f.state.Swap(nil) != nil
}

type contentKind uint8

const (
	kindSingle contentKind = iota + 1
	kindMulti
)

// indexAndPacks is the content of a populated slot: either one pack index
// with its pack, or one multi-pack-index with all packs it covers.
//
// The identity fields never change; the onDiskFile states do.
type indexAndPacks struct {
	kind contentKind

	path    string
	size    int64
	modTime time.Time

	index      onDiskFile[PackIndex]
	data       onDiskFile[PackData]
	multiIndex onDiskFile[MultiIndex]
	multiData  []*onDiskFile[PackData]
}

func newSingle(idx *PackIndex) *indexAndPacks {
	c := &indexAndPacks{
		kind:    kindSingle,
		path:    idx.m.path,
		size:    idx.m.size,
		modTime: idx.m.modTime,
	}
	c.index.path = idx.m.path
	c.index.state.Store(idx)
	c.data.path = packPathFor(idx.m.path)

	return c
}

func newMulti(mi *MultiIndex) *indexAndPacks {
	c := &indexAndPacks{
		kind:    kindMulti,
		path:    mi.m.path,
		size:    mi.m.size,
		modTime: mi.m.modTime,
	}
	c.multiIndex.path = mi.m.path
	c.multiIndex.state.Store(mi)

	dir := filepath.Dir(mi.m.path)
	for _, name := range mi.indexNames {
		c.multiData = append(c.multiData, &onDiskFile[PackData]{path: packPathFor(filepath.Join(dir, name))})
	}

	return c
}

// sameFile reports whether size and mtime still match what was mapped.
func (c *indexAndPacks) sameFile(size int64, modTime time.Time) bool {
	return c.size == size && c.modTime.Equal(modTime)
}

func (c *indexAndPacks) state() SlotState {
	switch c.kind {
	case kindSingle:
		if c.index.loaded() != nil {
			return SlotLoaded
		}
	case kindMulti:
		if c.multiIndex.loaded() != nil {
			return SlotLoaded
		}
	}

	return SlotUnloaded
}

// mappedPacks counts pack data files currently mapped.
func (c *indexAndPacks) mappedPacks() int {
	if c.kind == kindSingle {
		if c.data.loaded() != nil {
			return 1
		}

		return 0
	}

	n := 0

	for _, d := range c.multiData {
		if d.loaded() != nil {
			n++
		}
	}

	return n
}

// unloadPacks drops every mapped pack data file and returns how many.
func (c *indexAndPacks) unloadPacks() int {
	if c.kind == kindSingle {
		if c.data.unload() {
			return 1
		}

		return 0
	}

	n := 0

	for _, d := range c.multiData {
		if d.unload() {
			n++
		}
	}

	return n
}

// packPathFor maps pack-<hash>.idx to pack-<hash>.pack.
func packPathFor(indexPath string) string {
	return strings.TrimSuffix(indexPath, ".idx") + ".pack"
}

// slot is a fixed-identity cell of the store's slot array.
//
// generation is the store generation in which files was last assigned or
// vacated. Writers store generation before files, so a reader that loads
// files first and then sees a generation newer than its view knows the
// content does not belong to that view.
type slot struct {
	files      atomic.Pointer[indexAndPacks]
	generation atomic.Uint64
}

func (s *slot) state() SlotState {
	c := s.files.Load()
	if c == nil {
		return SlotEmpty
	}

	return c.state()
}
