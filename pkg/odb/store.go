package odb

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/calvinalkan/odb/pkg/fs"
	"github.com/calvinalkan/odb/pkg/odb/alternate"
)

// Store owns the slot array and the current view of an object database.
//
// Store is safe for concurrent use. Create one per repository and share it;
// it has no background goroutines and needs no explicit teardown.
type Store struct {
	fsys          fs.FS
	log           *slog.Logger
	hashLen       int
	useMultiIndex bool

	// mu serializes consolidation and unload decisions. Only lockPath may
	// take it.
	mu          sync.Mutex
	objectsDir  string // guarded by mu
	fingerprint uint64 // guarded by mu
	tombstones  int    // guarded by mu; listed slots whose files are gone

	// index is the published view. Readers load it without locking.
	index atomic.Pointer[slotIndex]
	files []slot

	stateIDs atomic.Uint64

	numHandles                atomic.Int64
	numHandlesStable          atomic.Int64
	numDiskStateConsolidation atomic.Uint64
}

// Open creates a store for opts.ObjectsDir.
//
// Open checks that the objects directory exists and sizes the slot array,
// but does not map anything; the first refresh scans the disk.
func Open(opts Options) (*Store, error) {
	if opts.ObjectsDir == "" {
		return nil, fmt.Errorf("objects dir is required: %w", ErrInvalidInput)
	}

	if opts.Slots < 0 {
		return nil, fmt.Errorf("slots must be >= 0, got %d: %w", opts.Slots, ErrInvalidInput)
	}

	if opts.ObjectHash != SHA1 && opts.ObjectHash != SHA256 {
		return nil, fmt.Errorf("unknown object hash %d: %w", opts.ObjectHash, ErrInvalidInput)
	}

	fsys := opts.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	objectsDir := filepath.Clean(opts.ObjectsDir)

	info, err := fsys.Stat(objectsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrObjectsDir, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrObjectsDir, objectsDir)
	}

	numSlots := opts.Slots
	if numSlots == 0 {
		numSlots = slotsForDisk(fsys, objectsDir)
	}

	s := &Store{
		fsys:          fsys,
		log:           logger,
		hashLen:       opts.ObjectHash.Len(),
		useMultiIndex: !opts.IgnoreMultiPackIndex,
		objectsDir:    objectsDir,
		files:         make([]slot, numSlots),
	}
	s.index.Store(&slotIndex{})

	logger.Debug("odb: opened store", "objects_dir", objectsDir, "slots", numSlots)

	return s, nil
}

// slotsForDisk estimates the slot count from the index files present now.
// Errors only shrink the estimate; consolidation reports them properly.
func slotsForDisk(fsys fs.FS, objectsDir string) int {
	dirs := []string{objectsDir}

	alternates, err := alternate.Resolve(fsys, objectsDir)
	if err == nil {
		dirs = append(dirs, alternates...)
	}

	n := 0

	for _, dir := range dirs {
		entries, err := fsys.ReadDir(filepath.Join(dir, "pack"))
		if err != nil {
			continue
		}

		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".idx") || e.Name() == multiIndexFileName {
				n++
			}
		}
	}

	// Ten percent headroom, rounded up.
	return max(MinSlots, n+(n+9)/10)
}

// pathGuard proves that the caller holds the store's path mutex.
type pathGuard struct {
	s          *Store
	objectsDir string
}

func (s *Store) lockPath() *pathGuard {
	s.mu.Lock()

	return &pathGuard{s: s, objectsDir: s.objectsDir}
}

func (g *pathGuard) unlock() {
	g.s.mu.Unlock()
}

// ObjectsDir returns the primary objects directory.
func (s *Store) ObjectsDir() string {
	g := s.lockPath()
	defer g.unlock()

	return g.objectsDir
}

// Marker returns the marker of the current view.
func (s *Store) Marker() Marker {
	return s.index.Load().marker()
}

// NumSlots returns the fixed size of the slot array.
func (s *Store) NumSlots() int {
	return len(s.files)
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Handles        int64
	StableHandles  int64
	Consolidations uint64

	Initialized bool
	Generation  uint64
	StateID     uint64

	Slots         int
	SlotsEmpty    int
	SlotsUnloaded int
	SlotsLoaded   int
	// ListedSlots is the number of slots in the current view.
	ListedSlots int
	PacksMapped int
	LooseDBs    int
}

// Stats reads every counter without blocking on consolidation. The values
// are individually accurate but not taken atomically as a group.
func (s *Store) Stats() Stats {
	idx := s.index.Load()

	st := Stats{
		Handles:        s.numHandles.Load(),
		StableHandles:  s.numHandlesStable.Load(),
		Consolidations: s.numDiskStateConsolidation.Load(),
		Initialized:    idx.initialized,
		Generation:     idx.generation,
		StateID:        idx.stateID,
		Slots:          len(s.files),
		ListedSlots:    len(idx.slotIndices),
		LooseDBs:       len(idx.looseDBs),
	}

	for i := range s.files {
		switch s.files[i].state() {
		case SlotEmpty:
			st.SlotsEmpty++
		case SlotUnloaded:
			st.SlotsUnloaded++
		case SlotLoaded:
			st.SlotsLoaded++
		}

		if c := s.files[i].files.Load(); c != nil {
			st.PacksMapped += c.mappedPacks()
		}
	}

	return st
}
