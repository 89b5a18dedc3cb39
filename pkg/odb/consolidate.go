package odb

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/calvinalkan/odb/pkg/odb/alternate"
	"github.com/calvinalkan/odb/pkg/odb/loose"
)

const multiIndexFileName = "multi-pack-index"

// diskEntry is one index file found while scanning pack directories.
type diskEntry struct {
	kind    contentKind
	path    string
	size    int64
	modTime time.Time

	// multi is set for kindMulti; the multi-pack-index has to be mapped
	// during the scan to learn which packs it covers.
	multi *MultiIndex
}

// consolidateWithDiskState rescans the objects directories and publishes a
// new view if anything changed. seen is the view the caller decided on;
// seenInitialized tells whether the caller had a real view before.
func (s *Store) consolidateWithDiskState(seen *slotIndex, seenInitialized bool) (*Outcome, error) {
	g := s.lockPath()
	defer g.unlock()

	cur := s.index.Load()
	if cur.stateID != seen.stateID {
		// Someone consolidated while we waited for the lock. Their result
		// is at least as fresh as a rescan would be.
		stable := seenInitialized && cur.generation == seen.generation

		return s.collectReplaceOutcome(cur, stable), nil
	}

	s.numDiskStateConsolidation.Add(1)

	alternates, err := alternate.Resolve(s.fsys, g.objectsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAlternates, err)
	}

	dbPaths := append([]string{g.objectsDir}, alternates...)

	known := make(map[string]*indexAndPacks, len(cur.slotIndices))
	for _, id := range cur.slotIndices {
		if c := s.files[id].files.Load(); c != nil {
			known[c.path] = c
		}
	}

	entries, err := s.scanDiskState(dbPaths, known)
	if err != nil {
		return nil, err
	}

	fp := fingerprint(dbPaths, entries)
	if cur.initialized && fp == s.fingerprint && s.tombstones == 0 {
		return nil, nil
	}

	next, stable, err := s.reconcile(g, cur, dbPaths, entries)
	if err != nil {
		return nil, err
	}

	s.fingerprint = fp

	if next == nil {
		return nil, nil
	}

	s.index.Store(next)

	s.log.Debug("odb: consolidated disk state",
		"generation", next.generation,
		"state_id", next.stateID,
		"slots", len(next.slotIndices),
		"loose_dbs", len(next.looseDBs),
		"stable", stable,
	)

	return s.collectReplaceOutcome(next, stable), nil
}

// scanDiskState lists the pack directory of every db path. Missing pack
// directories are fine; an unreadable primary objects directory is not.
func (s *Store) scanDiskState(dbPaths []string, known map[string]*indexAndPacks) ([]diskEntry, error) {
	info, err := s.fsys.Stat(dbPaths[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrObjectsDir, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrObjectsDir, dbPaths[0])
	}

	var out []diskEntry

	for _, db := range dbPaths {
		packDir := filepath.Join(db, "pack")

		dirEntries, err := s.fsys.ReadDir(packDir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("%w: %w", ErrObjectsDir, err)
		}

		var (
			singles []diskEntry
			covered map[string]bool
		)

		for _, de := range dirEntries {
			name := de.Name()

			isIndex := strings.HasSuffix(name, ".idx") && strings.HasPrefix(name, "pack-")
			isMulti := name == multiIndexFileName && s.useMultiIndex

			if de.IsDir() || (!isIndex && !isMulti) {
				continue
			}

			path := filepath.Join(packDir, name)

			// Follow symlinks; mapFile records the target's size and mtime.
			fi, err := s.fsys.Stat(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					// Deleted between listing and stat, or a dangling link.
					continue
				}

				return nil, fmt.Errorf("%w: %w", ErrObjectsDir, err)
			}

			if fi.IsDir() {
				continue
			}

			e := diskEntry{
				kind:    kindSingle,
				path:    path,
				size:    fi.Size(),
				modTime: fi.ModTime(),
			}

			if isIndex {
				singles = append(singles, e)

				continue
			}

			e.kind = kindMulti

			if c, ok := known[e.path]; ok && c.kind == kindMulti && c.sameFile(e.size, e.modTime) {
				e.multi = c.multiIndex.loaded()
			}

			if e.multi == nil {
				e.multi, err = s.openMultiIndex(e.path)
				if err != nil {
					return nil, err
				}
			}

			covered = make(map[string]bool, len(e.multi.indexNames))
			for _, n := range e.multi.indexNames {
				covered[n] = true
			}

			out = append(out, e)
		}

		for _, e := range singles {
			if covered[filepath.Base(e.path)] {
				continue
			}

			out = append(out, e)
		}
	}

	return out, nil
}

// reconcile turns the scan into the next view. It returns a nil index when
// nothing observable changed.
func (s *Store) reconcile(g *pathGuard, cur *slotIndex, dbPaths []string, entries []diskEntry) (*slotIndex, bool, error) {
	// A path can be listed twice while a replaced file is kept around for
	// stable handles.
	byPath := make(map[string][]SlotID, len(cur.slotIndices))
	for _, id := range cur.slotIndices {
		if c := s.files[id].files.Load(); c != nil {
			byPath[c.path] = append(byPath[c.path], id)
		}
	}

	var (
		kept    []SlotID
		added   []diskEntry
		removed []SlotID
	)

	keptSet := make(map[SlotID]bool, len(cur.slotIndices))

	for _, e := range entries {
		id, ok := matchSlot(s.files, byPath[e.path], e)
		if ok {
			kept = append(kept, id)
			keptSet[id] = true

			continue
		}

		added = append(added, e)
	}

	for _, id := range cur.slotIndices {
		if !keptSet[id] {
			removed = append(removed, id)
		}
	}

	var free []SlotID

	for i := range s.files {
		if s.files[i].files.Load() == nil {
			free = append(free, SlotID(i))
		}
	}

	canUnload := s.mayUnloadPacks(g)
	bump := len(removed) > 0 && canUnload

	if len(added) > len(free) {
		if !canUnload || len(added) > len(free)+len(removed) {
			return nil, false, fmt.Errorf("%d new index files, %d free slots of %d: %w",
				len(added), len(free), len(s.files), ErrInsufficientSlots)
		}

		bump = true
	}

	looseDBs, looseChanged := s.nextLooseDBs(cur, dbPaths)

	if cur.initialized && len(added) == 0 && !bump && !looseChanged {
		s.tombstones = len(removed)

		return nil, false, nil
	}

	// Map every new index before touching any slot, so a failure leaves
	// the published view and the slot array as they were.
	contents := make([]*indexAndPacks, len(added))

	for i, e := range added {
		if e.kind == kindMulti {
			contents[i] = newMulti(e.multi)

			continue
		}

		idx, err := s.openPackIndex(e.path)
		if err != nil {
			return nil, false, err
		}

		contents[i] = newSingle(idx)
	}

	generation := cur.generation
	slotIDs := kept

	if bump {
		generation++

		for _, id := range removed {
			s.files[id].generation.Store(generation)
			s.files[id].files.Store(nil)
		}

		free = slices.Sorted(slices.Values(append(free, removed...)))
		s.tombstones = 0
	} else {
		slotIDs = append(slotIDs, removed...)
		s.tombstones = len(removed)

		if len(removed) > 0 {
			s.log.Info("odb: keeping removed index files mapped for stable handles",
				"count", len(removed),
				"stable_handles", s.numHandlesStable.Load(),
			)
		}
	}

	for i, c := range contents {
		id := free[i]
		s.files[id].generation.Store(generation)
		s.files[id].files.Store(c)
		slotIDs = append(slotIDs, id)
	}

	s.sortSlots(slotIDs)

	next := &slotIndex{
		slotIndices: slotIDs,
		looseDBs:    looseDBs,
		generation:  generation,
		stateID:     s.stateIDs.Add(1),
		initialized: true,
	}

	stable := cur.initialized && !bump

	return next, stable, nil
}

// matchSlot finds the candidate slot still holding exactly the file e.
func matchSlot(files []slot, candidates []SlotID, e diskEntry) (SlotID, bool) {
	for _, id := range candidates {
		c := files[id].files.Load()
		if c.kind == e.kind && c.sameFile(e.size, e.modTime) {
			return id, true
		}
	}

	return 0, false
}

// sortSlots orders multi-pack-indices first, then newest first, then by
// path.
func (s *Store) sortSlots(ids []SlotID) {
	slices.SortFunc(ids, func(a, b SlotID) int {
		ca, cb := s.files[a].files.Load(), s.files[b].files.Load()

		if ca.kind != cb.kind {
			return cmp.Compare(cb.kind, ca.kind)
		}

		if c := cb.modTime.Compare(ca.modTime); c != 0 {
			return c
		}

		return cmp.Compare(ca.path, cb.path)
	})
}

// nextLooseDBs returns the loose-db list for dbPaths, reusing the current
// slice when nothing changed and individual stores when their path did
// not.
func (s *Store) nextLooseDBs(cur *slotIndex, dbPaths []string) ([]*loose.Store, bool) {
	if len(cur.looseDBs) == len(dbPaths) {
		same := true

		for i, db := range cur.looseDBs {
			if db.Path() != dbPaths[i] {
				same = false

				break
			}
		}

		if same {
			return cur.looseDBs, false
		}
	}

	existing := make(map[string]*loose.Store, len(cur.looseDBs))
	for _, db := range cur.looseDBs {
		existing[db.Path()] = db
	}

	out := make([]*loose.Store, len(dbPaths))

	for i, path := range dbPaths {
		if db, ok := existing[path]; ok {
			out[i] = db

			continue
		}

		out[i] = loose.New(s.fsys, path)
	}

	return out, true
}

// fingerprint hashes everything consolidation looks at, so a rescan that
// finds the same files can stop early.
func fingerprint(dbPaths []string, entries []diskEntry) uint64 {
	h := xxhash.New()

	var buf [8]byte

	for _, p := range dbPaths {
		_, _ = h.WriteString(p)
		_, _ = h.Write([]byte{0})
	}

	for _, e := range entries {
		_, _ = h.WriteString(e.path)
		_, _ = h.Write([]byte{0, byte(e.kind)})

		binary.LittleEndian.PutUint64(buf[:], uint64(e.size))
		_, _ = h.Write(buf[:])

		binary.LittleEndian.PutUint64(buf[:], uint64(e.modTime.UnixNano()))
		_, _ = h.Write(buf[:])
	}

	return h.Sum64()
}

func (s *Store) openPackIndex(path string) (*PackIndex, error) {
	m, err := mapFile(s.fsys, path)
	if err != nil {
		return nil, fmt.Errorf("pack index %s: %w", path, err)
	}

	return parsePackIndex(m, s.hashLen)
}

func (s *Store) openMultiIndex(path string) (*MultiIndex, error) {
	m, err := mapFile(s.fsys, path)
	if err != nil {
		return nil, fmt.Errorf("multi-pack-index %s: %w", path, err)
	}

	return parseMultiIndex(m, s.hashLen)
}

func (s *Store) openPackData(path string) (*PackData, error) {
	m, err := mapFile(s.fsys, path)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", path, err)
	}

	return parsePackData(m, s.hashLen)
}
