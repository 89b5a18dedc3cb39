package odb

import (
	"fmt"
	"runtime"
)

// LoadNextIndices decides whether the caller's view is outdated and returns
// a fresh snapshot if so.
//
// marker is nil on a handle's first call and the marker of its last
// snapshot afterwards. A nil outcome with a nil error means there is
// nothing new; the caller should give up on the current search. That can
// happen even with [RefreshAfterAllIndicesLoaded] when the disk did not
// change either.
//
// Only the initial load and an up-to-date caller in
// [RefreshAfterAllIndicesLoaded] mode touch the disk; every other decision
// is made from the in-memory view.
func (s *Store) LoadNextIndices(mode RefreshMode, marker *Marker) (*Outcome, error) {
	idx := s.index.Load()

	if !idx.initialized {
		return s.consolidateWithDiskState(idx, false)
	}

	if marker == nil {
		return s.collectReplaceOutcome(idx, false), nil
	}

	switch {
	case marker.Generation != idx.generation:
		return s.collectReplaceOutcome(idx, false), nil
	case marker.StateID == idx.stateID:
		switch mode {
		case RefreshNever:
			return nil, nil
		case RefreshAfterAllIndicesLoaded:
			return s.consolidateWithDiskState(idx, true)
		default:
			return nil, fmt.Errorf("refresh mode %d: %w", mode, ErrInvalidInput)
		}
	default:
		return s.collectReplaceOutcome(idx, true), nil
	}
}

// CollectSnapshot returns a snapshot of the current view.
//
// Slots whose index is not mapped yet are left out; a later refresh picks
// them up.
func (s *Store) CollectSnapshot() *Snapshot {
	for {
		snap := s.collectSnapshotFrom(s.index.Load())
		if snap != nil {
			return snap
		}

		// A bump is still publishing its index.
		runtime.Gosched()
	}
}

// collectReplaceOutcome builds the outcome from idx. If idx was overtaken by
// a generation bump while collecting, the newest view is used instead and
// the outcome becomes a plain replace.
func (s *Store) collectReplaceOutcome(idx *slotIndex, stable bool) *Outcome {
	for {
		snap := s.collectSnapshotFrom(idx)
		if snap != nil {
			kind := OutcomeReplace
			if stable {
				kind = OutcomeReplaceStable
			}

			return &Outcome{Kind: kind, Snapshot: snap}
		}

		runtime.Gosched()

		idx = s.index.Load()
		stable = false
	}
}

// collectSnapshotFrom returns nil if any listed slot was reassigned or
// vacated by a generation newer than idx.
func (s *Store) collectSnapshotFrom(idx *slotIndex) *Snapshot {
	indices := make([]IndexLookup, 0, len(idx.slotIndices))

	for _, id := range idx.slotIndices {
		sl := &s.files[id]

		content := sl.files.Load()
		if sl.generation.Load() > idx.generation {
			return nil
		}

		if content == nil {
			continue
		}

		lookup, ok := content.lookup(id)
		if !ok {
			continue
		}

		indices = append(indices, lookup)
	}

	return &Snapshot{
		Indices:  indices,
		LooseDBs: idx.looseDBs,
		Marker:   idx.marker(),
	}
}

// lookup materializes the loaded parts of c. It reports false if the
// index itself is not mapped.
func (c *indexAndPacks) lookup(id SlotID) (IndexLookup, bool) {
	switch c.kind {
	case kindSingle:
		index := c.index.loaded()
		if index == nil {
			return IndexLookup{}, false
		}

		return IndexLookup{
			ID:      id,
			Kind:    LookupSingle,
			Index:   index,
			Data:    c.data.loaded(),
			content: c,
		}, true
	case kindMulti:
		multi := c.multiIndex.loaded()
		if multi == nil {
			return IndexLookup{}, false
		}

		data := make([]*PackData, len(c.multiData))
		for i, d := range c.multiData {
			data[i] = d.loaded()
		}

		return IndexLookup{
			ID:        id,
			Kind:      LookupMulti,
			Multi:     multi,
			MultiData: data,
			content:   c,
		}, true
	default:
		return IndexLookup{}, false
	}
}

// mayUnloadPacks reports whether mapped packs may be dropped and slot ids
// vacated. It must be called with the path mutex held so the answer stays
// true until the caller is done.
func (s *Store) mayUnloadPacks(_ *pathGuard) bool {
	return s.numHandlesStable.Load() == 0
}

// MayUnloadPacks reports whether no live handle currently requires stable
// slot ids.
func (s *Store) MayUnloadPacks() bool {
	g := s.lockPath()
	defer g.unlock()

	return s.mayUnloadPacks(g)
}

// ReleasePackData drops every mapped pack data file from the slots of the
// current view, keeping indices mapped and slot ids unchanged. Packs are
// mapped again on demand. It reports how many files were dropped, and
// false if stable handles forbid unloading.
//
// Snapshots that already hold a pack keep reading it; the mapping goes away
// once nothing references it.
func (s *Store) ReleasePackData() (int, bool) {
	g := s.lockPath()
	defer g.unlock()

	if !s.mayUnloadPacks(g) {
		return 0, false
	}

	idx := s.index.Load()
	released := 0

	for _, id := range idx.slotIndices {
		if c := s.files[id].files.Load(); c != nil {
			released += c.unloadPacks()
		}
	}

	if released > 0 {
		s.log.Debug("odb: released pack data", "count", released)
	}

	return released, true
}

// LoadPackData maps pack i of lookup if needed and returns it.
//
// It fails with [ErrStaleSlot] if the lookup's slot no longer holds the
// content the lookup was built from.
func (s *Store) LoadPackData(lookup IndexLookup, i int) (*PackData, error) {
	if lookup.ID < 0 || int(lookup.ID) >= len(s.files) || lookup.content == nil {
		return nil, fmt.Errorf("lookup for slot %d: %w", lookup.ID, ErrInvalidInput)
	}

	if i < 0 || i >= lookup.NumPacks() {
		return nil, fmt.Errorf("pack %d of %d: %w", i, lookup.NumPacks(), ErrInvalidInput)
	}

	c := s.files[lookup.ID].files.Load()
	if c != lookup.content {
		return nil, fmt.Errorf("slot %d: %w", lookup.ID, ErrStaleSlot)
	}

	switch c.kind {
	case kindSingle:
		index := c.index.loaded()
		if index == nil {
			return nil, fmt.Errorf("slot %d: %w", lookup.ID, ErrStaleSlot)
		}

		return c.data.load(func(path string) (*PackData, error) {
			pack, err := s.openPackData(path)
			if err != nil {
				return nil, err
			}

			err = pack.verifyAgainst(index)
			if err != nil {
				return nil, err
			}

			return pack, nil
		})
	default:
		return c.multiData[i].load(s.openPackData)
	}
}
