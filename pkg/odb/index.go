package odb

import "github.com/calvinalkan/odb/pkg/odb/loose"

// Marker is the (generation, state id) pair of a published view.
//
// Callers keep the marker of the last snapshot they received and pass it
// back to [Store.LoadNextIndices]. Any difference from the current view
// means the store may have changed.
type Marker struct {
	Generation uint64
	StateID    uint64
}

// slotIndex is the authoritative description of the store's composition.
//
// A slotIndex is never modified after it is published; consolidation
// builds a new one and swaps it in.
type slotIndex struct {
	// slotIndices lists populated slots, multi-pack-indices first, then
	// most recently modified first.
	slotIndices []SlotID

	// looseDBs is shared with every snapshot built from this index.
	looseDBs []*loose.Store

	generation uint64
	stateID    uint64

	// initialized is false only for the placeholder published by Open,
	// before any disk scan.
	initialized bool
}

func (i *slotIndex) marker() Marker {
	return Marker{Generation: i.generation, StateID: i.stateID}
}
