package odb

import "github.com/calvinalkan/odb/pkg/odb/loose"

// LookupKind tells which fields of an [IndexLookup] are set.
type LookupKind uint8

const (
	// LookupSingle lookups carry Index and, if mapped, Data.
	LookupSingle LookupKind = iota + 1
	// LookupMulti lookups carry Multi and one MultiData entry per pack.
	LookupMulti
)

// IndexLookup is one searchable index of a [Snapshot].
type IndexLookup struct {
	ID   SlotID
	Kind LookupKind

	// Index and Data are set for LookupSingle. Data is nil when the pack
	// was not mapped at snapshot time; see [Handle.PackData].
	Index *PackIndex
	Data  *PackData

	// Multi and MultiData are set for LookupMulti. MultiData[i] belongs to
	// Multi.IndexNames()[i] and is nil when not mapped.
	Multi     *MultiIndex
	MultiData []*PackData

	content *indexAndPacks
}

// NumPacks returns how many packs the lookup covers.
func (l IndexLookup) NumPacks() int {
	if l.Kind == LookupMulti {
		return len(l.MultiData)
	}

	return 1
}

// Snapshot is an immutable point-in-time view of the store.
//
// Snapshots share mapped files and the loose-db slice with the store and
// with each other; none of them may be modified.
type Snapshot struct {
	// Indices are ready for lookups, ordered by search preference.
	Indices []IndexLookup

	// LooseDBs are consulted once packed objects were not found.
	LooseDBs []*loose.Store

	// Marker identifies the view this snapshot was built from.
	Marker Marker
}

// OutcomeKind classifies a refresh result.
type OutcomeKind uint8

const (
	// OutcomeReplace voids every slot id the caller knew; searches over
	// several slots must restart.
	OutcomeReplace OutcomeKind = iota + 1

	// OutcomeReplaceStable keeps previously seen slot ids valid; only
	// additions happened, so a search may continue with the new slots.
	OutcomeReplaceStable
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReplace:
		return "replace"
	case OutcomeReplaceStable:
		return "replace-stable"
	default:
		return "unknown"
	}
}

// Outcome is the result of a refresh that produced new data.
type Outcome struct {
	Kind     OutcomeKind
	Snapshot *Snapshot
}

// IsStable reports whether previously seen slot ids remain valid.
func (o *Outcome) IsStable() bool {
	return o.Kind == OutcomeReplaceStable
}
