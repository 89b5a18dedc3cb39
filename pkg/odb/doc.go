// Package odb tracks the set of pack indices, multi-pack-indices and loose
// object directories that make up an object database, and hands out
// consistent point-in-time views of that set to concurrent readers.
//
// # Basic Usage
//
//	store, err := odb.Open(odb.Options{ObjectsDir: "/repo/.git/objects"})
//	if err != nil {
//	    return err
//	}
//
//	h := store.NewHandle(odb.RefreshAfterAllIndicesLoaded)
//	defer h.Close()
//
//	out, err := h.Refresh()
//	// out == nil: nothing new on disk, stop searching.
//	// out.Kind == odb.OutcomeReplace: restart the search over out.Snapshot.
//	// out.Kind == odb.OutcomeReplaceStable: previously searched slots are
//	// unchanged, continue with the ones that were added.
//
// # Generations and state ids
//
// Every published view carries a [Marker]. The state id changes whenever
// slots are added. The generation changes only when slot ids are vacated
// and may be reused, which voids every slot id a caller remembers.
//
// A generation bump needs the store to unload packs, which is only allowed
// while no [Handle] has called [Handle.PreventPackUnload]. Until then,
// packs deleted from disk stay listed and mapped.
//
// # Concurrency
//
// [Store] is safe for concurrent use. Comparing a marker against the
// current view is a single atomic load; only disk consolidation takes the
// store's mutex. [Handle] is a per-caller cursor and is NOT thread-safe.
// [Snapshot] values are immutable once returned.
package odb
