package odb

import "fmt"

// Handle is a caller's cursor into a [Store].
//
// It remembers the marker of the last snapshot it received and whether it
// needs slot ids to stay stable. A Handle is NOT safe for concurrent use;
// give each goroutine its own.
type Handle struct {
	store *Store
	mode  RefreshMode

	marker   *Marker
	snapshot *Snapshot

	stable bool
	closed bool
}

// NewHandle registers a new handle that refreshes according to mode.
// Call [Handle.Close] when done.
func (s *Store) NewHandle(mode RefreshMode) *Handle {
	s.numHandles.Add(1)

	return &Handle{store: s, mode: mode}
}

// PreventPackUnload declares that the caller relies on slot ids keeping
// their meaning. While any such handle is live the store neither vacates
// slots nor unloads packs. Calling it again has no effect.
func (h *Handle) PreventPackUnload() {
	if h.closed || h.stable {
		return
	}

	h.stable = true
	h.store.numHandlesStable.Add(1)
}

// RequiresStableIDs reports whether [Handle.PreventPackUnload] was called.
func (h *Handle) RequiresStableIDs() bool {
	return h.stable
}

// Mode returns the refresh mode the handle was created with.
func (h *Handle) Mode() RefreshMode {
	return h.mode
}

// Marker returns the marker of the last snapshot, and false before the
// first successful refresh.
func (h *Handle) Marker() (Marker, bool) {
	if h.marker == nil {
		return Marker{}, false
	}

	return *h.marker, true
}

// Snapshot returns the last snapshot received, or nil.
func (h *Handle) Snapshot() *Snapshot {
	return h.snapshot
}

// Refresh asks the store for anything newer than the handle's last
// snapshot. See [Store.LoadNextIndices] for the meaning of a nil outcome.
// On success the handle's marker and snapshot are updated.
func (h *Handle) Refresh() (*Outcome, error) {
	if h.closed {
		return nil, ErrClosed
	}

	out, err := h.store.LoadNextIndices(h.mode, h.marker)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	if out == nil {
		return nil, nil
	}

	m := out.Snapshot.Marker
	h.marker = &m
	h.snapshot = out.Snapshot

	return out, nil
}

// PackData maps pack i of lookup on demand. lookup must come from a
// snapshot of this handle's store.
func (h *Handle) PackData(lookup IndexLookup, i int) (*PackData, error) {
	if h.closed {
		return nil, ErrClosed
	}

	return h.store.LoadPackData(lookup, i)
}

// Close deregisters the handle. Close is idempotent.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}

	h.closed = true
	h.store.numHandles.Add(-1)

	if h.stable {
		h.store.numHandlesStable.Add(-1)
	}

	h.snapshot = nil

	return nil
}
