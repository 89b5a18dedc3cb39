package odb_test

import (
	"errors"
	"io"
	"path/filepath"
	"slices"
	"testing"

	"github.com/calvinalkan/odb/internal/packtest"
	"github.com/calvinalkan/odb/pkg/odb"
)

func openStore(t *testing.T, opts odb.Options) *odb.Store {
	t.Helper()

	store, err := odb.Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	return store
}

func newHandle(t *testing.T, store *odb.Store, mode odb.RefreshMode) *odb.Handle {
	t.Helper()

	h := store.NewHandle(mode)
	t.Cleanup(func() { _ = h.Close() })

	return h
}

func mustRefresh(t *testing.T, h *odb.Handle) *odb.Outcome {
	t.Helper()

	out, err := h.Refresh()
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	return out
}

func mustOutcome(t *testing.T, h *odb.Handle, want odb.OutcomeKind) *odb.Snapshot {
	t.Helper()

	out := mustRefresh(t, h)
	if out == nil {
		t.Fatalf("Refresh outcome=nil, want %s", want)
	}

	if out.Kind != want {
		t.Fatalf("Refresh outcome=%s, want %s", out.Kind, want)
	}

	return out.Snapshot
}

// indexNames returns the base names of the files behind each lookup, in
// snapshot order.
func indexNames(snap *odb.Snapshot) []string {
	out := make([]string, 0, len(snap.Indices))

	for _, l := range snap.Indices {
		switch l.Kind {
		case odb.LookupSingle:
			out = append(out, filepath.Base(l.Index.Path()))
		case odb.LookupMulti:
			out = append(out, filepath.Base(l.Multi.Path()))
		}
	}

	return out
}

func slotIDs(snap *odb.Snapshot) []odb.SlotID {
	out := make([]odb.SlotID, 0, len(snap.Indices))
	for _, l := range snap.Indices {
		out = append(out, l.ID)
	}

	return out
}

func looseDBPaths(snap *odb.Snapshot) []string {
	out := make([]string, 0, len(snap.LooseDBs))
	for _, db := range snap.LooseDBs {
		out = append(out, db.Path())
	}

	return out
}

func names(packs ...string) []string {
	out := make([]string, len(packs))
	for i, p := range packs {
		out[i] = packtest.IndexName(p)
	}

	return out
}

func lookupFor(t *testing.T, snap *odb.Snapshot, pack string) odb.IndexLookup {
	t.Helper()

	idx := slices.Index(indexNames(snap), packtest.IndexName(pack))
	if idx < 0 {
		t.Fatalf("pack %q not in snapshot %v", pack, indexNames(snap))
	}

	return snap.Indices[idx]
}

func requireErrorIs(t *testing.T, err, target error) {
	t.Helper()

	if !errors.Is(err, target) {
		t.Fatalf("err=%v, want errors.Is(err, %v)", err, target)
	}
}

type sizedReaderAt interface {
	io.ReaderAt
	Size() int64
}

// readAll copies the whole mapped file behind r.
func readAll(t *testing.T, r sizedReaderAt) []byte {
	t.Helper()

	buf := make([]byte, r.Size())

	n, err := r.ReadAt(buf, 0)
	if err != nil && (!errors.Is(err, io.EOF) || n != len(buf)) {
		t.Fatalf("ReadAt: n=%d err=%v", n, err)
	}

	return buf
}
