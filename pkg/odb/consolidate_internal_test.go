package odb

import (
	"testing"

	"github.com/calvinalkan/odb/internal/packtest"
)

func newTestStore(t *testing.T, repo *packtest.Repo) *Store {
	t.Helper()

	s, err := Open(Options{ObjectsDir: repo.ObjectsDir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	return s
}

func Test_ConsolidateWithDiskState_Rederives_Without_Scanning_When_State_Changed_While_Waiting(t *testing.T) {
	t.Parallel()

	repo := packtest.NewRepo(t)
	repo.AddPack("a", 1)

	s := newTestStore(t, repo)

	if _, err := s.consolidateWithDiskState(s.index.Load(), false); err != nil {
		t.Fatalf("initial consolidation: %v", err)
	}

	seen := s.index.Load()

	repo.AddPack("b", 1)

	if _, err := s.consolidateWithDiskState(seen, true); err != nil {
		t.Fatalf("winning consolidation: %v", err)
	}

	winner := s.index.Load()
	before := s.numDiskStateConsolidation.Load()

	// A loser that decided on seen before the winner published.
	out, err := s.consolidateWithDiskState(seen, true)
	if err != nil {
		t.Fatalf("losing consolidation: %v", err)
	}

	if out == nil {
		t.Fatal("outcome=nil, want the winner's view")
	}

	if got, want := out.Kind, OutcomeReplaceStable; got != want {
		t.Fatalf("outcome=%s, want %s", got, want)
	}

	if got, want := out.Snapshot.Marker, winner.marker(); got != want {
		t.Fatalf("marker=%+v, want %+v", got, want)
	}

	if got := s.numDiskStateConsolidation.Load(); got != before {
		t.Fatalf("consolidations=%d, want %d", got, before)
	}
}

func Test_ConsolidateWithDiskState_Rederives_Replace_When_Generation_Changed_While_Waiting(t *testing.T) {
	t.Parallel()

	repo := packtest.NewRepo(t)
	repo.AddPack("a", 1)
	repo.AddPack("b", 1)

	s := newTestStore(t, repo)

	if _, err := s.consolidateWithDiskState(s.index.Load(), false); err != nil {
		t.Fatalf("initial consolidation: %v", err)
	}

	seen := s.index.Load()

	repo.RemovePack("a")

	if _, err := s.consolidateWithDiskState(seen, true); err != nil {
		t.Fatalf("winning consolidation: %v", err)
	}

	out, err := s.consolidateWithDiskState(seen, true)
	if err != nil {
		t.Fatalf("losing consolidation: %v", err)
	}

	if got, want := out.Kind, OutcomeReplace; got != want {
		t.Fatalf("outcome=%s, want %s", got, want)
	}

	// The first caller of an uninitialized store never gets a stable
	// outcome.
	first := newTestStore(t, repo)
	placeholder := first.index.Load()

	if _, err := first.consolidateWithDiskState(placeholder, false); err != nil {
		t.Fatalf("initial consolidation: %v", err)
	}

	out, err = first.consolidateWithDiskState(placeholder, false)
	if err != nil {
		t.Fatalf("second initial consolidation: %v", err)
	}

	if got, want := out.Kind, OutcomeReplace; got != want {
		t.Fatalf("outcome=%s, want %s", got, want)
	}
}

func Test_CollectSnapshotFrom_Returns_Nil_When_Listed_Slot_Was_Vacated_By_Newer_Generation(t *testing.T) {
	t.Parallel()

	repo := packtest.NewRepo(t)
	repo.AddPack("a", 1)
	repo.AddPack("b", 1)

	s := newTestStore(t, repo)

	if _, err := s.consolidateWithDiskState(s.index.Load(), false); err != nil {
		t.Fatalf("initial consolidation: %v", err)
	}

	old := s.index.Load()

	repo.RemovePack("a")

	if _, err := s.consolidateWithDiskState(old, true); err != nil {
		t.Fatalf("consolidation: %v", err)
	}

	if snap := s.collectSnapshotFrom(old); snap != nil {
		t.Fatalf("snapshot from overtaken index has marker %+v, want nil", snap.Marker)
	}

	// A caller that decided on the old index for a stable outcome gets
	// the new view as a plain replace.
	out := s.collectReplaceOutcome(old, true)

	if got, want := out.Kind, OutcomeReplace; got != want {
		t.Fatalf("outcome=%s, want %s", got, want)
	}

	if got, want := out.Snapshot.Marker, s.index.Load().marker(); got != want {
		t.Fatalf("marker=%+v, want %+v", got, want)
	}
}

func Test_CollectSnapshotFrom_Skips_Slot_When_Index_Is_Not_Mapped(t *testing.T) {
	t.Parallel()

	repo := packtest.NewRepo(t)
	repo.AddPack("a", 1)
	repo.AddPack("b", 1)

	s := newTestStore(t, repo)

	if _, err := s.consolidateWithDiskState(s.index.Load(), false); err != nil {
		t.Fatalf("initial consolidation: %v", err)
	}

	idx := s.index.Load()
	id := idx.slotIndices[0]
	s.files[id].files.Load().index.unload()

	snap := s.collectSnapshotFrom(idx)

	if got, want := len(snap.Indices), 1; got != want {
		t.Fatalf("indices=%d, want %d", got, want)
	}

	if snap.Indices[0].ID == id {
		t.Fatalf("unmapped slot %d in snapshot", id)
	}

	if got, want := s.files[id].state(), SlotUnloaded; got != want {
		t.Fatalf("slot state=%s, want %s", got, want)
	}
}

func Test_OnDiskFile_Load_Keeps_First_Value_When_Loaded_Twice(t *testing.T) {
	t.Parallel()

	var f onDiskFile[int]

	one, two := 1, 2
	calls := 0

	got, err := f.load(func(string) (*int, error) { calls++; return &one, nil })
	if err != nil || got != &one {
		t.Fatalf("first load=(%v, %v), want &one", got, err)
	}

	got, err = f.load(func(string) (*int, error) { calls++; return &two, nil })
	if err != nil || got != &one {
		t.Fatalf("second load=(%v, %v), want &one", got, err)
	}

	if calls != 1 {
		t.Fatalf("open calls=%d, want 1", calls)
	}

	if !f.unload() || f.unload() {
		t.Fatal("unload must report true once, then false")
	}
}

func Test_Fingerprint_Differs_When_Modification_Time_Changes(t *testing.T) {
	t.Parallel()

	repo := packtest.NewRepo(t)
	repo.AddPack("a", 1)

	s := newTestStore(t, repo)
	dbs := []string{repo.ObjectsDir}

	first, err := s.scanDiskState(dbs, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if fingerprint(dbs, first) != fingerprint(dbs, first) {
		t.Fatal("fingerprint is not deterministic")
	}

	repo.AddPack("a", 1)

	second, err := s.scanDiskState(dbs, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if fingerprint(dbs, first) == fingerprint(dbs, second) {
		t.Fatal("fingerprint unchanged after rewrite")
	}
}
