package fs

import (
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"testing"
)

func Test_Faulty_Returns_PathError_Wrapping_Injected_When_Op_And_Path_Match(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	faulty := NewFaulty(NewReal())
	faulty.Fail(OpReadDir, dir, nil)

	_, err := faulty.ReadDir(dir)

	var pathErr *iofs.PathError
	if !errors.As(err, &pathErr) {
		t.Fatalf("err=%v, want *fs.PathError", err)
	}

	if got, want := pathErr.Path, dir; got != want {
		t.Fatalf("path=%q, want=%q", got, want)
	}

	if !errors.Is(err, ErrInjected) || !IsInjected(err) {
		t.Fatalf("err=%v, want injected", err)
	}

	// Other paths and other ops pass through.
	if _, err := faulty.ReadDir(filepath.Dir(dir)); err != nil {
		t.Fatalf("ReadDir other path: %v", err)
	}

	if _, err := faulty.Stat(dir); err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if got, want := faulty.Calls(OpReadDir), 2; got != want {
		t.Fatalf("readdir calls=%d, want=%d", got, want)
	}
}

func Test_Faulty_Keeps_Custom_Error_In_Chain_When_Given(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "file")
	faulty := NewFaulty(NewReal())
	faulty.Fail(OpWriteFile, path, os.ErrPermission)

	err := faulty.WriteFileAtomic(path, []byte("x"), 0o644)
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("err=%v, want=%v", err, os.ErrPermission)
	}

	if exists, _ := faulty.Exists(path); exists {
		t.Fatal("failed write created the file")
	}
}

func Test_Faulty_Passes_Through_When_Healed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	faulty := NewFaulty(NewReal())
	faulty.Fail(OpOpen, path, nil)

	if _, err := faulty.Open(path); !IsInjected(err) {
		t.Fatalf("err=%v, want injected", err)
	}

	faulty.Heal(OpOpen, path)

	f, err := faulty.Open(path)
	if err != nil {
		t.Fatalf("Open after Heal: %v", err)
	}

	_ = f.Close()

	if IsInjected(os.ErrNotExist) {
		t.Fatal("IsInjected=true for a plain error")
	}
}
