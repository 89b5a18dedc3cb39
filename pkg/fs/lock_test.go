package fs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func Test_Locker_TryLock_Returns_ErrWouldBlock_When_Path_Is_Locked(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "lock")

	lock1, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock(%q): %v", path, err)
	}
	t.Cleanup(func() { _ = lock1.Close() })

	lock2, err := locker.TryLock(path)
	if !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("TryLock(%q) while locked: err=%v, want %v", path, err, ErrWouldBlock)
	}
	if lock2 != nil {
		_ = lock2.Close()
		t.Fatalf("TryLock(%q) while locked: want lock=nil, got non-nil", path)
	}

	if err := lock1.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}

	lock3, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock(%q) after release: %v", path, err)
	}
	if err := lock3.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}
}

func Test_Locker_LockWithTimeout_Returns_ErrWouldBlock_When_Path_Is_Locked(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "lock")

	lock1, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock(%q): %v", path, err)
	}
	defer lock1.Close()

	_, err = locker.LockWithTimeout(path, 50*time.Millisecond)
	if !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("LockWithTimeout(%q): err=%v, want %v", path, err, ErrWouldBlock)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("LockWithTimeout(%q): err=%q, want substring %q", path, err.Error(), "timed out")
	}
}

func Test_Locker_LockWithTimeout_Returns_Error_When_Timeout_Is_Non_Positive(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())

	_, err := locker.LockWithTimeout(filepath.Join(t.TempDir(), "lock"), 0)
	if !errors.Is(err, ErrInvalidTimeout) {
		t.Fatalf("LockWithTimeout(0): err=%v, want %v", err, ErrInvalidTimeout)
	}
}

func Test_Locker_Lock_Creates_Parent_Dirs_When_Missing(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "info", "nested", "alternates.lock")

	lk, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock(%q): %v", path, err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat lock file: %v", err)
	}

	if err := lk.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}

	if err := lk.Close(); err != nil {
		t.Fatalf("second Close(): %v", err)
	}
}

func Test_Locker_Lock_Blocks_Until_Holder_Releases(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "lock")

	held, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock(%q): %v", path, err)
	}

	var acquired atomic.Bool

	done := make(chan error, 1)

	go func() {
		lk, err := locker.Lock(path)
		if err == nil {
			acquired.Store(true)
			err = lk.Close()
		}
		done <- err
	}()

	time.Sleep(30 * time.Millisecond)

	if acquired.Load() {
		t.Fatal("second Lock acquired while first was held")
	}

	if err := held.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second Lock: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second Lock did not acquire after release")
	}
}

func Test_Locker_Lock_Retries_On_EINTR(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())

	var calls int

	locker.flock = func(fd int, how int) error {
		calls++
		if calls < 3 {
			return unix.EINTR
		}

		return unix.Flock(fd, how)
	}

	lk, err := locker.Lock(filepath.Join(t.TempDir(), "lock"))
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer lk.Close()

	if calls < 3 {
		t.Fatalf("flock calls=%d, want >= 3", calls)
	}
}

func Test_Locker_Lock_Returns_Error_When_Open_Fails(t *testing.T) {
	t.Parallel()

	faulty := NewFaulty(NewReal())
	path := filepath.Join(t.TempDir(), "lock")
	faulty.Fail(OpOpenFile, path, nil)

	_, err := NewLocker(faulty).Lock(path)
	if !errors.Is(err, ErrInjected) {
		t.Fatalf("Lock: err=%v, want %v", err, ErrInjected)
	}
}
