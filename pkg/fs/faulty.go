package fs

import (
	"errors"
	iofs "io/fs"
	"os"
	"sync"
)

// ErrInjected is the default error returned by [Faulty] for a failed operation.
var ErrInjected = errors.New("fs: injected failure")

// Op names an [FS] operation that [Faulty] can fail.
type Op string

// Operations understood by [Faulty.Fail].
const (
	OpOpen      Op = "open"
	OpOpenFile  Op = "openfile"
	OpReadFile  Op = "readfile"
	OpWriteFile Op = "writefile"
	OpReadDir   Op = "readdir"
	OpMkdirAll  Op = "mkdirall"
	OpStat      Op = "stat"
	OpExists    Op = "exists"
	OpRemove    Op = "remove"
)

// InjectedError marks an error as intentionally injected by [Faulty].
//
// It wraps the underlying error so errors.Is/As continue to work.
type InjectedError struct {
	Err error
}

// Error returns the underlying error's message.
func (e *InjectedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by [Faulty].
func IsInjected(err error) bool {
	var injected *InjectedError

	return errors.As(err, &injected)
}

// Faulty wraps an [FS] and fails chosen (operation, path) pairs.
//
// Unlisted calls pass through to the wrapped filesystem. Failures are
// returned as *[iofs.PathError] wrapping an [InjectedError], so callers see
// the same shape as a real OS error.
//
// Faulty is safe for concurrent use.
type Faulty struct {
	inner FS

	mu    sync.Mutex
	fails map[faultKey]error
	calls map[Op]int
}

type faultKey struct {
	op   Op
	path string
}

// NewFaulty wraps inner. Panics if inner is nil.
func NewFaulty(inner FS) *Faulty {
	if inner == nil {
		panic("fs is nil")
	}

	return &Faulty{
		inner: inner,
		fails: make(map[faultKey]error),
		calls: make(map[Op]int),
	}
}

// Fail makes every op on path return err. A nil err means [ErrInjected].
func (f *Faulty) Fail(op Op, path string, err error) {
	if err == nil {
		err = ErrInjected
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.fails[faultKey{op: op, path: path}] = err
}

// Heal removes a failure previously installed with [Faulty.Fail].
func (f *Faulty) Heal(op Op, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.fails, faultKey{op: op, path: path})
}

// Calls returns how many times op was invoked, failed or not.
func (f *Faulty) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

func (f *Faulty) check(op Op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++

	err, ok := f.fails[faultKey{op: op, path: path}]
	if !ok {
		return nil
	}

	return &iofs.PathError{Op: string(op), Path: path, Err: &InjectedError{Err: err}}
}

func (f *Faulty) Open(path string) (File, error) {
	if err := f.check(OpOpen, path); err != nil {
		return nil, err
	}

	return f.inner.Open(path)
}

func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := f.check(OpOpenFile, path); err != nil {
		return nil, err
	}

	return f.inner.OpenFile(path, flag, perm)
}

func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if err := f.check(OpReadFile, path); err != nil {
		return nil, err
	}

	return f.inner.ReadFile(path)
}

func (f *Faulty) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := f.check(OpWriteFile, path); err != nil {
		return err
	}

	return f.inner.WriteFileAtomic(path, data, perm)
}

func (f *Faulty) ReadDir(path string) ([]os.DirEntry, error) {
	if err := f.check(OpReadDir, path); err != nil {
		return nil, err
	}

	return f.inner.ReadDir(path)
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdirAll, path); err != nil {
		return err
	}

	return f.inner.MkdirAll(path, perm)
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.check(OpStat, path); err != nil {
		return nil, err
	}

	return f.inner.Stat(path)
}

func (f *Faulty) Exists(path string) (bool, error) {
	if err := f.check(OpExists, path); err != nil {
		return false, err
	}

	return f.inner.Exists(path)
}

func (f *Faulty) Remove(path string) error {
	if err := f.check(OpRemove, path); err != nil {
		return err
	}

	return f.inner.Remove(path)
}

// Compile-time interface check.
var _ FS = (*Faulty)(nil)
