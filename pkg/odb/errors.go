package odb

import "errors"

// Sentinel errors returned by odb operations.
//
// Callers should use [errors.Is] to check error types. Filesystem errors
// stay wrapped, so [os.ErrNotExist] and friends keep working too.
var (
	// ErrInvalidInput indicates invalid [Options] or arguments.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("odb: invalid input")

	// ErrObjectsDir indicates an objects directory, or one of its pack
	// directories, could not be read.
	//
	// Recovery: fix the directory and call refresh again.
	ErrObjectsDir = errors.New("odb: objects directory unreadable")

	// ErrAlternates indicates the alternates chain could not be resolved.
	ErrAlternates = errors.New("odb: alternates unresolvable")

	// ErrCorruptIndex indicates a pack index, pack or multi-pack-index file
	// with an invalid header or size.
	ErrCorruptIndex = errors.New("odb: corrupt index")

	// ErrPackMismatch indicates a pack data file that does not belong to
	// the index that names it.
	ErrPackMismatch = errors.New("odb: pack does not match index")

	// ErrInsufficientSlots indicates more index files on disk than free
	// slots, with unloading currently forbidden by stable handles.
	//
	// Recovery: close stable handles and refresh, or reopen the store with
	// more [Options.Slots].
	ErrInsufficientSlots = errors.New("odb: insufficient slots")

	// ErrStaleSlot indicates a lookup whose slot was reassigned since the
	// snapshot was taken.
	//
	// Recovery: refresh and restart the search.
	ErrStaleSlot = errors.New("odb: stale slot")

	// ErrClosed indicates the [Handle] has already been closed.
	//
	// This is a programming error.
	ErrClosed = errors.New("odb: closed")
)
