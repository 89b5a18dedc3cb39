package odb

import (
	"fmt"
	"log/slog"

	"github.com/calvinalkan/odb/pkg/fs"
)

// RefreshMode controls whether a refresh may hit the disk when the caller is
// already up to date with the in-memory view.
type RefreshMode uint8

const (
	// RefreshAfterAllIndicesLoaded rescans the objects directories once
	// every known index has been searched.
	RefreshAfterAllIndicesLoaded RefreshMode = iota

	// RefreshNever never rescans after the initial load.
	RefreshNever
)

// String returns the config spelling of the mode.
func (m RefreshMode) String() string {
	switch m {
	case RefreshAfterAllIndicesLoaded:
		return "after-all-indices-loaded"
	case RefreshNever:
		return "never"
	default:
		return fmt.Sprintf("RefreshMode(%d)", uint8(m))
	}
}

// ParseRefreshMode parses the spelling returned by [RefreshMode.String].
func ParseRefreshMode(s string) (RefreshMode, error) {
	switch s {
	case "after-all-indices-loaded":
		return RefreshAfterAllIndicesLoaded, nil
	case "never":
		return RefreshNever, nil
	default:
		return 0, fmt.Errorf("refresh mode %q: %w", s, ErrInvalidInput)
	}
}

// HashKind is the object hash of the repository.
type HashKind uint8

const (
	// SHA1 object ids, 20 bytes.
	SHA1 HashKind = iota
	// SHA256 object ids, 32 bytes.
	SHA256
)

// Len returns the size of an object id in bytes.
func (k HashKind) Len() int {
	if k == SHA256 {
		return 32
	}

	return 20
}

// Options configure [Open].
type Options struct {
	// ObjectsDir is the primary objects directory (for example .git/objects).
	// Required.
	ObjectsDir string

	// FS is used for all file access. Defaults to [fs.NewReal].
	FS fs.FS

	// Logger receives debug and info events. Defaults to discarding.
	Logger *slog.Logger

	// Slots is the fixed number of index slots. Zero sizes the array from
	// what is on disk at Open: 1.1x the number of index files, at least
	// [MinSlots].
	Slots int

	// IgnoreMultiPackIndex makes consolidation treat multi-pack-index files
	// as absent (core.multiPackIndex=false).
	IgnoreMultiPackIndex bool

	// ObjectHash selects the object id length used to validate index
	// trailers.
	ObjectHash HashKind
}

// MinSlots is the smallest slot array sized from disk.
const MinSlots = 32
