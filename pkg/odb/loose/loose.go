// Package loose tracks a directory of individually stored objects.
//
// The index layer only needs to hand these out in the order they should be
// consulted once packed objects are exhausted; reading object content is
// left to callers.
package loose

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/calvinalkan/odb/pkg/fs"
)

// ErrInvalidID indicates a malformed hex object id.
var ErrInvalidID = errors.New("loose: invalid object id")

// Store is a loose object database rooted at an objects directory.
//
// A Store is immutable and safe for concurrent use.
type Store struct {
	fsys fs.FS
	path string
}

// New returns a Store for the objects directory at path.
func New(fsys fs.FS, path string) *Store {
	if fsys == nil {
		panic("fs is nil")
	}

	return &Store{fsys: fsys, path: path}
}

// Path returns the objects directory of the store.
func (s *Store) Path() string {
	return s.path
}

// ObjectPath returns where the object with the given hex id lives.
func (s *Store) ObjectPath(hexID string) (string, error) {
	if !validHex(hexID) {
		return "", fmt.Errorf("%q: %w", hexID, ErrInvalidID)
	}

	return filepath.Join(s.path, hexID[:2], hexID[2:]), nil
}

// Contains reports whether the object with the given hex id is stored.
func (s *Store) Contains(hexID string) (bool, error) {
	path, err := s.ObjectPath(hexID)
	if err != nil {
		return false, err
	}

	ok, err := s.fsys.Exists(path)
	if err != nil {
		return false, fmt.Errorf("stat loose object: %w", err)
	}

	return ok, nil
}

// validHex accepts SHA-1 and SHA-256 lengths in lower-case hex.
func validHex(id string) bool {
	if len(id) != 40 && len(id) != 64 {
		return false
	}

	for i := range len(id) {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
