// Package alternate resolves the chain of alternate object directories
// referenced by an objects directory through its info/alternates file.
package alternate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/calvinalkan/odb/pkg/fs"
)

var (
	// ErrCycle indicates an alternates chain that refers back to a directory
	// already on the chain.
	ErrCycle = errors.New("alternate: cycle")

	// ErrNotDir indicates an alternates entry that does not name a directory.
	ErrNotDir = errors.New("alternate: not a directory")

	// ErrMalformed indicates an alternates line that could not be parsed.
	ErrMalformed = errors.New("alternate: malformed entry")
)

// FileName is the path of the alternates file relative to an objects directory.
var FileName = filepath.Join("info", "alternates")

const maxDepth = 16

// Resolve returns the alternate object directories reachable from
// objectsDir, in depth-first file order. objectsDir itself is not part of
// the result. A missing alternates file yields an empty result.
//
// Relative entries are resolved against the directory whose alternates
// file names them.
func Resolve(fsys fs.FS, objectsDir string) ([]string, error) {
	root, err := canonical(objectsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", objectsDir, err)
	}

	r := resolver{fsys: fsys, seen: map[string]bool{root: true}}

	err = r.walk(objectsDir, 0)
	if err != nil {
		return nil, err
	}

	return r.out, nil
}

// Append adds path to the alternates file of objectsDir, creating the file
// and its info/ directory if needed. Entries already present are not
// duplicated. Concurrent appends, also from other processes, are
// serialized through an exclusive lock on the alternates file's ".lock"
// sibling.
func Append(fsys fs.FS, objectsDir, path string) error {
	if path == "" {
		return fmt.Errorf("append: empty path: %w", ErrMalformed)
	}

	if strings.ContainsAny(path, "\n\r") {
		return fmt.Errorf("append %q: %w", path, ErrMalformed)
	}

	file := filepath.Join(objectsDir, FileName)

	lk, err := fs.NewLocker(fsys).Lock(file + ".lock")
	if err != nil {
		return fmt.Errorf("lock %s: %w", file, err)
	}

	defer func() { _ = lk.Close() }()

	existing, err := fsys.ReadFile(file)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", file, err)
	}

	entries, err := Parse(existing)
	if err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}

	for _, e := range entries {
		if e == path {
			return nil
		}
	}

	var buf strings.Builder

	buf.Write(existing)

	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}

	buf.WriteString(path)
	buf.WriteByte('\n')

	err = fsys.MkdirAll(filepath.Dir(file), 0o755)
	if err != nil {
		return fmt.Errorf("mkdir info: %w", err)
	}

	err = fsys.WriteFileAtomic(file, []byte(buf.String()), 0o644)
	if err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}

	return nil
}

// Parse splits the content of an alternates file into its entries.
//
// Blank lines and lines starting with '#' are skipped. Entries wrapped in
// double quotes are unquoted with Go/C escape rules.
func Parse(content []byte) ([]string, error) {
	var out []string

	for lineNo, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSuffix(line, "\r")

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, `"`) {
			unquoted, err := strconv.Unquote(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo+1, ErrMalformed)
			}

			line = unquoted
		}

		out = append(out, line)
	}

	return out, nil
}

type resolver struct {
	fsys fs.FS
	seen map[string]bool
	out  []string
}

func (r *resolver) walk(dir string, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%s: chain deeper than %d: %w", dir, maxDepth, ErrCycle)
	}

	file := filepath.Join(dir, FileName)

	content, err := r.fsys.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("read %s: %w", file, err)
	}

	entries, err := Parse(content)
	if err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}

	for _, entry := range entries {
		path := entry
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}

		path = filepath.Clean(path)

		info, err := r.fsys.Stat(path)
		if err != nil {
			return fmt.Errorf("alternate %s: %w", path, err)
		}

		if !info.IsDir() {
			return fmt.Errorf("alternate %s: %w", path, ErrNotDir)
		}

		key, err := canonical(path)
		if err != nil {
			return fmt.Errorf("alternate %s: %w", path, err)
		}

		if r.seen[key] {
			return fmt.Errorf("alternate %s listed in %s: %w", path, file, ErrCycle)
		}

		r.seen[key] = true
		r.out = append(r.out, path)

		err = r.walk(path, depth+1)
		if err != nil {
			return err
		}
	}

	return nil
}

// canonical resolves symlinks so two spellings of one directory compare
// equal. Paths that cannot be resolved fall back to their absolute form.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return abs, nil
		}

		return "", err
	}

	return resolved, nil
}
