// Package packtest writes minimal but well-formed pack index, pack and
// multi-pack-index files for tests.
package packtest

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/calvinalkan/odb/pkg/fs"
)

const hashLen = sha1.Size

// Repo is an objects directory under t.TempDir.
type Repo struct {
	tb         testing.TB
	fsys       *fs.Real
	ObjectsDir string

	// clock advances by a second per written file so mtime ordering is
	// deterministic.
	clock time.Time
}

// NewRepo creates <tmp>/objects with an empty pack directory.
func NewRepo(tb testing.TB) *Repo {
	tb.Helper()

	return NewRepoAt(tb, filepath.Join(tb.TempDir(), "objects"))
}

// NewRepoAt creates an objects directory at dir.
func NewRepoAt(tb testing.TB, dir string) *Repo {
	tb.Helper()

	r := &Repo{
		tb:         tb,
		fsys:       fs.NewReal(),
		ObjectsDir: dir,
		clock:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := os.MkdirAll(r.PackDir(), 0o755); err != nil {
		tb.Fatalf("mkdir pack dir: %v", err)
	}

	return r
}

// PackDir returns <objects>/pack.
func (r *Repo) PackDir() string {
	return filepath.Join(r.ObjectsDir, "pack")
}

// IndexName returns the pack index file name for a short pack name.
func IndexName(name string) string {
	return fmt.Sprintf("pack-%x.idx", sha1.Sum([]byte(name)))
}

// IndexPath returns the pack index path for a short pack name.
func (r *Repo) IndexPath(name string) string {
	return filepath.Join(r.PackDir(), IndexName(name))
}

// PackPath returns the pack data path for a short pack name.
func (r *Repo) PackPath(name string) string {
	return filepath.Join(r.PackDir(), fmt.Sprintf("pack-%x.pack", sha1.Sum([]byte(name))))
}

// MultiIndexPath returns <objects>/pack/multi-pack-index.
func (r *Repo) MultiIndexPath() string {
	return filepath.Join(r.PackDir(), "multi-pack-index")
}

// AddPack writes a pack and its index with numObjects objects and returns
// the index path.
func (r *Repo) AddPack(name string, numObjects int) string {
	r.tb.Helper()

	pack := PackData(name, numObjects)
	checksum := pack[len(pack)-hashLen:]

	r.write(r.PackPath(name), pack)
	r.write(r.IndexPath(name), PackIndex(name, numObjects, checksum))

	return r.IndexPath(name)
}

// AddIndexOnly writes a pack index without its pack.
func (r *Repo) AddIndexOnly(name string, numObjects int) string {
	r.tb.Helper()

	pack := PackData(name, numObjects)
	r.write(r.IndexPath(name), PackIndex(name, numObjects, pack[len(pack)-hashLen:]))

	return r.IndexPath(name)
}

// RemovePack deletes a pack and its index.
func (r *Repo) RemovePack(name string) {
	r.tb.Helper()

	for _, p := range []string{r.IndexPath(name), r.PackPath(name)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			r.tb.Fatalf("remove %s: %v", p, err)
		}
	}
}

// AddMultiIndex writes a multi-pack-index covering the named packs.
func (r *Repo) AddMultiIndex(numObjects int, names ...string) string {
	r.tb.Helper()

	indexNames := make([]string, len(names))
	for i, n := range names {
		indexNames[i] = IndexName(n)
	}

	r.write(r.MultiIndexPath(), MultiIndex(indexNames, numObjects))

	return r.MultiIndexPath()
}

// WriteFile writes raw bytes into the objects directory at rel.
func (r *Repo) WriteFile(rel string, data []byte) string {
	r.tb.Helper()

	path := filepath.Join(r.ObjectsDir, rel)
	r.write(path, data)

	return path
}

func (r *Repo) write(path string, data []byte) {
	r.tb.Helper()

	if err := r.fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.tb.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}

	if err := r.fsys.WriteFileAtomic(path, data, 0o644); err != nil {
		r.tb.Fatalf("write %s: %v", path, err)
	}

	r.clock = r.clock.Add(time.Second)

	if err := os.Chtimes(path, r.clock, r.clock); err != nil {
		r.tb.Fatalf("chtimes %s: %v", path, err)
	}
}

// PackData returns a pack file with a valid header and trailer.
func PackData(name string, numObjects int) []byte {
	buf := make([]byte, 0, 12+len(name)+hashLen)
	buf = append(buf, "PACK"...)
	buf = binary.BigEndian.AppendUint32(buf, 2)
	buf = binary.BigEndian.AppendUint32(buf, uint32(numObjects))
	// Stand-in object stream so different names get different checksums.
	buf = append(buf, name...)

	sum := sha1.Sum(buf)

	return append(buf, sum[:]...)
}

// PackIndex returns a version 2 pack index for numObjects synthetic objects.
func PackIndex(name string, numObjects int, packChecksum []byte) []byte {
	ids := make([][hashLen]byte, numObjects)
	for i := range ids {
		ids[i] = sha1.Sum(fmt.Appendf(nil, "%s/%d", name, i))
	}

	slices.SortFunc(ids, func(a, b [hashLen]byte) int {
		return slices.Compare(a[:], b[:])
	})

	var fanout [256]uint32
	for _, id := range ids {
		fanout[id[0]]++
	}

	buf := []byte("\xfftOc")
	buf = binary.BigEndian.AppendUint32(buf, 2)

	var total uint32
	for _, n := range fanout {
		total += n
		buf = binary.BigEndian.AppendUint32(buf, total)
	}

	for _, id := range ids {
		buf = append(buf, id[:]...)
	}

	for range ids {
		buf = binary.BigEndian.AppendUint32(buf, 0) // crc32
	}

	for i := range ids {
		buf = binary.BigEndian.AppendUint32(buf, uint32(12+i))
	}

	buf = append(buf, packChecksum...)
	sum := sha1.Sum(buf)

	return append(buf, sum[:]...)
}

// MultiIndex returns a multi-pack-index with PNAM and OIDF chunks.
func MultiIndex(indexNames []string, numObjects int) []byte {
	names := slices.Sorted(slices.Values(indexNames))

	var pnam []byte
	for _, n := range names {
		pnam = append(pnam, n...)
		pnam = append(pnam, 0)
	}

	for len(pnam)%4 != 0 {
		pnam = append(pnam, 0)
	}

	oidf := make([]byte, 0, 1024)
	for i := range 256 {
		v := uint32(0)
		if i == 255 {
			v = uint32(numObjects)
		}

		oidf = binary.BigEndian.AppendUint32(oidf, v)
	}

	const numChunks = 2

	pnamAt := uint64(12 + (numChunks+1)*12)
	oidfAt := pnamAt + uint64(len(pnam))
	end := oidfAt + uint64(len(oidf))

	buf := []byte("MIDX")
	buf = append(buf, 1, 1, numChunks, 0)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(names)))

	buf = append(buf, "PNAM"...)
	buf = binary.BigEndian.AppendUint64(buf, pnamAt)
	buf = append(buf, "OIDF"...)
	buf = binary.BigEndian.AppendUint64(buf, oidfAt)
	buf = binary.BigEndian.AppendUint32(buf, 0)
	buf = binary.BigEndian.AppendUint64(buf, end)

	buf = append(buf, pnam...)
	buf = append(buf, oidf...)

	sum := sha1.Sum(buf)

	return append(buf, sum[:]...)
}
