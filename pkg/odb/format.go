package odb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

var (
	_ io.ReaderAt = (*PackIndex)(nil)
	_ io.ReaderAt = (*PackData)(nil)
	_ io.ReaderAt = (*MultiIndex)(nil)
)

// On-disk layout constants (git pack formats).
const (
	idxV2Magic      = "\xfftOc"
	idxFanoutSize   = 256 * 4
	idxV2HeaderSize = 8
	packHeaderSize  = 12
	packMagic       = "PACK"
	midxMagic       = "MIDX"
	midxHeaderSize  = 12
	midxChunkEntry  = 12

	chunkPackNames = 0x504e414d // "PNAM"
	chunkOIDFanout = 0x4f494446 // "OIDF"
)

// PackIndex is a mapped pack index (.idx) file.
//
// Only the header, fanout and trailer are interpreted. A PackIndex is
// immutable and safe for concurrent use.
type PackIndex struct {
	m            *mapping
	version      int
	numObjects   uint32
	packChecksum []byte
}

// Path returns the file the index was mapped from.
func (p *PackIndex) Path() string { return p.m.path }

// Version returns the index format version (1 or 2).
func (p *PackIndex) Version() int { return p.version }

// NumObjects returns the number of objects in the pack.
func (p *PackIndex) NumObjects() uint32 { return p.numObjects }

// PackChecksum returns the checksum of the pack this index describes.
func (p *PackIndex) PackChecksum() []byte { return p.packChecksum }

// Size returns the file size in bytes.
func (p *PackIndex) Size() int64 { return p.m.size }

// ReadAt copies file content at off into b. The copy stays valid after the
// index is unmapped.
func (p *PackIndex) ReadAt(b []byte, off int64) (int, error) { return p.m.readAt(b, off) }

func parsePackIndex(m *mapping, hashLen int) (*PackIndex, error) {
	data := m.data

	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%s: %s: %w", m.path, fmt.Sprintf(format, args...), ErrCorruptIndex)
	}

	version := 1
	fanoutAt := 0

	if len(data) >= idxV2HeaderSize && string(data[:4]) == idxV2Magic {
		version = int(binary.BigEndian.Uint32(data[4:8]))
		if version != 2 {
			return nil, corrupt("unsupported version %d", version)
		}

		fanoutAt = idxV2HeaderSize
	}

	if len(data) < fanoutAt+idxFanoutSize+2*hashLen {
		return nil, corrupt("file too small: %d bytes", len(data))
	}

	count, err := readFanout(data[fanoutAt : fanoutAt+idxFanoutSize])
	if err != nil {
		return nil, corrupt("%v", err)
	}

	n := int(count)
	body := len(data) - fanoutAt - idxFanoutSize - 2*hashLen

	switch version {
	case 1:
		if body != n*(4+hashLen) {
			return nil, corrupt("v1 size mismatch for %d objects", n)
		}
	case 2:
		minBody := n * (hashLen + 4 + 4)
		if body < minBody || (body-minBody)%8 != 0 {
			return nil, corrupt("v2 size mismatch for %d objects", n)
		}
	}

	trailer := data[len(data)-2*hashLen:]

	return &PackIndex{
		m:            m,
		version:      version,
		numObjects:   count,
		packChecksum: bytes.Clone(trailer[:hashLen]),
	}, nil
}

// readFanout validates a 256-entry fanout table and returns its total.
func readFanout(fanout []byte) (uint32, error) {
	var prev uint32

	for i := range 256 {
		v := binary.BigEndian.Uint32(fanout[i*4:])
		if v < prev {
			return 0, fmt.Errorf("fanout decreases at %d", i)
		}

		prev = v
	}

	return prev, nil
}

// PackData is a mapped pack data (.pack) file.
type PackData struct {
	m          *mapping
	version    int
	numObjects uint32
	checksum   []byte
}

// Path returns the file the pack was mapped from.
func (p *PackData) Path() string { return p.m.path }

// Version returns the pack format version (2 or 3).
func (p *PackData) Version() int { return p.version }

// NumObjects returns the object count from the pack header.
func (p *PackData) NumObjects() uint32 { return p.numObjects }

// Checksum returns the pack's trailing checksum.
func (p *PackData) Checksum() []byte { return p.checksum }

// Size returns the file size in bytes.
func (p *PackData) Size() int64 { return p.m.size }

// ReadAt copies file content at off into b. The copy stays valid after the
// pack is released.
func (p *PackData) ReadAt(b []byte, off int64) (int, error) { return p.m.readAt(b, off) }

func parsePackData(m *mapping, hashLen int) (*PackData, error) {
	data := m.data

	if len(data) < packHeaderSize+hashLen {
		return nil, fmt.Errorf("%s: file too small: %d bytes: %w", m.path, len(data), ErrCorruptIndex)
	}

	if string(data[:4]) != packMagic {
		return nil, fmt.Errorf("%s: bad magic: %w", m.path, ErrCorruptIndex)
	}

	version := int(binary.BigEndian.Uint32(data[4:8]))
	if version != 2 && version != 3 {
		return nil, fmt.Errorf("%s: unsupported version %d: %w", m.path, version, ErrCorruptIndex)
	}

	return &PackData{
		m:          m,
		version:    version,
		numObjects: binary.BigEndian.Uint32(data[8:12]),
		checksum:   bytes.Clone(data[len(data)-hashLen:]),
	}, nil
}

// verifyAgainst checks that p is the pack described by idx.
func (p *PackData) verifyAgainst(idx *PackIndex) error {
	if !bytes.Equal(p.checksum, idx.packChecksum) {
		return fmt.Errorf("%s: checksum differs from %s: %w", p.m.path, idx.m.path, ErrPackMismatch)
	}

	if p.numObjects != idx.numObjects {
		return fmt.Errorf("%s: %d objects, index lists %d: %w", p.m.path, p.numObjects, idx.numObjects, ErrPackMismatch)
	}

	return nil
}

// MultiIndex is a mapped multi-pack-index file.
type MultiIndex struct {
	m          *mapping
	hashLen    int
	numObjects uint32
	indexNames []string
}

// Path returns the file the multi-pack-index was mapped from.
func (mi *MultiIndex) Path() string { return mi.m.path }

// NumObjects returns the number of objects across all covered packs.
func (mi *MultiIndex) NumObjects() uint32 { return mi.numObjects }

// IndexNames returns the covered pack index file names, in file order.
func (mi *MultiIndex) IndexNames() []string {
	return append([]string(nil), mi.indexNames...)
}

// Size returns the file size in bytes.
func (mi *MultiIndex) Size() int64 { return mi.m.size }

// ReadAt copies file content at off into b. The copy stays valid after the
// multi-pack-index is unmapped.
func (mi *MultiIndex) ReadAt(b []byte, off int64) (int, error) { return mi.m.readAt(b, off) }

func parseMultiIndex(m *mapping, hashLen int) (*MultiIndex, error) {
	data := m.data

	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%s: %s: %w", m.path, fmt.Sprintf(format, args...), ErrCorruptIndex)
	}

	if len(data) < midxHeaderSize+hashLen {
		return nil, corrupt("file too small: %d bytes", len(data))
	}

	if string(data[:4]) != midxMagic {
		return nil, corrupt("bad magic")
	}

	if data[4] != 1 {
		return nil, corrupt("unsupported version %d", data[4])
	}

	var fileHashLen int

	switch data[5] {
	case 1:
		fileHashLen = SHA1.Len()
	case 2:
		fileHashLen = SHA256.Len()
	default:
		return nil, corrupt("unknown hash version %d", data[5])
	}

	if fileHashLen != hashLen {
		return nil, corrupt("hash length %d, store uses %d", fileHashLen, hashLen)
	}

	numChunks := int(data[6])

	if data[7] != 0 {
		return nil, corrupt("incremental multi-pack-index chains are not supported")
	}

	numPacks := int(binary.BigEndian.Uint32(data[8:12]))

	tableEnd := midxHeaderSize + (numChunks+1)*midxChunkEntry
	if len(data) < tableEnd+hashLen {
		return nil, corrupt("chunk table truncated")
	}

	chunks := make(map[uint32][]byte, numChunks)

	for i := range numChunks {
		at := midxHeaderSize + i*midxChunkEntry
		id := binary.BigEndian.Uint32(data[at:])
		start := binary.BigEndian.Uint64(data[at+4:])
		end := binary.BigEndian.Uint64(data[at+midxChunkEntry+4:])

		if start < uint64(tableEnd) || end < start || end > uint64(len(data)-hashLen) {
			return nil, corrupt("chunk %08x out of bounds", id)
		}

		chunks[id] = data[start:end]
	}

	names, ok := chunks[chunkPackNames]
	if !ok {
		return nil, corrupt("missing PNAM chunk")
	}

	fanout, ok := chunks[chunkOIDFanout]
	if !ok || len(fanout) != idxFanoutSize {
		return nil, corrupt("missing or short OIDF chunk")
	}

	count, err := readFanout(fanout)
	if err != nil {
		return nil, corrupt("%v", err)
	}

	indexNames := make([]string, 0, numPacks)

	for name := range strings.SplitSeq(string(names), "\x00") {
		if name == "" {
			continue
		}

		indexNames = append(indexNames, name)
	}

	if len(indexNames) != numPacks {
		return nil, corrupt("PNAM lists %d packs, header says %d", len(indexNames), numPacks)
	}

	return &MultiIndex{
		m:          m,
		hashLen:    hashLen,
		numObjects: count,
		indexNames: indexNames,
	}, nil
}
