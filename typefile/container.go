package typefile

import (
	"encoding/binary"
	"fmt"
)

// Entry is a single record in a type file.
type Entry struct {
	Type uint32
	ID   uint32
	Data []byte
}

const (
	headerMagic = 0xffff
	headerSize  = 12
	indexSize   = 16
)

// parse reads the container and returns all entries in file order.
func parse(data []byte) ([]Entry, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("typefile: short header")
	}
	if binary.BigEndian.Uint16(data[0:2]) != headerMagic {
		return nil, fmt.Errorf("typefile: bad header")
	}
	n := int(binary.BigEndian.Uint32(data[2:6]))
	table := data[headerSize:]
	if n < 0 || len(table) < n*indexSize {
		return nil, fmt.Errorf("typefile: short table")
	}
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		off := uint64(binary.BigEndian.Uint32(table[0:4]))
		size := uint64(binary.BigEndian.Uint32(table[4:8]))
		typ := binary.BigEndian.Uint32(table[8:12])
		id := binary.BigEndian.Uint32(table[12:16])
		if off+size > uint64(len(data)) {
			return nil, fmt.Errorf("typefile: entry %d out of range", i)
		}
		b := make([]byte, size)
		copy(b, data[off:off+size])
		entries = append(entries, Entry{Type: typ, ID: id, Data: b})
		table = table[indexSize:]
	}
	return entries, nil
}

// Build assembles a container from entries.
func Build(entries []Entry) []byte {
	n := len(entries)
	header := make([]byte, headerSize+indexSize*n)
	binary.BigEndian.PutUint16(header[0:2], headerMagic)
	binary.BigEndian.PutUint32(header[2:6], uint32(n))
	off := uint32(len(header))
	for i, e := range entries {
		row := header[headerSize+indexSize*i:]
		binary.BigEndian.PutUint32(row[0:4], off)
		binary.BigEndian.PutUint32(row[4:8], uint32(len(e.Data)))
		binary.BigEndian.PutUint32(row[8:12], e.Type)
		binary.BigEndian.PutUint32(row[12:16], e.ID)
		off += uint32(len(e.Data))
	}
	buf := make([]byte, 0, off)
	buf = append(buf, header...)
	for _, e := range entries {
		buf = append(buf, e.Data...)
	}
	return buf
}

// Merge overlays patch entries onto base. Base order is kept, entries
// only the patch has are appended.
func Merge(base, patch []byte) ([]byte, error) {
	baseEntries, err := parse(base)
	if err != nil {
		return nil, fmt.Errorf("base: %w", err)
	}
	patchEntries, err := parse(patch)
	if err != nil {
		return nil, fmt.Errorf("patch: %w", err)
	}
	type key struct{ t, id uint32 }
	m := make(map[key]Entry, len(baseEntries)+len(patchEntries))
	for _, e := range baseEntries {
		m[key{e.Type, e.ID}] = e
	}
	for _, e := range patchEntries {
		m[key{e.Type, e.ID}] = e
	}
	final := make([]Entry, 0, len(m))
	for _, list := range [][]Entry{baseEntries, patchEntries} {
		for _, e := range list {
			k := key{e.Type, e.ID}
			if ne, ok := m[k]; ok {
				final = append(final, ne)
				delete(m, k)
			}
		}
	}
	return Build(final), nil
}
