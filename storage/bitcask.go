// Package storage implements the append-only, log-structured key-value
// store (Bitcask) that underlies the MVCC layer. It keeps an in-memory,
// ordered index from key to (offset, size) and never compacts or rewrites
// the log file; every mutation is an append.
package storage

import (
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/clstatham/veris/internal/dblog"
	"github.com/clstatham/veris/internal/verrors"
)

// Location records where a key's current value lives in the log file.
type Location struct {
	Offset uint64
	Size   int // value length in bytes; the key itself is never absent
}

// logFile is the subset of *os.File the log needs; satisfied by *os.File and
// by any in-memory stand-in used in tests.
type logFile interface {
	io.ReaderAt
	io.Writer
	io.Seeker
	Sync() error
}

// Bitcask is the append-only log-structured storage engine.
type Bitcask struct {
	file logFile
	// keys and locs are kept in parallel, sorted ascending by keys[i], so
	// point lookups are a binary search and scans are a contiguous slice.
	keys []string
	locs []Location

	endOffset uint64
	log       *dblog.Logger
}

// Open creates a Bitcask engine over file, replaying the whole log to
// rebuild the in-memory index.
func Open(file logFile, log *dblog.Logger) (*Bitcask, error) {
	if log == nil {
		log = dblog.Nop()
	}
	b := &Bitcask{file: file, log: log}
	if err := b.rebuildKeyDir(); err != nil {
		return nil, err
	}
	return b, nil
}

// OpenFile opens or creates the log file at path and wraps it in a Bitcask.
func OpenFile(path string, log *dblog.Logger) (*Bitcask, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, verrors.New(verrors.IO, "open data log: %v", err)
	}
	return Open(f, log)
}

func (b *Bitcask) rebuildKeyDir() error {
	b.keys = nil
	b.locs = nil

	end, err := b.file.Seek(0, io.SeekEnd)
	if err != nil {
		return verrors.New(verrors.IO, "seek end: %v", err)
	}
	fileLength := end

	var offset int64
	index := map[string]int{}
	for offset < fileLength {
		var header [8]byte
		if _, err := b.file.ReadAt(header[:], offset); err != nil {
			return verrors.New(verrors.IO, "read record header: %v", err)
		}
		keyLen := binary.BigEndian.Uint32(header[0:4])
		valueLen := int32(binary.BigEndian.Uint32(header[4:8]))

		key := make([]byte, keyLen)
		if keyLen > 0 {
			if _, err := b.file.ReadAt(key, offset+8); err != nil {
				return verrors.New(verrors.IO, "read record key: %v", err)
			}
		}

		recordEnd := offset + 8 + int64(keyLen)
		if valueLen >= 0 {
			recordEnd += int64(valueLen)
		}
		if recordEnd > fileLength {
			return verrors.New(verrors.InvalidEngineState, "truncated trailing record at offset %d", offset)
		}

		ks := string(key)
		if valueLen < 0 {
			if i, ok := index[ks]; ok {
				b.removeAt(i)
				delete(index, ks)
				for k, idx := range index {
					if idx > i {
						index[k] = idx - 1
					}
				}
			}
		} else {
			loc := Location{Offset: uint64(offset + 8 + int64(keyLen)), Size: int(valueLen)}
			if i, ok := index[ks]; ok {
				b.locs[i] = loc
			} else {
				i := b.insertSorted(ks, loc)
				for k, idx := range index {
					if idx >= i {
						index[k] = idx + 1
					}
				}
				index[ks] = i
			}
		}

		offset = recordEnd
	}
	b.endOffset = uint64(fileLength)
	return nil
}

func (b *Bitcask) find(key string) (int, bool) {
	i := sort.SearchStrings(b.keys, key)
	return i, i < len(b.keys) && b.keys[i] == key
}

func (b *Bitcask) insertSorted(key string, loc Location) int {
	i := sort.SearchStrings(b.keys, key)
	b.keys = append(b.keys, "")
	copy(b.keys[i+1:], b.keys[i:])
	b.keys[i] = key
	b.locs = append(b.locs, Location{})
	copy(b.locs[i+1:], b.locs[i:])
	b.locs[i] = loc
	return i
}

func (b *Bitcask) removeAt(i int) {
	b.keys = append(b.keys[:i], b.keys[i+1:]...)
	b.locs = append(b.locs[:i], b.locs[i+1:]...)
}

// GetLocation returns the log location for key, if present.
func (b *Bitcask) GetLocation(key []byte) (Location, bool) {
	i, ok := b.find(string(key))
	if !ok {
		return Location{}, false
	}
	return b.locs[i], true
}

// Get reads the current value for key, if any.
func (b *Bitcask) Get(key []byte) ([]byte, bool, error) {
	loc, ok := b.GetLocation(key)
	if !ok {
		return nil, false, nil
	}
	buf := make([]byte, loc.Size)
	if loc.Size > 0 {
		if _, err := b.file.ReadAt(buf, int64(loc.Offset)); err != nil {
			return nil, false, verrors.New(verrors.IO, "read value: %v", err)
		}
	}
	return buf, true, nil
}

func (b *Bitcask) writeEntry(key []byte, value []byte, tombstone bool) (Location, error) {
	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return Location{}, verrors.New(verrors.IO, "seek end: %v", err)
	}
	offset := b.endOffset

	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(key)))
	valueLen := int32(-1)
	if !tombstone {
		valueLen = int32(len(value))
	}
	binary.BigEndian.PutUint32(header[4:8], uint32(valueLen))

	if _, err := b.file.Write(header[:]); err != nil {
		return Location{}, verrors.New(verrors.IO, "write record header: %v", err)
	}
	if _, err := b.file.Write(key); err != nil {
		return Location{}, verrors.New(verrors.IO, "write record key: %v", err)
	}
	if !tombstone && len(value) > 0 {
		if _, err := b.file.Write(value); err != nil {
			return Location{}, verrors.New(verrors.IO, "write record value: %v", err)
		}
	}

	size := 0
	if !tombstone {
		size = len(value)
	}
	loc := Location{Offset: offset + 8 + uint64(len(key)), Size: size}
	b.endOffset = loc.Offset + uint64(size)
	return loc, nil
}

// Set writes key=value, appending a new record and updating the index.
func (b *Bitcask) Set(key, value []byte) error {
	loc, err := b.writeEntry(key, value, false)
	if err != nil {
		return err
	}
	ks := string(key)
	if i, ok := b.find(ks); ok {
		b.locs[i] = loc
	} else {
		b.insertSorted(ks, loc)
	}
	return nil
}

// Delete appends a tombstone record for key and removes it from the index.
func (b *Bitcask) Delete(key []byte) error {
	if _, err := b.writeEntry(key, nil, true); err != nil {
		return err
	}
	if i, ok := b.find(string(key)); ok {
		b.removeAt(i)
	}
	return nil
}

// Flush durably persists all writes made so far.
func (b *Bitcask) Flush() error {
	if err := b.file.Sync(); err != nil {
		return verrors.New(verrors.IO, "sync: %v", err)
	}
	return nil
}

// KeyValue is one entry yielded by a scan.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Iterator is a forward, pull-based cursor over a key range.
type Iterator interface {
	// Next returns the next entry, or ok=false when exhausted.
	Next() (kv KeyValue, ok bool, err error)
}

// Scan returns entries with start <= key < end, in ascending key order. A
// nil end means unbounded above.
func (b *Bitcask) Scan(start, end []byte) Iterator {
	lo := sort.SearchStrings(b.keys, string(start))
	hi := len(b.keys)
	if end != nil {
		hi = sort.SearchStrings(b.keys, string(end))
	}
	return &bitcaskIterator{b: b, lo: lo, hi: hi}
}

// ScanPrefix returns every key with the given byte prefix, in ascending
// order.
func (b *Bitcask) ScanPrefix(prefix []byte) Iterator {
	start := prefix
	_, end := prefixRange(prefix)
	return b.Scan(start, end)
}

// prefixRange mirrors keycode.PrefixRange locally to avoid storage
// depending on keycode; storage operates on raw byte keys supplied by
// higher layers, which may or may not be keycode-encoded.
func prefixRange(prefix []byte) (start, end []byte) {
	start = append([]byte(nil), prefix...)
	i := len(prefix) - 1
	for i >= 0 && prefix[i] == 0xff {
		i--
	}
	if i < 0 {
		return start, nil
	}
	end = make([]byte, i+1)
	copy(end, prefix[:i+1])
	end[i]++
	return start, end
}

type bitcaskIterator struct {
	b      *Bitcask
	lo, hi int
}

func (it *bitcaskIterator) Next() (KeyValue, bool, error) {
	if it.lo >= it.hi {
		return KeyValue{}, false, nil
	}
	key := it.b.keys[it.lo]
	loc := it.b.locs[it.lo]
	it.lo++

	buf := make([]byte, loc.Size)
	if loc.Size > 0 {
		if _, err := it.b.file.ReadAt(buf, int64(loc.Offset)); err != nil {
			return KeyValue{}, false, verrors.New(verrors.IO, "read value: %v", err)
		}
	}
	return KeyValue{Key: []byte(key), Value: buf}, true, nil
}

// Close flushes and closes the underlying file, if it supports io.Closer.
func (b *Bitcask) Close() error {
	if err := b.Flush(); err != nil {
		return err
	}
	if closer, ok := b.file.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return verrors.New(verrors.IO, "close: %v", err)
		}
	}
	return nil
}
