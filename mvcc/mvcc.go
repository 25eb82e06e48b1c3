// Package mvcc implements the multi-version concurrency control layer that
// turns a byte-keyed storage engine into a snapshot-isolated transactional
// store. Every write is tagged with the transaction's version; readers only
// ever see versions visible to their snapshot.
package mvcc

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/keycode"
	"github.com/clstatham/veris/storage"
)

// Version identifies a transaction and, by extension, every value it wrote.
type Version = uint64

// Engine is the byte-keyed storage contract the MVCC layer is built on.
// *storage.Bitcask satisfies this.
type Engine interface {
	Get(key []byte) ([]byte, bool, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Scan(start, end []byte) storage.Iterator
	ScanPrefix(prefix []byte) storage.Iterator
	Flush() error
}

// Key tags. Numbered so that tag order matches the intended sort order for
// mixed-variant scans (NextVersion sorts before any ActiveTransaction entry,
// which sorts before any Version entry, etc).
const (
	tagNextVersion              = 0
	tagActiveTransaction        = 1
	tagActiveTransactionSnapshot = 2
	tagTransactionWrite         = 3
	tagVersion                  = 4
	tagUnversioned              = 5
)

// Mvcc owns the shared storage handle behind a single coarse mutex. Every
// transactional operation acquires this mutex for the duration of one point
// operation, one scan batch, or commit/rollback, never across a yield
// point, never for the lifetime of a transaction.
type Mvcc struct {
	mu     sync.Mutex
	engine Engine
}

// New wraps engine in an Mvcc instance.
func New(engine Engine) *Mvcc {
	return &Mvcc{engine: engine}
}

// State is the immutable snapshot state a transaction carries: its own
// version, whether it may write, and the set of versions that were active
// (uncommitted) when it began.
type State struct {
	Version  Version
	ReadOnly bool
	Active   map[Version]struct{}
}

// visible is the single visibility predicate used by every reader and
// writer: version w is visible to a transaction in state s iff w is not in
// the active set, and w < s.Version for read-only transactions or
// w <= s.Version otherwise.
func (s State) visible(w Version) bool {
	if _, active := s.Active[w]; active {
		return false
	}
	if s.ReadOnly {
		return w < s.Version
	}
	return w <= s.Version
}

func encodeNextVersionKey() []byte {
	return keycode.NewEncoder().Tag(tagNextVersion).Bytes()
}

func encodeActiveTransactionKey(v Version) []byte {
	return keycode.NewEncoder().Tag(tagActiveTransaction).Uint64(v).Bytes()
}

func activeTransactionPrefix() []byte {
	return []byte{tagActiveTransaction}
}

func encodeActiveTransactionSnapshotKey(v Version) []byte {
	return keycode.NewEncoder().Tag(tagActiveTransactionSnapshot).Uint64(v).Bytes()
}

func encodeTransactionWriteKey(v Version, userKey []byte) []byte {
	return keycode.NewEncoder().Tag(tagTransactionWrite).Uint64(v).BytesField(userKey).Bytes()
}

func transactionWritePrefix(v Version) []byte {
	return keycode.NewEncoder().Tag(tagTransactionWrite).Uint64(v).Bytes()
}

func encodeVersionKey(userKey []byte, v Version) []byte {
	return keycode.NewEncoder().Tag(tagVersion).BytesField(userKey).Uint64(v).Bytes()
}

// versionKeyPrefixRange bounds exactly the Version(userKey, *) keyspace for
// one user key, across every possible version value.
func versionKeyPrefixRange(userKey []byte) (start, end []byte) {
	e := keycode.NewEncoder().Tag(tagVersion)
	full := keycode.NewEncoder().BytesField(userKey).Bytes()
	prefix := append(e.Bytes(), full[:len(full)-2]...) // strip the BytesField terminator
	return keycode.PrefixRange(prefix)
}

func decodeVersionKey(raw []byte) (userKey []byte, version Version, err error) {
	d := keycode.NewDecoder(raw)
	tag, err := d.Tag()
	if err != nil {
		return nil, 0, err
	}
	if tag != tagVersion {
		return nil, 0, verrors.New(verrors.InvalidEngineState, "expected a Version key, got tag %d", tag)
	}
	userKey, err = d.BytesField()
	if err != nil {
		return nil, 0, err
	}
	version, err = d.Uint64()
	if err != nil {
		return nil, 0, err
	}
	return userKey, version, nil
}

func decodeTransactionWriteKey(raw []byte) (version Version, userKey []byte, err error) {
	d := keycode.NewDecoder(raw)
	tag, err := d.Tag()
	if err != nil {
		return 0, nil, err
	}
	if tag != tagTransactionWrite {
		return 0, nil, verrors.New(verrors.InvalidEngineState, "expected a TransactionWrite key, got tag %d", tag)
	}
	version, err = d.Uint64()
	if err != nil {
		return 0, nil, err
	}
	userKey, err = d.BytesField()
	if err != nil {
		return 0, nil, err
	}
	return version, userKey, nil
}

func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, verrors.New(verrors.Serialization, "expected 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func encodeVersionSet(versions map[Version]struct{}) []byte {
	list := make([]uint64, 0, len(versions))
	for v := range versions {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	buf := make([]byte, 0, 8*len(list))
	for _, v := range list {
		buf = append(buf, encodeUint64(v)...)
	}
	return buf
}

func decodeVersionSet(buf []byte) (map[Version]struct{}, error) {
	if len(buf)%8 != 0 {
		return nil, verrors.New(verrors.Serialization, "invalid version set encoding")
	}
	out := make(map[Version]struct{}, len(buf)/8)
	for i := 0; i < len(buf); i += 8 {
		v, err := decodeUint64(buf[i : i+8])
		if err != nil {
			return nil, err
		}
		out[v] = struct{}{}
	}
	return out, nil
}

// encodeValue wraps a payload as present-or-tombstone so Get/Scan can tell a
// deleted key from one that never existed.
func encodeValue(value []byte, tombstone bool) []byte {
	if tombstone {
		return []byte{0}
	}
	buf := make([]byte, 0, 5+len(value))
	buf = append(buf, 1)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(value)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, value...)
	return buf
}

// decodeValue returns (value, isTombstone). A nil value with isTombstone
// false only happens for a zero-length stored value.
func decodeValue(raw []byte) (value []byte, tombstone bool, err error) {
	if len(raw) == 0 {
		return nil, false, verrors.New(verrors.Serialization, "empty version value")
	}
	switch raw[0] {
	case 0:
		return nil, true, nil
	case 1:
		if len(raw) < 5 {
			return nil, false, verrors.New(verrors.Serialization, "truncated version value")
		}
		n := binary.BigEndian.Uint32(raw[1:5])
		if uint32(len(raw)-5) < n {
			return nil, false, verrors.New(verrors.Serialization, "truncated version value payload")
		}
		return raw[5 : 5+n], false, nil
	default:
		return nil, false, verrors.New(verrors.Serialization, "invalid version value tag %d", raw[0])
	}
}

// Begin starts a new transaction. readOnly transactions may only read; they
// still register against the active-transaction set so writers' conflict
// checks treat them uniformly with writers (see visible).
func (m *Mvcc) Begin(readOnly bool) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	version := Version(1)
	if raw, ok, err := m.engine.Get(encodeNextVersionKey()); err != nil {
		return nil, err
	} else if ok {
		version, err = decodeUint64(raw)
		if err != nil {
			return nil, err
		}
	}
	if err := m.engine.Set(encodeNextVersionKey(), encodeUint64(version+1)); err != nil {
		return nil, err
	}

	active, err := m.scanActiveTransactions()
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		if err := m.engine.Set(encodeActiveTransactionSnapshotKey(version), encodeVersionSet(active)); err != nil {
			return nil, err
		}
	}
	if err := m.engine.Set(encodeActiveTransactionKey(version), []byte{}); err != nil {
		return nil, err
	}

	return &Transaction{
		mvcc: m,
		state: State{
			Version:  version,
			ReadOnly: readOnly,
			Active:   active,
		},
	}, nil
}

func (m *Mvcc) scanActiveTransactions() (map[Version]struct{}, error) {
	active := map[Version]struct{}{}
	it := m.engine.ScanPrefix(activeTransactionPrefix())
	for {
		kv, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		d := keycode.NewDecoder(kv.Key)
		tag, err := d.Tag()
		if err != nil {
			return nil, err
		}
		if tag != tagActiveTransaction {
			return nil, verrors.New(verrors.InvalidEngineState, "expected an ActiveTransaction key, got tag %d", tag)
		}
		v, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		active[v] = struct{}{}
	}
	return active, nil
}

// Transaction is a snapshot-isolated view of the MVCC key space.
type Transaction struct {
	mvcc  *Mvcc
	state State
}

// State exposes the transaction's immutable snapshot state.
func (t *Transaction) State() State { return t.state }

func (t *Transaction) writeVersion(key []byte, value []byte, tombstone bool) error {
	if t.state.ReadOnly {
		return verrors.New(verrors.TransactionReadOnly, "")
	}

	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	start, end := versionKeyPrefixRange(key)
	it := t.mvcc.engine.Scan(start, end)
	var latestVersion Version
	var sawAny bool
	for {
		kv, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		_, v, err := decodeVersionKey(kv.Key)
		if err != nil {
			return err
		}
		latestVersion = v
		sawAny = true
	}
	if sawAny && !t.state.visible(latestVersion) {
		return verrors.New(verrors.OutOfOrder, "write-write conflict on key")
	}

	if err := t.mvcc.engine.Set(encodeTransactionWriteKey(t.state.Version, key), []byte{}); err != nil {
		return err
	}
	if err := t.mvcc.engine.Set(encodeVersionKey(key, t.state.Version), encodeValue(value, tombstone)); err != nil {
		return err
	}
	return nil
}

// Set writes value at key, visible from this transaction's version onward.
func (t *Transaction) Set(key, value []byte) error {
	return t.writeVersion(key, value, false)
}

// Delete writes a tombstone at key.
func (t *Transaction) Delete(key []byte) error {
	return t.writeVersion(key, nil, true)
}

// Get returns the newest version of key visible to this transaction.
func (t *Transaction) Get(key []byte) ([]byte, bool, error) {
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	start, end := versionKeyPrefixRange(key)
	it := t.mvcc.engine.Scan(start, end)
	var value []byte
	var tombstone bool
	var found bool
	for {
		kv, ok, err := it.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		_, v, err := decodeVersionKey(kv.Key)
		if err != nil {
			return nil, false, err
		}
		if !t.state.visible(v) {
			continue
		}
		value, tombstone, err = decodeValue(kv.Value)
		if err != nil {
			return nil, false, err
		}
		found = true
	}
	if !found || tombstone {
		return nil, false, nil
	}
	return value, true, nil
}

// Commit finalizes the transaction: its write-set bookkeeping is removed
// and the engine is flushed to durable storage.
func (t *Transaction) Commit() error {
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	prefix := transactionWritePrefix(t.state.Version)
	it := t.mvcc.engine.ScanPrefix(prefix)
	var toRemove [][]byte
	for {
		kv, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		toRemove = append(toRemove, append([]byte(nil), kv.Key...))
	}
	for _, key := range toRemove {
		if err := t.mvcc.engine.Delete(key); err != nil {
			return err
		}
	}
	if err := t.mvcc.engine.Delete(encodeActiveTransactionKey(t.state.Version)); err != nil {
		return err
	}
	return t.mvcc.engine.Flush()
}

// Rollback discards every version this transaction wrote so it can never
// become visible.
func (t *Transaction) Rollback() error {
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	prefix := transactionWritePrefix(t.state.Version)
	it := t.mvcc.engine.ScanPrefix(prefix)
	var toRemove [][]byte
	for {
		kv, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		_, userKey, err := decodeTransactionWriteKey(kv.Key)
		if err != nil {
			return err
		}
		toRemove = append(toRemove, encodeVersionKey(userKey, t.state.Version))
		toRemove = append(toRemove, append([]byte(nil), kv.Key...))
	}
	for _, key := range toRemove {
		if err := t.mvcc.engine.Delete(key); err != nil {
			return err
		}
	}
	return t.mvcc.engine.Delete(encodeActiveTransactionKey(t.state.Version))
}

// bufferSize caps how many distinct rows a scan batch materializes before
// releasing the storage mutex, bounding peak memory while amortizing lock
// cost over more than one row per acquisition.
const bufferSize = 32

// ScanIterator is a lazy, pull-based cursor over the newest visible version
// of every distinct user key in a byte range.
type ScanIterator struct {
	txn        *Transaction
	buf        []storage.KeyValue
	bi         int
	rangeStart []byte
	rangeEnd   []byte
	exhausted  bool
}

// Next returns the next (key, value) pair in ascending key order, or
// ok=false once the range is exhausted.
func (it *ScanIterator) Next() (storage.KeyValue, bool, error) {
	if it.bi < len(it.buf) {
		kv := it.buf[it.bi]
		it.bi++
		return kv, true, nil
	}
	if it.exhausted {
		return storage.KeyValue{}, false, nil
	}
	if err := it.fillBuffer(); err != nil {
		return storage.KeyValue{}, false, err
	}
	if len(it.buf) == 0 {
		it.exhausted = true
		return storage.KeyValue{}, false, nil
	}
	it.bi = 0
	kv := it.buf[it.bi]
	it.bi++
	return kv, true, nil
}

func (it *ScanIterator) fillBuffer() error {
	it.txn.mvcc.mu.Lock()
	defer it.txn.mvcc.mu.Unlock()

	it.buf = it.buf[:0]
	raw := it.txn.mvcc.engine.Scan(it.rangeStart, it.rangeEnd)

	var curKey []byte
	var curVal []byte
	var curTombstone bool
	haveCur := false

	flush := func() {
		if haveCur && !curTombstone {
			it.buf = append(it.buf, storage.KeyValue{Key: curKey, Value: curVal})
		}
	}

	for {
		kv, ok, err := raw.Next()
		if err != nil {
			return err
		}
		if !ok {
			flush()
			it.exhausted = true
			it.rangeStart = nil
			return nil
		}
		userKey, version, err := decodeVersionKey(kv.Key)
		if err != nil {
			return err
		}
		if !it.txn.state.visible(version) {
			continue
		}
		if haveCur && !bytes.Equal(curKey, userKey) {
			flush()
			if len(it.buf) >= bufferSize {
				it.rangeStart = append([]byte(nil), kv.Key...)
				haveCur = false
				return nil
			}
		}
		curKey = append([]byte(nil), userKey...)
		curVal, curTombstone, err = decodeValue(kv.Value)
		if err != nil {
			return err
		}
		haveCur = true
	}
}

// Scan yields the newest visible version of every key in [start, end).
func (t *Transaction) Scan(start, end []byte) *ScanIterator {
	rs := encodeVersionKey(start, 0)
	var re []byte
	if end == nil {
		re = []byte{tagUnversioned}
	} else {
		re = encodeVersionKey(end, 0)
	}
	return &ScanIterator{txn: t, rangeStart: rs, rangeEnd: re}
}

// ScanPrefix yields the newest visible version of every key with the given
// user-key prefix.
func (t *Transaction) ScanPrefix(prefix []byte) *ScanIterator {
	full := keycode.NewEncoder().BytesField(prefix).Bytes()
	raw := append([]byte{tagVersion}, full[:len(full)-2]...)
	start, end := keycode.PrefixRange(raw)
	return &ScanIterator{txn: t, rangeStart: start, rangeEnd: end}
}
