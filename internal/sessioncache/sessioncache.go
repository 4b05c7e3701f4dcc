// Package sessioncache is a process-local, crash-tolerant cache of session
// summaries backed by goleveldb, using a binary-coder idiom (a coder byte
// tag per value, a nilable-pointer sentinel, and one write/read method pair
// per stored type) so "session.getAll"/"session.list" don't need to open
// every session's relational store just to report its name and counts.
package sessioncache

import (
	"encoding/binary"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/chatlab/chatlab-core/internal/model"
)

const (
	coderNil byte = iota
	coderStruct
)

// Summary is the cached, cheap-to-list view of one session (§6.4
// "session.getAll"/"session.list").
type Summary struct {
	SessionID    string
	Name         string
	Platform     model.Platform
	Kind         model.Kind
	MessageCount int64
	ImportedAt   int64
	OwnerID      string
}

// Cache wraps one goleveldb handle for the lifetime of the process.
type Cache struct {
	db *leveldb.DB
}

func Open(path string) (*Cache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Put stores or overwrites s under its session id. Called on import,
// rename, and owner-assignment (§9: "invalidated on rename/delete/import").
func (c *Cache) Put(s Summary) error {
	w := &writer{}
	w.summary(&s)
	return c.db.Put([]byte(s.SessionID), w.buf, nil)
}

// Delete removes a cached summary, called when a session is deleted (§9).
func (c *Cache) Delete(sessionID string) error {
	return c.db.Delete([]byte(sessionID), nil)
}

// Get reads back a single session's summary, or (Summary{}, false, nil) if
// uncached.
func (c *Cache) Get(sessionID string) (Summary, bool, error) {
	data, err := c.db.Get([]byte(sessionID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, err
	}
	r := &reader{buf: data}
	s := r.summary()
	if s == nil {
		return Summary{}, false, r.err
	}
	return *s, true, nil
}

// List returns every cached summary, in undefined order — callers sort by
// whatever field session.list's request asked for (§6.4).
func (c *Cache) List() ([]Summary, error) {
	iter := c.db.NewIterator(nil, nil)
	defer iter.Release()
	var out []Summary
	for iter.Next() {
		r := &reader{buf: append([]byte(nil), iter.Value()...)}
		if s := r.summary(); s != nil {
			out = append(out, *s)
		}
	}
	return out, iter.Error()
}

// writer appends binary-encoded values to an in-memory buffer, one
// write<Type> method per field kind.
type writer struct {
	buf []byte
}

func (w *writer) coder(c byte) { w.buf = append(w.buf, c) }

func (w *writer) string(s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	w.buf = append(w.buf, lenBuf[:]...)
	w.buf = append(w.buf, s...)
}

func (w *writer) int64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) summary(s *Summary) {
	if s == nil {
		w.coder(coderNil)
		return
	}
	w.coder(coderStruct)
	w.string(s.SessionID)
	w.string(s.Name)
	w.string(string(s.Platform))
	w.string(string(s.Kind))
	w.int64(s.MessageCount)
	w.int64(s.ImportedAt)
	w.string(s.OwnerID)
}

// reader reverses writer's encoding, tracking the first error it hits so
// callers can check it once at the end rather than threading error returns
// through every field read. It sets r.err on a short read rather than
// panicking, since an untrusted cache file should not crash the worker.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) coder() byte {
	if r.err != nil || r.pos >= len(r.buf) {
		r.err = errShortRead
		return coderNil
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

var errShortRead = errors.New("sessioncache: short read")

func (r *reader) string() string {
	if r.err != nil || r.pos+4 > len(r.buf) {
		r.err = errShortRead
		return ""
	}
	n := int(binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4]))
	r.pos += 4
	if r.pos+n > len(r.buf) {
		r.err = errShortRead
		return ""
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s
}

func (r *reader) int64() int64 {
	if r.err != nil || r.pos+8 > len(r.buf) {
		r.err = errShortRead
		return 0
	}
	v := int64(binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8]))
	r.pos += 8
	return v
}

func (r *reader) summary() *Summary {
	if r.coder() == coderNil {
		return nil
	}
	s := &Summary{}
	s.SessionID = r.string()
	s.Name = r.string()
	s.Platform = model.Platform(r.string())
	s.Kind = model.Kind(r.string())
	s.MessageCount = r.int64()
	s.ImportedAt = r.int64()
	s.OwnerID = r.string()
	if r.err != nil {
		return nil
	}
	return s
}
