// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fio implements a minimal memory-mapped file reader.
//
// A Reader brings the file into memory with mmap and unmaps it when
// closed. It doesn't do any kind of bounds checking while reading;
// that's a responsibility of the caller at this point.
package fio

import (
	"bytes"
	"io"
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/odrcheck/orc/arch"
)

// sharedFile is a refcounted read-only file descriptor. Subbuf readers
// map new page ranges from the same descriptor, so the descriptor must
// outlive every mapping derived from it.
type sharedFile struct {
	f    *os.File
	path string
	refs int32
}

func (sf *sharedFile) ref() { atomic.AddInt32(&sf.refs, 1) }

func (sf *sharedFile) deref() {
	if atomic.AddInt32(&sf.refs, -1) == 0 {
		sf.f.Close()
	}
}

// A Reader is a cursor over a mapped read-only file or a page-aligned
// window of one. Offsets are always absolute file offsets, including in
// readers produced by Subbuf.
//
// A Reader is owned by a single goroutine; Subbuf yields an independent
// cursor suitable for handoff to another goroutine.
type Reader struct {
	sf     *sharedFile
	mapped []byte // mmap'd pages, or nil for an empty file
	origin int64  // file offset of mapped[0]
	pos    int64  // cursor, absolute file offset
	end    int64  // one past the last readable offset
}

// Open maps the entire file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	size := st.Size()
	var mapped []byte
	if size > 0 {
		mapped, err = unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "mapping %s", path)
		}
	}
	sf := &sharedFile{f: f, path: path, refs: 1}
	return &Reader{sf: sf, mapped: mapped, origin: 0, pos: 0, end: size}, nil
}

// Close unmaps r's pages. Other readers sharing the underlying file are
// unaffected; the file descriptor is closed when the last of them
// closes.
func (r *Reader) Close() {
	if r.mapped != nil {
		unix.Munmap(r.mapped)
		r.mapped = nil
	}
	if r.sf != nil {
		r.sf.deref()
		r.sf = nil
	}
}

// Path returns the filesystem path of the underlying file.
func (r *Reader) Path() string { return r.sf.path }

// Tell returns the cursor's absolute file offset.
func (r *Reader) Tell() int64 { return r.pos }

// Size returns the number of bytes remaining between the cursor and the
// end of the readable range.
func (r *Reader) Size() int64 { return r.end - r.pos }

// End returns the absolute file offset one past the readable range.
func (r *Reader) End() int64 { return r.end }

// Seek repositions the cursor. Whence is io.SeekStart, io.SeekCurrent,
// or io.SeekEnd; offsets for io.SeekStart are absolute file offsets.
func (r *Reader) Seek(offset int64, whence int) {
	switch whence {
	case io.SeekStart:
		r.pos = offset
	case io.SeekCurrent:
		r.pos += offset
	case io.SeekEnd:
		r.pos = r.end - offset
	default:
		panic("fio: bad seek whence")
	}
}

// TempSeek runs f with the cursor at pos, restoring the original
// position on all exit paths.
func (r *Reader) TempSeek(pos int64, f func() error) error {
	saved := r.pos
	defer func() { r.pos = saved }()
	r.pos = pos
	return f()
}

// Read copies len(p) bytes at the cursor into p and advances.
func (r *Reader) Read(p []byte) {
	copy(p, r.mapped[r.pos-r.origin:])
	r.pos += int64(len(p))
}

// Bytes returns a view of the next n bytes and advances. The view
// aliases the mapping and is valid until the Reader that produced it is
// closed.
func (r *Reader) Bytes(n int) []byte {
	b := r.mapped[r.pos-r.origin : r.pos-r.origin+int64(n)]
	r.pos += int64(n)
	return b
}

// Byte reads a single byte and advances.
func (r *Reader) Byte() byte {
	b := r.mapped[r.pos-r.origin]
	r.pos++
	return b
}

// CString returns a view of the bytes at the cursor up to the first
// NUL, and advances past the NUL. If no NUL is found before the end of
// the mapping, the view extends to the end.
func (r *Reader) CString() []byte {
	s := r.mapped[r.pos-r.origin:]
	n := bytes.IndexByte(s, 0)
	if n < 0 {
		r.pos = r.origin + int64(len(r.mapped))
		return s
	}
	r.pos += int64(n) + 1
	return s[:n]
}

// Uint16 reads a 16-bit field in the given layout and advances.
func (r *Reader) Uint16(l arch.Layout) uint16 {
	v := l.Uint16(r.mapped[r.pos-r.origin:])
	r.pos += 2
	return v
}

// Uint32 reads a 32-bit field in the given layout and advances.
func (r *Reader) Uint32(l arch.Layout) uint32 {
	v := l.Uint32(r.mapped[r.pos-r.origin:])
	r.pos += 4
	return v
}

// Uint64 reads a 64-bit field in the given layout and advances.
func (r *Reader) Uint64(l arch.Layout) uint64 {
	v := l.Uint64(r.mapped[r.pos-r.origin:])
	r.pos += 8
	return v
}

// Subbuf returns a new Reader mapping only the pages covering
// [Tell(), end), so the parent reader (and its potentially much larger
// mapping) can be closed once per-slice work has split out. The child's
// offsets remain absolute file offsets.
func (r *Reader) Subbuf(end int64) (*Reader, error) {
	pageSize := int64(unix.Getpagesize())
	start := r.pos
	mapStart := start &^ (pageSize - 1)
	mapEnd := (end + pageSize - 1) &^ (pageSize - 1)

	mapped, err := unix.Mmap(int(r.sf.f.Fd()), mapStart, int(mapEnd-mapStart), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping subrange [%#x, %#x)", start, end)
	}
	r.sf.ref()
	return &Reader{sf: r.sf, mapped: mapped, origin: mapStart, pos: start, end: end}, nil
}
