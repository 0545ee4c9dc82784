// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pool implements a process-wide string interner.
//
// Interned strings are handles to pond-backed byte sequences carrying a
// precomputed 64-bit hash. For any two Empool calls with equal byte
// content the returned handles are equal, so handle comparison stands
// in for byte comparison everywhere downstream.
//
// The pool is leaky by design: ponds grow monotonically and are never
// freed for the lifetime of the process.
package pool

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

// A String is an immutable reference to an interned byte sequence. The
// zero String is the distinguished empty handle, distinct from a handle
// to any pooled sequence. Non-empty handles compare equal (==) iff
// their underlying bytes are equal.
type String struct {
	e *entry
}

type entry struct {
	hash uint64
	b    []byte // view into a pond
}

// Empty reports whether s is the empty handle.
func (s String) Empty() bool { return s.e == nil }

// View returns the interned bytes, or nil for the empty handle. Callers
// must not modify the result.
func (s String) View() []byte {
	if s.e == nil {
		return nil
	}
	return s.e.b
}

// String returns the interned bytes as a string.
func (s String) String() string {
	if s.e == nil {
		return ""
	}
	return string(s.e.b)
}

// Hash returns the 64-bit murmur3 hash of the interned bytes, or 0 for
// the empty handle.
func (s String) Hash() uint64 {
	if s.e == nil {
		return 0
	}
	return s.e.hash
}

const (
	stripeCount = 23               // prime; to help reduce any hash bias
	pondMin     = 16 * 1024 * 1024 // ponds grow in 16 MiB pages
)

// index maps string hash to *entry. Entries are never removed, so a
// hit on the lock-free read path is always safe to use.
var index sync.Map

// Writers serialize per hash stripe. Each stripe owns its own pond so
// carving needs no further coordination.
var stripes [stripeCount]struct {
	mu   sync.Mutex
	pond []byte
}

// Empool interns b and returns its handle. Empty input maps to the
// empty handle.
func Empool(b []byte) String {
	if len(b) == 0 {
		return String{}
	}

	h := murmur3.Sum64(b)
	if v, ok := index.Load(h); ok {
		return String{v.(*entry)}
	}

	s := &stripes[h%stripeCount]
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-probe under the lock in case another thread empooled the
	// string while we were waiting for it.
	if v, ok := index.Load(h); ok {
		return String{v.(*entry)}
	}

	// NUL terminate the pooled copy to make debugging easier.
	n := len(b) + 1
	if len(s.pond) < n {
		sz := pondMin
		if n > sz {
			sz = n
		}
		s.pond = make([]byte, sz)
	}
	dst := s.pond[:len(b):len(b)]
	s.pond = s.pond[n:]
	copy(dst, b)

	e := &entry{hash: h, b: dst}
	index.Store(h, e)
	return String{e}
}

// EmpoolString interns the bytes of str.
func EmpoolString(str string) String {
	return Empool([]byte(str))
}
