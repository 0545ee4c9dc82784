// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dw

import (
	"bytes"

	"github.com/odrcheck/orc/arch"
)

// A buf is a cursor over the bytes of one debug section. Reads past the
// end panic; the recover at the CU boundary turns that into a
// ParseError.
type buf struct {
	b      []byte
	pos    int
	layout arch.Layout
}

func (b *buf) remaining() int { return len(b.b) - b.pos }

func (b *buf) u8() uint8 {
	v := b.b[b.pos]
	b.pos++
	return v
}

func (b *buf) u16() uint16 {
	v := b.layout.Uint16(b.b[b.pos:])
	b.pos += 2
	return v
}

func (b *buf) u32() uint32 {
	v := b.layout.Uint32(b.b[b.pos:])
	b.pos += 4
	return v
}

func (b *buf) u64() uint64 {
	v := b.layout.Uint64(b.b[b.pos:])
	b.pos += 8
	return v
}

// uint reads an unsigned integer of size 1, 2, 4, or 8 bytes.
func (b *buf) uint(size int) uint64 {
	switch size {
	case 1:
		return uint64(b.u8())
	case 2:
		return uint64(b.u16())
	case 4:
		return uint64(b.u32())
	case 8:
		return b.u64()
	}
	panic(&ParseError{Kind: "bad field size", Offset: uint64(b.pos)})
}

func (b *buf) skip(n int) {
	if b.pos+n > len(b.b) {
		panic(&ParseError{Kind: "skip past end of section", Offset: uint64(b.pos)})
	}
	b.pos += n
}

// cstring returns a view up to the first NUL and advances past it.
func (b *buf) cstring() []byte {
	s := b.b[b.pos:]
	n := bytes.IndexByte(s, 0)
	if n < 0 {
		b.pos = len(b.b)
		return s
	}
	b.pos += n + 1
	return s[:n]
}

// uleb decodes an unsigned LEB128 value, accumulating into 64 bits.
// Continuation bytes past the accumulator width are still drained; their
// payload bits are discarded.
func (b *buf) uleb() uint64 {
	var result uint64
	var shift uint
	for {
		c := b.u8()
		if shift < 64 {
			result |= uint64(c&0x7f) << shift
		}
		if c&0x80 == 0 {
			return result
		}
		shift += 7
	}
}

// sleb decodes a signed LEB128 value, sign-extending from bit 6 of the
// final byte when the encoding is narrower than 64 bits.
func (b *buf) sleb() int64 {
	var result int64
	var shift uint
	for {
		c := b.u8()
		if shift < 64 {
			result |= int64(c&0x7f) << shift
		}
		shift += 7
		if c&0x80 == 0 {
			if c&0x40 != 0 && shift < 64 {
				result |= -1 << shift
			}
			return result
		}
	}
}

// AppendUleb appends the unsigned LEB128 encoding of v to dst.
func AppendUleb(dst []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		dst = append(dst, c)
		if v == 0 {
			return dst
		}
	}
}

// AppendSleb appends the signed LEB128 encoding of v to dst.
func AppendSleb(dst []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0)
		if !done {
			c |= 0x80
		}
		dst = append(dst, c)
		if done {
			return dst
		}
	}
}
