// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dw

import (
	"bytes"
	"fmt"

	"github.com/odrcheck/orc/arch"
	"github.com/odrcheck/orc/pool"
)

// A ValueKind is a bitset describing the readings an AttributeValue
// admits. This is intentionally not a disjoint sum: a lot of values are
// binary encoded in DWARF but then require further interpretation (such
// as references to other DIEs) or can be converted to human-readable
// strings, and it's beneficial to keep both readings around.
type ValueKind uint8

const (
	KindPassover ValueKind = 1 << iota
	KindUint
	KindSint
	KindString
	KindReference
	KindDie
)

// An AttributeValue is one decoded DWARF attribute datum.
type AttributeValue struct {
	kind ValueKind
	u    uint64
	i    int64
	s    pool.String
	d    *Die
}

// Has reports whether v admits the reading k.
func (v *AttributeValue) Has(k ValueKind) bool { return v.kind&k != 0 }

// Kind returns the full tag bitset.
func (v *AttributeValue) Kind() ValueKind { return v.kind }

func (v *AttributeValue) SetPassover()     { v.kind = KindPassover }
func (v *AttributeValue) SetUint(x uint64) { v.kind |= KindUint; v.u = x }
func (v *AttributeValue) SetSint(x int64)  { v.kind |= KindSint; v.i = x }

func (v *AttributeValue) SetString(s pool.String) {
	v.kind |= KindString
	v.s = s
}

// SetReference records a __debug_info-relative offset to another DIE.
func (v *AttributeValue) SetReference(offset uint64) {
	v.kind |= KindReference
	v.u = offset
}

func (v *AttributeValue) SetDie(d *Die) { v.kind |= KindDie; v.d = d }

func (v *AttributeValue) Uint() uint64       { return v.u }
func (v *AttributeValue) Sint() int64        { return v.i }
func (v *AttributeValue) Str() pool.String   { return v.s }
func (v *AttributeValue) StringHash() uint64 { return v.s.Hash() }
func (v *AttributeValue) Reference() uint64  { return v.u }
func (v *AttributeValue) Die() *Die          { return v.d }

// Equal compares two values in reading priority order: string, then
// uint, then sint, then the tag sets alone. References are intentionally
// never compared by offset, because offsets are local to each object's
// __debug_info block.
func (v *AttributeValue) Equal(w *AttributeValue) bool {
	if v.Has(KindString) {
		return v.s == w.s
	}
	if v.Has(KindUint) {
		return v.u == w.u
	}
	if v.Has(KindSint) {
		return v.i == w.i
	}
	return v.kind == w.kind
}

func (v *AttributeValue) String() string {
	switch {
	case v.Has(KindString):
		return v.s.String()
	case v.Has(KindReference):
		return fmt.Sprintf("ref 0x%08x", v.u)
	case v.Has(KindUint):
		return fmt.Sprintf("%d", v.u)
	case v.Has(KindSint):
		return fmt.Sprintf("%d", v.i)
	case v.Has(KindPassover):
		return "<unsupported>"
	}
	return "<none>"
}

// An Attribute is one (name, form, value) triple of a DIE.
type Attribute struct {
	Name  At
	Form  Form
	Value AttributeValue
}

// An AttributeSequence is the ordered attribute list of one DIE. Name
// uniqueness is not enforced; lookups return the first match.
type AttributeSequence []Attribute

// Get returns the first attribute named at, or nil.
func (seq AttributeSequence) Get(at At) *Attribute {
	for i := range seq {
		if seq[i].Name == at {
			return &seq[i]
		}
	}
	return nil
}

// Has reports whether seq carries an attribute named at.
func (seq AttributeSequence) Has(at At) bool { return seq.Get(at) != nil }

// HasKind reports whether seq carries at with reading k.
func (seq AttributeSequence) HasKind(at At, k ValueKind) bool {
	a := seq.Get(at)
	return a != nil && a.Value.Has(k)
}

// StringAt returns the interned string of attribute at, or the empty
// handle.
func (seq AttributeSequence) StringAt(at At) pool.String {
	if a := seq.Get(at); a != nil && a.Value.Has(KindString) {
		return a.Value.Str()
	}
	return pool.String{}
}

// UintAt returns the unsigned reading of attribute at, or 0.
func (seq AttributeSequence) UintAt(at At) uint64 {
	if a := seq.Get(at); a != nil && a.Value.Has(KindUint) {
		return a.Value.Uint()
	}
	return 0
}

// A Die is one materialized debugging information entry. The quantity
// created at runtime can be on the order of millions of instances, so
// the fields are ordered for alignment.
type Die struct {
	// Path is the fully qualified symbol path, e.g. "::[u]::ns::Foo".
	Path pool.String

	// Next chains DIEs sharing the same symbol hash. It is written by
	// the registry and rewritten once during enforcement.
	Next *Die

	// Hash is the symbol identity: the hash of Path's bytes.
	Hash uint64

	// FatalAttributeHash digests every attribute whose disagreement
	// between two definitions constitutes an ODR violation.
	FatalAttributeHash uint64

	// OFDIndex indexes the global object-file-descriptor registry.
	OFDIndex uint32

	// DebugInfoOffset is the DIE's byte offset from the top of the
	// owning object's __debug_info section.
	DebugInfoOffset uint32

	Tag  Tag
	Arch arch.Arch

	HasChildren bool
	Conflict    bool
	Skippable   bool
}

func (d *Die) String() string {
	return fmt.Sprintf("0x%08x: %s %s", d.DebugInfoOffset, d.Tag, d.Path)
}

// maxAncestors bounds the containment depth: a file, an ar member, a
// fat slice, and slack.
const maxAncestors = 5

// An Ancestry is the containment path of an object, outermost first,
// e.g. libfoo.a -> foo.o. It is a small value type; PushBack copies.
type Ancestry struct {
	ancestors [maxAncestors]pool.String
	count     int
}

// PushBack returns a copy of a extended with s.
func (a Ancestry) PushBack(s pool.String) Ancestry {
	if a.count >= maxAncestors {
		panic("ancestry overflow")
	}
	a.ancestors[a.count] = s
	a.count++
	return a
}

// Back returns the innermost ancestor.
func (a *Ancestry) Back() pool.String {
	if a.count == 0 {
		return pool.String{}
	}
	return a.ancestors[a.count-1]
}

func (a *Ancestry) Len() int { return a.count }

// Less orders ancestries by length, then lexicographically by element
// bytes.
func (a *Ancestry) Less(b *Ancestry) bool {
	if a.count != b.count {
		return a.count < b.count
	}
	for i := 0; i < a.count; i++ {
		if c := bytes.Compare(a.ancestors[i].View(), b.ancestors[i].View()); c != 0 {
			return c < 0
		}
	}
	return false
}

func (a *Ancestry) String() string {
	var buf bytes.Buffer
	for i := 0; i < a.count; i++ {
		if i > 0 {
			buf.WriteString(" -> ")
		}
		buf.Write(a.ancestors[i].View())
	}
	return buf.String()
}

// A ParseError reports malformed DWARF. It is caught at the CU
// boundary; other CUs proceed.
type ParseError struct {
	Kind   string
	Offset uint64
	CU     uint64
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dwarf: %s at __debug_info+%#x (cu %#x)", e.Kind, e.Offset, e.CU)
}

// hashCombine folds v into seed. The constant is the 64-bit golden
// ratio, as in the usual hash_combine recipe.
func hashCombine(seed, v uint64) uint64 {
	return seed ^ (v + 0x9e3779b97f4a7c15 + (seed << 6) + (seed >> 2))
}
