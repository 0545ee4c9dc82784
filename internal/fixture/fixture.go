// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fixture synthesizes the binary images the tests feed the
// parser: Mach-O objects with a __DWARF segment, ar archives, fat
// binaries, and DWARF compilation units.
package fixture

import (
	"encoding/binary"
	"fmt"
)

// A Buf accumulates a binary image.
type Buf struct {
	B []byte
}

func (b *Buf) U8(v byte) { b.B = append(b.B, v) }

func (b *Buf) U16(v uint16) { b.B = binary.LittleEndian.AppendUint16(b.B, v) }
func (b *Buf) U32(v uint32) { b.B = binary.LittleEndian.AppendUint32(b.B, v) }
func (b *Buf) U64(v uint64) { b.B = binary.LittleEndian.AppendUint64(b.B, v) }

func (b *Buf) U32BE(v uint32) { b.B = binary.BigEndian.AppendUint32(b.B, v) }

func (b *Buf) Uleb(v uint64) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b.B = append(b.B, c)
		if v == 0 {
			return
		}
	}
}

// CStr appends s plus a NUL terminator.
func (b *Buf) CStr(s string) {
	b.B = append(b.B, s...)
	b.B = append(b.B, 0)
}

func (b *Buf) Raw(p []byte) { b.B = append(b.B, p...) }

// Name16 appends s as a 16-byte NUL-padded field.
func (b *Buf) Name16(s string) {
	var f [16]byte
	copy(f[:], s)
	b.B = append(b.B, f[:]...)
}

// Len returns the current image size.
func (b *Buf) Len() int { return len(b.B) }

// A Section pairs a Mach-O section name with its contents.
type Section struct {
	Name string
	Data []byte
}

// MachO builds a minimal 64-bit little-endian x86_64 MH_OBJECT whose
// single LC_SEGMENT_64 carries the given __DWARF sections.
func MachO(sections ...Section) []byte {
	const (
		headerSize  = 32
		segCmdSize  = 72
		sectSize    = 80
		mhMagic64   = 0xfeedfacf
		cputypeX64  = 0x01000007
		mhObject    = 0x1
		lcSegment64 = 0x19
	)

	ncmds := uint32(1)
	sizeofcmds := uint32(segCmdSize + sectSize*len(sections))
	dataStart := headerSize + int(sizeofcmds)

	var b Buf
	b.U32(mhMagic64)
	b.U32(cputypeX64)
	b.U32(3) // cpusubtype
	b.U32(mhObject)
	b.U32(ncmds)
	b.U32(sizeofcmds)
	b.U32(0) // flags
	b.U32(0) // reserved

	b.U32(lcSegment64)
	b.U32(sizeofcmds)
	b.Name16("__DWARF")
	b.U64(0) // vmaddr
	b.U64(0) // vmsize
	b.U64(uint64(dataStart))
	var total uint64
	for _, s := range sections {
		total += uint64(len(s.Data))
	}
	b.U64(total) // filesize
	b.U32(7)     // maxprot
	b.U32(3)     // initprot
	b.U32(uint32(len(sections)))
	b.U32(0) // flags

	offset := uint32(dataStart)
	for _, s := range sections {
		b.Name16(s.Name)
		b.Name16("__DWARF")
		b.U64(0) // addr
		b.U64(uint64(len(s.Data)))
		b.U32(offset)
		b.U32(0) // align
		b.U32(0) // reloff
		b.U32(0) // nreloc
		b.U32(0) // flags
		b.U32(0) // reserved1
		b.U32(0) // reserved2
		b.U32(0) // reserved3
		offset += uint32(len(s.Data))
	}

	for _, s := range sections {
		b.Raw(s.Data)
	}
	return b.B
}

// A Member is one ar archive member.
type Member struct {
	Name string
	Body []byte

	// ExtendedName stores the name BSD-style ("#1/<len>" with the
	// real name leading the body).
	ExtendedName bool
}

// Ar builds a BSD ar archive.
func Ar(members ...Member) []byte {
	var b Buf
	b.Raw([]byte("!<arch>\n"))
	for _, m := range members {
		name := m.Name
		body := m.Body
		if m.ExtendedName {
			padded := m.Name
			for len(padded)%4 != 0 {
				padded += "\x00"
			}
			name = fmt.Sprintf("#1/%d", len(padded))
			body = append([]byte(padded), body...)
		}
		b.Raw([]byte(fmt.Sprintf("%-16s%-12d%-6d%-6d%-8o%-10d`\n", name, 0, 0, 0, 0o644, len(body))))
		b.Raw(body)
		if len(body)%2 != 0 {
			b.U8('\n')
		}
	}
	return b.B
}

// Fat wraps the given Mach-O slices into a universal binary. The
// cputype of each slice is read back out of its own header.
func Fat(slices ...[]byte) []byte {
	const fatMagic = 0xcafebabe
	headerSize := 8 + 20*len(slices)

	var b Buf
	b.U32BE(fatMagic)
	b.U32BE(uint32(len(slices)))
	offset := headerSize
	for _, s := range slices {
		cputype := binary.LittleEndian.Uint32(s[4:8])
		b.U32BE(cputype)
		b.U32BE(binary.LittleEndian.Uint32(s[8:12])) // cpusubtype
		b.U32BE(uint32(offset))
		b.U32BE(uint32(len(s)))
		b.U32BE(0) // align
		offset += len(s)
	}
	for _, s := range slices {
		b.Raw(s)
	}
	return b.B
}

// StructSpec describes the synthesized compilation unit StructCU
// emits: a struct with one member whose type is a named base type.
type StructSpec struct {
	CUName     string
	StructName string
	StructSize byte
	MemberName string
	BaseName   string
	BaseSize   byte
	DeclLine   byte
}

// StructCU builds the __debug_abbrev and __debug_info images for one
// DWARF 4 compilation unit shaped:
//
//	compile_unit
//	    base_type <BaseName> (byte_size, encoding)
//	    structure_type <StructName> (byte_size)
//	        member <MemberName> (type -> base_type, decl_line)
func StructCU(spec StructSpec) (info, abbrev []byte) {
	const (
		tagCompileUnit   = 0x11
		tagStructureType = 0x13
		tagMember        = 0x0d
		tagBaseType      = 0x24

		atName     = 0x03
		atByteSize = 0x0b
		atDeclLine = 0x3b
		atEncoding = 0x3e
		atType     = 0x49
		atProducer = 0x25

		formString = 0x08
		formData1  = 0x0b
		formRef4   = 0x13
	)

	var ab Buf
	decl := func(code, tag uint64, children byte, attrs ...uint64) {
		ab.Uleb(code)
		ab.Uleb(tag)
		ab.U8(children)
		for i := 0; i < len(attrs); i += 2 {
			ab.Uleb(attrs[i])
			ab.Uleb(attrs[i+1])
		}
		ab.Uleb(0)
		ab.Uleb(0)
	}
	decl(1, tagCompileUnit, 1, atName, formString, atProducer, formString)
	decl(2, tagBaseType, 0, atName, formString, atByteSize, formData1, atEncoding, formData1)
	decl(3, tagStructureType, 1, atName, formString, atByteSize, formData1)
	decl(4, tagMember, 0, atName, formString, atType, formRef4, atDeclLine, formData1)
	ab.Uleb(0) // table terminator

	var in Buf
	in.U32(0)    // unit length, patched below
	in.U16(4)    // version
	in.U32(0)    // abbrev offset
	in.U8(8)     // address size
	in.Uleb(1)   // compile_unit
	in.CStr(spec.CUName)
	in.CStr("clang version 14.0.0")

	baseOff := uint32(in.Len())
	in.Uleb(2) // base_type
	in.CStr(spec.BaseName)
	in.U8(spec.BaseSize)
	in.U8(0x05) // DW_ATE_signed

	in.Uleb(3) // structure_type
	in.CStr(spec.StructName)
	in.U8(spec.StructSize)

	in.Uleb(4) // member
	in.CStr(spec.MemberName)
	in.U32(baseOff)
	in.U8(spec.DeclLine)

	in.Uleb(0) // end of structure_type children
	in.Uleb(0) // end of compile_unit children

	binary.LittleEndian.PutUint32(in.B[0:], uint32(in.Len()-4))
	return in.B, ab.B
}

// StructObject wraps StructCU into a complete Mach-O object.
func StructObject(spec StructSpec) []byte {
	info, abbrev := StructCU(spec)
	return MachO(
		Section{Name: "__debug_info", Data: info},
		Section{Name: "__debug_abbrev", Data: abbrev},
	)
}
