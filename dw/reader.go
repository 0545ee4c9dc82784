// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dw

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/odrcheck/orc/arch"
	"github.com/odrcheck/orc/pool"
)

// Sections holds the __debug_* section contents located by the Mach-O
// walk. Slices alias the file mapping and must stay mapped for the
// Reader's lifetime.
type Sections struct {
	Info       []byte
	Abbrev     []byte
	Str        []byte
	StrOffsets []byte
	LineStr    []byte
}

// A SymbolLookup resolves an address within the object to its mangled
// symbol name. It supplements DIEs that carry neither a name nor a
// linkage name.
type SymbolLookup interface {
	SymbolAt(addr uint64) (string, bool)
}

// RegisterDies deposits one CU's batch of materialized DIEs.
type RegisterDies func(batch []Die)

// SubmitWork schedules fn on the executor. Implementations may run fn
// inline.
type SubmitWork func(fn func())

// A Reader materializes DIEs from one object's debug sections.
type Reader struct {
	sections Sections
	layout   arch.Layout
	arch     arch.Arch
	ofd      uint32
	symbols  SymbolLookup
}

// NewReader returns a Reader over the given sections. ofd is the
// object's index in the object-file-descriptor registry; symbols may be
// nil.
func NewReader(sections Sections, layout arch.Layout, a arch.Arch, ofd uint32, symbols SymbolLookup) *Reader {
	return &Reader{sections: sections, layout: layout, arch: a, ofd: ofd, symbols: symbols}
}

// A unit describes one compilation unit's extent within __debug_info.
type unit struct {
	offset      int // section offset of the unit header
	end         int // one past the unit's last byte
	headerEnd   int // first DIE offset
	version     int
	abbrevOff   uint32
	addressSize int
}

// scanUnits walks the CU headers without touching any DIEs.
func (r *Reader) scanUnits() ([]unit, error) {
	var units []unit
	b := &buf{b: r.sections.Info, layout: r.layout}
	for b.remaining() > 0 {
		var u unit
		u.offset = b.pos
		length := b.u32()
		if length == 0xffffffff {
			return nil, &ParseError{Kind: "64-bit DWARF is unsupported", Offset: uint64(u.offset)}
		}
		u.end = b.pos + int(length)
		if u.end > len(r.sections.Info) {
			return nil, &ParseError{Kind: "unit length past end of __debug_info", Offset: uint64(u.offset)}
		}
		u.version = int(b.u16())
		switch {
		case u.version >= 2 && u.version <= 4:
			u.abbrevOff = b.u32()
			u.addressSize = int(b.u8())
		case u.version == 5:
			unitType := b.u8()
			if unitType != 0x01 { // DW_UT_compile
				return nil, &ParseError{Kind: fmt.Sprintf("unsupported unit type %#x", unitType), Offset: uint64(u.offset)}
			}
			u.addressSize = int(b.u8())
			u.abbrevOff = b.u32()
		default:
			return nil, &ParseError{Kind: fmt.Sprintf("unsupported DWARF version %d", u.version), Offset: uint64(u.offset)}
		}
		u.headerEnd = b.pos
		units = append(units, u)
		b.pos = u.end
	}
	return units, nil
}

// Process materializes every CU in __debug_info, submitting one work
// item per CU. Each batch is handed to register as it completes. A
// malformed CU is reported and discarded; other CUs proceed.
func (r *Reader) Process(register RegisterDies, submit SubmitWork) error {
	units, err := r.scanUnits()
	if err != nil {
		return err
	}
	for _, u := range units {
		u := u
		submit(func() {
			batch, err := r.processUnit(u)
			if err != nil {
				logrus.WithError(err).Error("discarding compilation unit")
				return
			}
			register(batch)
		})
	}
	return nil
}

// An abbrevAttr is one (at, form) pair of an abbreviation declaration,
// plus the constant value for DW_FORM_implicit_const.
type abbrevAttr struct {
	at       At
	form     Form
	implicit int64
}

type abbrevDecl struct {
	tag         Tag
	hasChildren bool
	attrs       []abbrevAttr
}

// parseAbbrev decodes the abbreviation declarations starting at off in
// __debug_abbrev, keyed by abbreviation code. The list terminates at
// code 0.
func (r *Reader) parseAbbrev(off uint32) map[uint64]*abbrevDecl {
	b := &buf{b: r.sections.Abbrev, pos: int(off), layout: r.layout}
	decls := make(map[uint64]*abbrevDecl)
	for {
		code := b.uleb()
		if code == 0 {
			return decls
		}
		d := &abbrevDecl{tag: Tag(b.uleb()), hasChildren: b.u8() != 0}
		for {
			at := At(b.uleb())
			form := Form(b.uleb())
			if at == 0 && form == 0 {
				break
			}
			a := abbrevAttr{at: at, form: form}
			if form == FormImplicitConst {
				a.implicit = b.sleb()
			}
			d.attrs = append(d.attrs, a)
		}
		decls[code] = d
	}
}

// recoverParse converts a panic from a bounds overrun or an explicit
// ParseError raise into the returned error.
func recoverParse(u unit, errp *error) {
	switch p := recover().(type) {
	case nil:
	case *ParseError:
		p.CU = uint64(u.offset)
		*errp = p
	default:
		*errp = &ParseError{Kind: fmt.Sprint(p), CU: uint64(u.offset)}
	}
}

// pathPrefix starts every symbol path. "u" marks user entities; the
// reporting layer lops the first 7 bytes off to recover the bare
// symbol.
const pathPrefix = "::[u]"

type scopeEntry struct {
	component []byte
	anonymous bool
	omit      bool // the compile unit roots the tree but names no scope
}

// processUnit materializes one CU: a full DIE walk, then reference
// resolution and hashing once every DIE of the unit exists.
func (r *Reader) processUnit(u unit) (dies []Die, err error) {
	defer recoverParse(u, &err)

	decls := r.parseAbbrev(u.abbrevOff)
	b := &buf{b: r.sections.Info[:u.end], pos: u.headerEnd, layout: r.layout}

	var seqs []AttributeSequence
	cache := make(map[uint32]int)
	var scope []scopeEntry
	anonDepth := 0
	strOffsetsBase := uint64(8) // past the DWARF 5 header when no base attribute appears

	for b.remaining() > 0 {
		offset := uint32(b.pos)
		code := b.uleb()
		if code == 0 {
			if n := len(scope); n > 0 {
				if scope[n-1].anonymous {
					anonDepth--
				}
				scope = scope[:n-1]
			}
			continue
		}
		decl := decls[code]
		if decl == nil {
			panic(&ParseError{Kind: fmt.Sprintf("unknown abbreviation code %d", code), Offset: uint64(offset)})
		}

		seq := make(AttributeSequence, 0, len(decl.attrs))
		for _, aa := range decl.attrs {
			seq = append(seq, r.readAttr(b, &u, aa, &strOffsetsBase))
		}

		name := r.dieName(decl, seq)

		d := Die{
			Tag:             decl.tag,
			Arch:            r.arch,
			OFDIndex:        r.ofd,
			DebugInfoOffset: offset,
			HasChildren:     decl.hasChildren,
		}
		d.Path = r.diePath(decl.tag, scope, name)
		d.Hash = d.Path.Hash()
		d.Skippable = r.skippable(decl.tag, seq, name, anonDepth)

		cache[offset] = len(dies)
		dies = append(dies, d)
		seqs = append(seqs, seq)

		if decl.hasChildren {
			e := scopeEntry{component: name, omit: decl.tag == TagCompileUnit}
			if len(name) == 0 && !e.omit {
				e.component = []byte("(anonymous)")
				if decl.tag == TagNamespace {
					e.anonymous = true
					anonDepth++
				}
			}
			scope = append(scope, e)
		}
	}

	// Every DIE of the unit now exists, so intra-CU references (forward
	// included) resolve against the cache.
	for i := range dies {
		seq := seqs[i]
		for j := range seq {
			v := &seq[j].Value
			if !v.Has(KindReference) {
				continue
			}
			if k, ok := cache[uint32(v.Reference())]; ok {
				v.SetDie(&dies[k])
				if s := r.typeString(k, dies, seqs, 0); !s.Empty() {
					v.SetString(s)
				}
			}
		}
		dies[i].FatalAttributeHash = fatalAttributeHash(seq)
	}
	return dies, nil
}

// dieName picks the path component for a DIE: the linkage name when
// present (it disambiguates overloads), else the source name, else a
// symbol table hit on the entry's low PC.
func (r *Reader) dieName(decl *abbrevDecl, seq AttributeSequence) []byte {
	if s := seq.StringAt(AtLinkageName); !s.Empty() {
		return s.View()
	}
	if s := seq.StringAt(AtMIPSLinkageName); !s.Empty() {
		return s.View()
	}
	if s := seq.StringAt(AtName); !s.Empty() {
		return s.View()
	}
	if decl.tag == TagSubprogram && r.symbols != nil {
		if a := seq.Get(AtLowPC); a != nil && a.Value.Has(KindUint) {
			if name, ok := r.symbols.SymbolAt(a.Value.Uint()); ok {
				return []byte(name)
			}
		}
	}
	return nil
}

// diePath builds the qualified path: the prefix, each enclosing scope
// component, then the DIE's own name. A top-level CU tag has no symbol
// path and yields the bare prefix.
func (r *Reader) diePath(tag Tag, scope []scopeEntry, name []byte) pool.String {
	if tag == TagCompileUnit {
		return pool.EmpoolString(pathPrefix)
	}
	var p bytes.Buffer
	p.WriteString(pathPrefix)
	for _, e := range scope {
		if e.omit {
			continue
		}
		p.WriteString("::")
		p.Write(e.component)
	}
	p.WriteString("::")
	if len(name) > 0 {
		p.Write(name)
	} else {
		p.WriteString("(anonymous)")
	}
	return pool.Empool(p.Bytes())
}

// registeredTag reports whether t is one of the entities the one
// definition rule constrains. Everything else materializes (so references resolve) but
// never registers.
func registeredTag(t Tag) bool {
	switch t {
	case TagClassType, TagStructureType, TagUnionType, TagEnumerationType,
		TagSubprogram, TagTypedef, TagMember, TagVariable:
		return true
	}
	return false
}

func (r *Reader) skippable(tag Tag, seq AttributeSequence, name []byte, anonDepth int) bool {
	if !registeredTag(tag) {
		return true
	}
	if anonDepth > 0 {
		return true
	}
	if len(name) == 0 {
		return true
	}
	// Declarations are references to a definition elsewhere; only
	// definitions participate in ODR enforcement.
	if a := seq.Get(AtDeclaration); a != nil && a.Value.Has(KindUint) && a.Value.Uint() != 0 {
		return true
	}
	return false
}

// typeString resolves the display string of the DIE at index k: its own
// name, or the name behind its type reference (typedef and CV chains),
// bounded to keep cycles finite.
func (r *Reader) typeString(k int, dies []Die, seqs []AttributeSequence, depth int) pool.String {
	if depth > 8 {
		return pool.String{}
	}
	if s := seqs[k].StringAt(AtName); !s.Empty() {
		return s
	}
	if a := seqs[k].Get(AtType); a != nil && a.Value.Has(KindReference) {
		if j := indexOfOffset(dies, uint32(a.Value.Reference())); j >= 0 {
			return r.typeString(j, dies, seqs, depth+1)
		}
	}
	return pool.String{}
}

func indexOfOffset(dies []Die, offset uint32) int {
	// The walk emits DIEs in offset order, so binary search works.
	lo, hi := 0, len(dies)
	for lo < hi {
		mid := (lo + hi) / 2
		if dies[mid].DebugInfoOffset < offset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(dies) && dies[lo].DebugInfoOffset == offset {
		return lo
	}
	return -1
}

// fatalAttributeHash digests the ordered (name, normalized value) pairs
// of every fatal attribute. Strings hash by their pooled hash, so the
// digest is stable across objects; references that never resolved to a
// string hash by form and offset only.
func fatalAttributeHash(seq AttributeSequence) uint64 {
	var h uint64
	for i := range seq {
		a := &seq[i]
		if NonfatalAttribute(a.Name) {
			continue
		}
		h = hashCombine(h, uint64(a.Name))
		h = hashCombine(h, attrValueHash(a))
	}
	return h
}

func attrValueHash(a *Attribute) uint64 {
	v := &a.Value
	switch {
	case v.Has(KindString):
		return v.StringHash()
	case v.Has(KindUint):
		return v.Uint()
	case v.Has(KindSint):
		return uint64(v.Sint())
	case v.Has(KindReference):
		return hashCombine(uint64(a.Form), v.Reference())
	}
	return uint64(a.Form)
}

// readAttr decodes one attribute value per its form.
func (r *Reader) readAttr(b *buf, u *unit, aa abbrevAttr, strOffsetsBase *uint64) Attribute {
	attr := Attribute{Name: aa.at, Form: aa.form}
	v := &attr.Value

	form := aa.form
	if form == FormIndirect {
		form = Form(b.uleb())
		attr.Form = form
	}

	switch form {
	case FormAddr:
		v.SetUint(b.uint(u.addressSize))
	case FormBlock1:
		b.skip(int(b.u8()))
		v.SetPassover()
	case FormBlock2:
		b.skip(int(b.u16()))
		v.SetPassover()
	case FormBlock4:
		b.skip(int(b.u32()))
		v.SetPassover()
	case FormBlock, FormExprloc:
		b.skip(int(b.uleb()))
		v.SetPassover()
	case FormData1:
		v.SetUint(uint64(b.u8()))
	case FormData2:
		v.SetUint(uint64(b.u16()))
	case FormData4:
		v.SetUint(uint64(b.u32()))
	case FormData8:
		v.SetUint(b.u64())
	case FormData16:
		b.skip(16)
		v.SetPassover()
	case FormString:
		v.SetString(pool.Empool(b.cstring()))
	case FormStrp:
		v.SetString(r.stringAt(r.sections.Str, uint64(b.u32())))
	case FormLineStrp:
		v.SetString(r.stringAt(r.sections.LineStr, uint64(b.u32())))
	case FormStrx:
		v.SetString(r.strx(b.uleb(), *strOffsetsBase))
	case FormStrx1:
		v.SetString(r.strx(uint64(b.u8()), *strOffsetsBase))
	case FormStrx2:
		v.SetString(r.strx(uint64(b.u16()), *strOffsetsBase))
	case FormStrx3:
		v.SetString(r.strx(uint64(b.u16())|uint64(b.u8())<<16, *strOffsetsBase))
	case FormStrx4:
		v.SetString(r.strx(uint64(b.u32()), *strOffsetsBase))
	case FormUdata:
		v.SetUint(b.uleb())
	case FormSdata:
		v.SetSint(b.sleb())
	case FormFlag:
		v.SetUint(uint64(b.u8()))
	case FormFlagPresent:
		v.SetUint(1)
	case FormRef1:
		v.SetReference(uint64(u.offset) + uint64(b.u8()))
	case FormRef2:
		v.SetReference(uint64(u.offset) + uint64(b.u16()))
	case FormRef4:
		v.SetReference(uint64(u.offset) + uint64(b.u32()))
	case FormRef8:
		v.SetReference(uint64(u.offset) + b.u64())
	case FormRefUdata:
		v.SetReference(uint64(u.offset) + b.uleb())
	case FormRefAddr:
		v.SetReference(uint64(b.u32()))
	case FormRefSig8:
		v.SetUint(b.u64())
	case FormSecOffset:
		v.SetUint(uint64(b.u32()))
	case FormImplicitConst:
		v.SetSint(aa.implicit)
	case FormAddrx, FormLoclistx, FormRnglistx:
		v.SetUint(b.uleb())
	case FormAddrx1:
		v.SetUint(uint64(b.u8()))
	case FormAddrx2:
		v.SetUint(uint64(b.u16()))
	case FormAddrx3:
		v.SetUint(uint64(b.u16()) | uint64(b.u8())<<16)
	case FormAddrx4:
		v.SetUint(uint64(b.u32()))
	default:
		panic(&ParseError{Kind: fmt.Sprintf("unknown form %#x", uint32(form)), Offset: uint64(b.pos)})
	}

	if aa.at == AtStrOffsetsBase && v.Has(KindUint) {
		*strOffsetsBase = v.Uint()
	}
	return attr
}

// stringAt interns the NUL-terminated string at off in sec.
func (r *Reader) stringAt(sec []byte, off uint64) pool.String {
	if off >= uint64(len(sec)) {
		panic(&ParseError{Kind: "string offset past end of section", Offset: off})
	}
	s := sec[off:]
	if n := bytes.IndexByte(s, 0); n >= 0 {
		s = s[:n]
	}
	return pool.Empool(s)
}

// strx resolves an indexed string through __debug_str_offs.
func (r *Reader) strx(index, base uint64) pool.String {
	off := base + 4*index
	if off+4 > uint64(len(r.sections.StrOffsets)) {
		panic(&ParseError{Kind: "str index past end of __debug_str_offs", Offset: off})
	}
	return r.stringAt(r.sections.Str, uint64(r.layout.Uint32(r.sections.StrOffsets[off:])))
}

// FetchOne rematerializes the single DIE at the given __debug_info
// offset together with its full attribute sequence. Reference
// attributes resolve to the referenced entry's type string where
// possible. Used by report construction.
func (r *Reader) FetchOne(offset uint32) (d Die, seq AttributeSequence, err error) {
	units, err := r.scanUnits()
	if err != nil {
		return Die{}, nil, err
	}
	for _, u := range units {
		if int(offset) < u.headerEnd || int(offset) >= u.end {
			continue
		}
		defer recoverParse(u, &err)
		decls := r.parseAbbrev(u.abbrevOff)
		d, seq = r.fetchRaw(&u, decls, offset)
		for i := range seq {
			v := &seq[i].Value
			if !v.Has(KindReference) || v.Has(KindString) {
				continue
			}
			if s := r.fetchTypeString(&u, decls, uint32(v.Reference()), 0); !s.Empty() {
				v.SetString(s)
			}
		}
		return d, seq, nil
	}
	return Die{}, nil, &ParseError{Kind: "offset outside every unit", Offset: uint64(offset)}
}

func (r *Reader) fetchRaw(u *unit, decls map[uint64]*abbrevDecl, offset uint32) (Die, AttributeSequence) {
	b := &buf{b: r.sections.Info[:u.end], pos: int(offset), layout: r.layout}
	code := b.uleb()
	decl := decls[code]
	if decl == nil {
		panic(&ParseError{Kind: fmt.Sprintf("unknown abbreviation code %d", code), Offset: uint64(offset)})
	}
	strOffsetsBase := uint64(8)
	seq := make(AttributeSequence, 0, len(decl.attrs))
	for _, aa := range decl.attrs {
		seq = append(seq, r.readAttr(b, u, aa, &strOffsetsBase))
	}
	d := Die{
		Tag:             decl.tag,
		Arch:            r.arch,
		OFDIndex:        r.ofd,
		DebugInfoOffset: offset,
		HasChildren:     decl.hasChildren,
	}
	return d, seq
}

func (r *Reader) fetchTypeString(u *unit, decls map[uint64]*abbrevDecl, offset uint32, depth int) pool.String {
	if depth > 8 || int(offset) < u.headerEnd || int(offset) >= u.end {
		return pool.String{}
	}
	_, seq := r.fetchRaw(u, decls, offset)
	if s := seq.StringAt(AtName); !s.Empty() {
		return s
	}
	if a := seq.Get(AtType); a != nil && a.Value.Has(KindReference) {
		return r.fetchTypeString(u, decls, uint32(a.Value.Reference()), depth+1)
	}
	return pool.String{}
}
