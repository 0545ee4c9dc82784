// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mach

import (
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/odrcheck/orc/arch"
	"github.com/odrcheck/orc/dw"
	"github.com/odrcheck/orc/fio"
	"github.com/odrcheck/orc/symtab"
)

// Load commands of interest, per <mach-o/loader.h>.
const (
	lcSegment   = 0x01
	lcSymtab    = 0x02
	lcSegment64 = 0x19
)

// Stab entries carry debug bookkeeping, not definitions.
const stabTypeMask = 0xe0

// machoMeta walks the load commands of the Mach-O at d.Offset and
// returns the located __DWARF sections plus the LC_SYMTAB symbol
// table, if any. Section offsets are relative to the slice start, so
// everything works identically for thin files, fat slices, and ar
// members.
func machoMeta(r *fio.Reader, d FileDetails) (dw.Sections, *symtab.Table, error) {
	var sections dw.Sections
	l := arch.ForFile(d.NeedsByteswap)
	base := d.Offset

	r.Seek(base+4, io.SeekStart) // past magic
	r.Uint32(l)                  // cputype, already decoded by detection
	r.Uint32(l)                  // cpusubtype
	r.Uint32(l)                  // filetype
	ncmds := r.Uint32(l)
	r.Uint32(l) // sizeofcmds
	r.Uint32(l) // flags
	if d.Is64Bit {
		r.Uint32(l) // reserved
	}

	var symoff, nsyms, stroff, strsize uint32

	for i := uint32(0); i < ncmds; i++ {
		cmdStart := r.Tell()
		cmd := r.Uint32(l)
		cmdsize := r.Uint32(l)

		switch cmd {
		case lcSegment, lcSegment64:
			var seg [16]byte
			r.Read(seg[:])
			var nsects uint32
			if cmd == lcSegment64 {
				r.Uint64(l) // vmaddr
				r.Uint64(l) // vmsize
				r.Uint64(l) // fileoff
				r.Uint64(l) // filesize
				r.Uint32(l) // maxprot
				r.Uint32(l) // initprot
				nsects = r.Uint32(l)
				r.Uint32(l) // flags
			} else {
				r.Uint32(l)
				r.Uint32(l)
				r.Uint32(l)
				r.Uint32(l)
				r.Uint32(l)
				r.Uint32(l)
				nsects = r.Uint32(l)
				r.Uint32(l)
			}
			for s := uint32(0); s < nsects; s++ {
				var sectname [16]byte
				r.Read(sectname[:])
				var segname [16]byte
				r.Read(segname[:])
				var size uint64
				if cmd == lcSegment64 {
					r.Uint64(l) // addr
					size = r.Uint64(l)
				} else {
					r.Uint32(l)
					size = uint64(r.Uint32(l))
				}
				offset := r.Uint32(l)
				r.Uint32(l) // align
				r.Uint32(l) // reloff
				r.Uint32(l) // nreloc
				r.Uint32(l) // flags
				r.Uint32(l) // reserved1
				r.Uint32(l) // reserved2
				if cmd == lcSegment64 {
					r.Uint32(l) // reserved3
				}

				name := trimName(sectname[:])
				view := func() []byte {
					var b []byte
					r.TempSeek(base+int64(offset), func() error {
						b = r.Bytes(int(size))
						return nil
					})
					return b
				}
				switch name {
				case "__debug_info":
					sections.Info = view()
				case "__debug_abbrev":
					sections.Abbrev = view()
				case "__debug_str":
					sections.Str = view()
				case "__debug_str_offs": // "__debug_str_offsets", truncated to 16
					sections.StrOffsets = view()
				case "__debug_line_str":
					sections.LineStr = view()
				}
			}

		case lcSymtab:
			symoff = r.Uint32(l)
			nsyms = r.Uint32(l)
			stroff = r.Uint32(l)
			strsize = r.Uint32(l)
		}

		r.Seek(cmdStart+int64(cmdsize), io.SeekStart)
	}

	var table *symtab.Table
	if nsyms > 0 {
		syms, err := readNlist(r, l, d, base, symoff, nsyms, stroff, strsize)
		if err != nil {
			return sections, nil, err
		}
		table = symtab.NewTable(syms)
	}
	return sections, table, nil
}

// readNlist decodes the nlist entries of LC_SYMTAB into defined,
// non-stab symbols.
func readNlist(r *fio.Reader, l arch.Layout, d FileDetails, base int64, symoff, nsyms, stroff, strsize uint32) ([]symtab.Sym, error) {
	var strtab []byte
	err := r.TempSeek(base+int64(stroff), func() error {
		strtab = r.Bytes(int(strsize))
		return nil
	})
	if err != nil {
		return nil, err
	}

	syms := make([]symtab.Sym, 0, nsyms)
	r.Seek(base+int64(symoff), io.SeekStart)
	for i := uint32(0); i < nsyms; i++ {
		strx := r.Uint32(l)
		ntype := r.Byte()
		nsect := r.Byte()
		r.Uint16(l) // n_desc
		var value uint64
		if d.Is64Bit {
			value = r.Uint64(l)
		} else {
			value = uint64(r.Uint32(l))
		}

		if ntype&stabTypeMask != 0 || nsect == 0 {
			continue // stab debug entry or undefined symbol
		}
		if strx >= strsize {
			return nil, errors.Errorf("macho: symbol name offset %#x outside string table", strx)
		}
		name := cstringAt(strtab, strx)
		// nlist names carry the assembler-level underscore that the
		// DWARF linkage name doesn't.
		name = strings.TrimPrefix(name, "_")
		if name == "" {
			continue
		}
		syms = append(syms, symtab.Sym{Name: name, Addr: value})
	}
	return syms, nil
}

func trimName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func cstringAt(b []byte, off uint32) string {
	s := b[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}

// readMacho registers the object in the descriptor registry and hands
// its debug sections to the DWARF reader. Objects without __debug_info
// contribute nothing.
func readMacho(ancestry dw.Ancestry, r *fio.Reader, endPos int64, d FileDetails, cb Callbacks) error {
	sections, table, err := machoMeta(r, d)
	if err != nil {
		return err
	}

	ofd := registerOFD(descriptor{
		path:     r.Path(),
		start:    d.Offset,
		ancestry: ancestry,
		details:  d,
	})

	if len(sections.Info) == 0 || len(sections.Abbrev) == 0 {
		return nil
	}

	reader := dw.NewReader(sections, arch.ForFile(d.NeedsByteswap), d.Arch, ofd, lookup(table))
	return reader.Process(cb.RegisterDies, cb.SubmitWork)
}

// lookup adapts a possibly nil *symtab.Table to dw.SymbolLookup without
// producing a non-nil interface around a nil pointer.
func lookup(t *symtab.Table) dw.SymbolLookup {
	if t == nil {
		return nil
	}
	return t
}
