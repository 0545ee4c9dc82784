// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symtab implements symbol lookup by name and address over the
// nlist entries of a Mach-O LC_SYMTAB load command.
package symtab

import "sort"

// A Sym is one defined symbol: its mangled name (without the Mach-O
// leading underscore) and its address within the image.
type Sym struct {
	Name string
	Addr uint64
}

// Table facilitates fast symbol lookup by name and address.
type Table struct {
	// byAddr holds the symbols ordered by address.
	byAddr []Sym

	// byName indexes symbol addresses by name. If the "same" symbol
	// appears multiple times, the first wins.
	byName map[string]uint64
}

// NewTable creates a table over syms. The slice is retained and
// reordered.
func NewTable(syms []Sym) *Table {
	sort.Slice(syms, func(i, j int) bool { return syms[i].Addr < syms[j].Addr })
	byName := make(map[string]uint64, len(syms))
	for _, s := range syms {
		if _, ok := byName[s.Name]; !ok {
			byName[s.Name] = s.Addr
		}
	}
	return &Table{byAddr: syms, byName: byName}
}

// SymbolAt returns the name of the symbol defined exactly at addr.
// DWARF subprogram entries carry the precise low PC of their symbol, so
// an exact match is the right query.
func (t *Table) SymbolAt(addr uint64) (string, bool) {
	i := sort.Search(len(t.byAddr), func(i int) bool { return t.byAddr[i].Addr >= addr })
	if i < len(t.byAddr) && t.byAddr[i].Addr == addr {
		return t.byAddr[i].Name, true
	}
	return "", false
}

// Name returns the address of the named symbol.
func (t *Table) Name(name string) (uint64, bool) {
	addr, ok := t.byName[name]
	return addr, ok
}

// Len returns the number of symbols in the table.
func (t *Table) Len() int { return len(t.byAddr) }
