// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symtab

import "testing"

func TestTable(t *testing.T) {
	tab := NewTable([]Sym{
		{"_Z3barv", 0x200},
		{"main", 0x100},
		{"_ZN3Foo3bazEv", 0x300},
	})

	if got, ok := tab.SymbolAt(0x100); !ok || got != "main" {
		t.Errorf("SymbolAt(0x100) = %q, %v", got, ok)
	}
	if got, ok := tab.SymbolAt(0x300); !ok || got != "_ZN3Foo3bazEv" {
		t.Errorf("SymbolAt(0x300) = %q, %v", got, ok)
	}
	if _, ok := tab.SymbolAt(0x101); ok {
		t.Error("SymbolAt(0x101) matched; want exact-address misses to fail")
	}

	if addr, ok := tab.Name("_Z3barv"); !ok || addr != 0x200 {
		t.Errorf("Name(_Z3barv) = %#x, %v", addr, ok)
	}
	if _, ok := tab.Name("nope"); ok {
		t.Error("Name(nope) matched")
	}
	if tab.Len() != 3 {
		t.Errorf("Len = %d, want 3", tab.Len())
	}
}
