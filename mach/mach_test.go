// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mach

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odrcheck/orc/arch"
	"github.com/odrcheck/orc/dw"
	"github.com/odrcheck/orc/fio"
	"github.com/odrcheck/orc/internal/fixture"
)

var testSpec = fixture.StructSpec{
	CUName:     "a.cpp",
	StructName: "S",
	StructSize: 4,
	MemberName: "x",
	BaseName:   "int",
	BaseSize:   4,
	DeclLine:   1,
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func openTemp(t *testing.T, name string, data []byte) *fio.Reader {
	t.Helper()
	r, err := fio.Open(writeTemp(t, name, data))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// parseAll runs ParseFile over data with inline execution, returning
// every registered batch.
func parseAll(t *testing.T, name string, data []byte) [][]dw.Die {
	t.Helper()
	r := openTemp(t, name, data)
	var batches [][]dw.Die
	cb := Callbacks{
		RegisterDies: func(batch []dw.Die) { batches = append(batches, batch) },
		SubmitWork:   func(fn func()) { fn() },
	}
	if err := ParseFile(r.Path(), dw.Ancestry{}, r, r.Size(), cb); err != nil {
		t.Fatal(err)
	}
	return batches
}

func TestDetectFile(t *testing.T) {
	obj := fixture.StructObject(testSpec)

	r := openTemp(t, "a.o", obj)
	d, err := DetectFile(r)
	if err != nil {
		t.Fatal(err)
	}
	if d.Format != FormatMacho || !d.Is64Bit || d.NeedsByteswap || d.Arch != arch.X86_64 || d.Offset != 0 {
		t.Errorf("macho detection = %+v", d)
	}
	if r.Tell() != 0 {
		t.Error("detection moved the cursor")
	}

	r = openTemp(t, "fat", fixture.Fat(obj))
	if d, _ = DetectFile(r); d.Format != FormatFat || !d.NeedsByteswap {
		t.Errorf("fat detection = %+v", d)
	}

	r = openTemp(t, "lib.a", fixture.Ar(fixture.Member{Name: "a.o", Body: obj}))
	if d, _ = DetectFile(r); d.Format != FormatAr || d.NeedsByteswap {
		t.Errorf("ar detection = %+v", d)
	}

	r = openTemp(t, "junk", []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if d, _ = DetectFile(r); d.Format != FormatUnknown {
		t.Errorf("junk detection = %+v", d)
	}
}

func findByPath(batches [][]dw.Die, path string) *dw.Die {
	for _, b := range batches {
		for i := range b {
			if b[i].Path.String() == path {
				return &b[i]
			}
		}
	}
	return nil
}

func TestParseMachO(t *testing.T) {
	batches := parseAll(t, "a.o", fixture.StructObject(testSpec))
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}

	s := findByPath(batches, "::[u]::S")
	if s == nil {
		t.Fatal("struct S not materialized")
	}
	if s.Arch != arch.X86_64 {
		t.Errorf("arch = %v, want x86_64", s.Arch)
	}

	anc := AncestryOf(s.OFDIndex)
	if anc.Len() != 1 {
		t.Fatalf("ancestry %s, want a single root entry", anc)
	}
	if filepath.Base(anc.Back().String()) != "a.o" {
		t.Errorf("ancestry back = %s", anc.Back())
	}
}

func TestParseAr(t *testing.T) {
	obj := fixture.StructObject(testSpec)
	oddSpec := testSpec
	oddSpec.CUName = "bb.cpp" // different length perturbs member sizes
	odd := fixture.StructObject(oddSpec)

	archive := fixture.Ar(
		fixture.Member{Name: "__.SYMDEF SORTED", Body: []byte{0xde, 0xad}},
		fixture.Member{Name: "a.o", Body: obj},
		fixture.Member{Name: "a_member_name_longer_than_sixteen.o", Body: odd, ExtendedName: true},
	)

	batches := parseAll(t, "libfoo.a", archive)
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2 (symbol table member skipped)", len(batches))
	}

	s := findByPath(batches[:1], "::[u]::S")
	if s == nil {
		t.Fatal("struct S not materialized from first member")
	}
	anc := AncestryOf(s.OFDIndex)
	if anc.Len() != 2 || anc.Back().String() != "a.o" {
		t.Errorf("first member ancestry = %s", anc)
	}

	s2 := findByPath(batches[1:], "::[u]::S")
	if s2 == nil {
		t.Fatal("struct S not materialized from extended-name member")
	}
	anc2 := AncestryOf(s2.OFDIndex)
	if anc2.Back().String() != "a_member_name_longer_than_sixteen.o" {
		t.Errorf("extended-name ancestry back = %s", anc2.Back())
	}
}

func TestParseArOddSizedMember(t *testing.T) {
	obj := fixture.StructObject(testSpec)
	if len(obj)%2 == 0 {
		obj = append(obj, 0) // force an odd body so the pad byte matters
	}
	archive := fixture.Ar(
		fixture.Member{Name: "a.o", Body: obj},
		fixture.Member{Name: "b.o", Body: fixture.StructObject(testSpec)},
	)
	batches := parseAll(t, "libodd.a", archive)
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2; alignment byte not skipped?", len(batches))
	}
}

func TestParseFat(t *testing.T) {
	obj := fixture.StructObject(testSpec)
	batches := parseAll(t, "universal", fixture.Fat(obj, obj))
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want one per slice", len(batches))
	}

	s := findByPath(batches, "::[u]::S")
	if s == nil {
		t.Fatal("struct S not materialized from fat slice")
	}
	anc := AncestryOf(s.OFDIndex)
	if anc.Len() != 2 || anc.Back().String() != "x86_64" {
		t.Errorf("fat slice ancestry = %s, want arch-named ancestor", anc)
	}
}

// An ar with a single member parses identically to the member alone,
// modulo the ancestry prefix.
func TestArSingleMemberMatchesThin(t *testing.T) {
	obj := fixture.StructObject(testSpec)
	thin := parseAll(t, "a.o", obj)
	wrapped := parseAll(t, "libone.a", fixture.Ar(fixture.Member{Name: "a.o", Body: obj}))

	if len(thin) != 1 || len(wrapped) != 1 || len(thin[0]) != len(wrapped[0]) {
		t.Fatalf("batch shapes differ: %d/%d", len(thin[0]), len(wrapped[0]))
	}
	for i := range thin[0] {
		a, b := &thin[0][i], &wrapped[0][i]
		if a.Path != b.Path || a.Hash != b.Hash || a.FatalAttributeHash != b.FatalAttributeHash ||
			a.Tag != b.Tag || a.Skippable != b.Skippable {
			t.Errorf("die %d differs: %v vs %v", i, a, b)
		}
	}
}

func TestFetchAttributes(t *testing.T) {
	batches := parseAll(t, "a.o", fixture.StructObject(testSpec))
	s := findByPath(batches, "::[u]::S")
	if s == nil {
		t.Fatal("struct S not materialized")
	}

	seq, err := FetchAttributes(s)
	if err != nil {
		t.Fatal(err)
	}
	if got := seq.StringAt(dw.AtName).String(); got != "S" {
		t.Errorf("refetched name = %q, want S", got)
	}
	if got := seq.UintAt(dw.AtByteSize); got != 4 {
		t.Errorf("refetched byte_size = %d, want 4", got)
	}
}
