// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package orc

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/odrcheck/orc/internal/fixture"
)

var intMember = fixture.StructSpec{
	CUName:     "a.cpp",
	StructName: "S",
	StructSize: 4,
	MemberName: "x",
	BaseName:   "int",
	BaseSize:   4,
	DeclLine:   1,
}

// longMember conflicts with intMember in both the struct's byte size
// and the member's type. The longer CU name shifts the DIE offsets so
// type references don't coincide by accident.
var longMember = fixture.StructSpec{
	CUName:     "some/longer/path/b.cpp",
	StructName: "S",
	StructSize: 8,
	MemberName: "x",
	BaseName:   "long",
	BaseSize:   8,
	DeclLine:   1,
}

type input struct {
	name string
	data []byte
}

func processInputs(t *testing.T, inputs ...input) []Report {
	t.Helper()
	Reset()
	dir := t.TempDir()
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		paths[i] = filepath.Join(dir, in.name)
		if err := os.WriteFile(paths[i], in.data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return Process(paths)
}

func TestOneObjectNoConflict(t *testing.T) {
	reports := processInputs(t, input{"a.o", fixture.StructObject(intMember)})
	if len(reports) != 0 {
		t.Fatalf("got %d reports, want 0", len(reports))
	}
	if Globals.UniqueSymbolCount.Load() == 0 {
		t.Error("no symbols registered")
	}
}

func TestTwoObjectsSameStruct(t *testing.T) {
	b := intMember
	b.CUName = "some/longer/path/b.cpp"
	b.DeclLine = 7
	reports := processInputs(t,
		input{"a.o", fixture.StructObject(intMember)},
		input{"b.o", fixture.StructObject(b)},
	)
	if len(reports) != 0 {
		t.Fatalf("got %d reports, want 0 for identical definitions", len(reports))
	}
}

func TestTwoObjectsMemberDisagreement(t *testing.T) {
	reports := processInputs(t,
		input{"a.o", fixture.StructObject(intMember)},
		input{"b.o", fixture.StructObject(longMember)},
	)
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2 (struct size and member type)", len(reports))
	}

	// Reports are sorted by symbol.
	if reports[0].Symbol != "S" || reports[1].Symbol != "S::x" {
		t.Fatalf("symbols = %q, %q", reports[0].Symbol, reports[1].Symbol)
	}
	if got := reports[0].Category(); got != "structure_type:byte_size" {
		t.Errorf("struct category = %q", got)
	}
	if got := reports[1].Category(); got != "member:type" {
		t.Errorf("member category = %q", got)
	}
	for _, r := range reports {
		if r.ConflictCount() != 2 {
			t.Errorf("%s: conflict map size = %d, want 2", r.Symbol, r.ConflictCount())
		}
	}
}

func TestThreeObjectsTwoAgree(t *testing.T) {
	c := intMember
	c.CUName = "an/even/longer/path/to/c.cpp"
	c.StructSize = 8 // same member, bigger struct
	reports := processInputs(t,
		input{"a.o", fixture.StructObject(intMember)},
		input{"b.o", fixture.StructObject(intMember)},
		input{"c.o", fixture.StructObject(c)},
	)
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	r := &reports[0]
	if r.Symbol != "S" || r.ConflictCount() != 2 {
		t.Errorf("report = %s, conflicts = %d", r.Symbol, r.ConflictCount())
	}

	// The chain carries all three definitions.
	n := 0
	for d := r.Head(); d != nil; d = d.Next {
		n++
	}
	if n != 3 {
		t.Errorf("chain length = %d, want 3", n)
	}
}

func TestNonfatalDisagreement(t *testing.T) {
	b := intMember
	b.CUName = "a/very/different/path/b.cpp"
	b.DeclLine = 99
	reports := processInputs(t,
		input{"a.o", fixture.StructObject(intMember)},
		input{"b.o", fixture.StructObject(b)},
	)
	if len(reports) != 0 {
		t.Fatalf("got %d reports, want 0 for decl-coordinate differences", len(reports))
	}
}

func TestFatArchive(t *testing.T) {
	obj := fixture.StructObject(intMember)
	reports := processInputs(t, input{"universal", fixture.Fat(obj, obj)})
	if len(reports) != 0 {
		t.Fatalf("got %d reports, want 0 for identical slices", len(reports))
	}
}

func TestArchiveConflict(t *testing.T) {
	archive := fixture.Ar(
		fixture.Member{Name: "a.o", Body: fixture.StructObject(intMember)},
		fixture.Member{Name: "b.o", Body: fixture.StructObject(longMember)},
	)
	reports := processInputs(t, input{"libfoo.a", archive})
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}
	if Globals.ODRVCount.Load() != 2 {
		t.Errorf("ODRV count = %d, want 2", Globals.ODRVCount.Load())
	}
}

func TestSequentialMode(t *testing.T) {
	defer func() { Config.Parallel = true }()
	Config.Parallel = false

	reports := processInputs(t,
		input{"a.o", fixture.StructObject(intMember)},
		input{"b.o", fixture.StructObject(longMember)},
	)
	if len(reports) != 2 {
		t.Fatalf("inline mode: got %d reports, want 2", len(reports))
	}
}

func TestMissingInput(t *testing.T) {
	Reset()
	reports := Process([]string{filepath.Join(t.TempDir(), "missing.o")})
	if len(reports) != 0 {
		t.Fatal("reports from a missing file")
	}
	if Globals.FatalErrorCount.Load() == 0 {
		t.Error("missing input did not record a fatal error")
	}
}

func TestFilterReport(t *testing.T) {
	defer func() { Config = Settings{Parallel: true} }()

	reports := processInputs(t,
		input{"a.o", fixture.StructObject(intMember)},
		input{"b.o", fixture.StructObject(longMember)},
	)
	if len(reports) != 2 {
		t.Fatal("setup failed")
	}
	structReport := &reports[0]

	Config.ViolationIgnore = []string{"structure_type:byte_size"}
	if FilterReport(structReport) {
		t.Error("ignored category still reported")
	}
	Config.ViolationIgnore = nil

	Config.ViolationReport = []string{"member:type"}
	if FilterReport(structReport) {
		t.Error("category outside the report list still reported")
	}
	if !FilterReport(&reports[1]) {
		t.Error("listed category filtered out")
	}
}

func TestWorkCounter(t *testing.T) {
	var ran atomic.Int64
	const outer = 50

	for i := 0; i < outer; i++ {
		DoWork(func() {
			ran.Add(1)
			// Tasks transitively submit more work while wait is
			// pending.
			DoWork(func() { ran.Add(1) })
		})
	}
	work.wait()

	if got := ran.Load(); got != 2*outer {
		t.Errorf("ran %d tasks, want %d", got, 2*outer)
	}
}

func TestDemangle(t *testing.T) {
	if got := Demangle("S"); got != "S" {
		t.Errorf("Demangle(S) = %q", got)
	}
	if got := Demangle("_ZN3Foo3barEv"); got != "Foo::bar()" {
		t.Errorf("Demangle(_ZN3Foo3barEv) = %q", got)
	}
}

func TestReportRendering(t *testing.T) {
	reports := processInputs(t,
		input{"a.o", fixture.StructObject(intMember)},
		input{"b.o", fixture.StructObject(longMember)},
	)
	if len(reports) != 2 {
		t.Fatal("setup failed")
	}

	out := reports[0].String()
	for _, want := range []string{"error: ODRV (structure_type:byte_size)", "conflict in `S`", "byte_size: 4", "byte_size: 8"} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q:\n%s", want, out)
		}
	}

	Config.GracefulExit = true
	defer func() { Config.GracefulExit = false }()
	if !strings.Contains(reports[0].String(), "warning: ODRV") {
		t.Error("graceful mode did not downgrade the prefix")
	}
}
