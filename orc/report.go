// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package orc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ianlancetaylor/demangle"
	"github.com/sirupsen/logrus"

	"github.com/odrcheck/orc/dw"
	"github.com/odrcheck/orc/mach"
	"github.com/odrcheck/orc/pool"
)

// pathToSymbol lops the path prefix off. In most cases the path starts
// with "::[u]::"; a bare "::[u]" marks a top-level compilation unit
// with no symbol path.
func pathToSymbol(path pool.String) string {
	v := path.View()
	if len(v) < 7 {
		return ""
	}
	return string(v[7:])
}

// Demangle turns a mangled symbol into its human form. Unmangled input
// comes back unchanged.
func Demangle(symbol string) string {
	return demangle.Filter(symbol)
}

// typeEquivalent relaxes comparison for type attributes: two types
// agree when both resolve to equal references or both resolve to equal
// string hashes. Types are convoluted enough that the comparison lives
// here, in one place.
func typeEquivalent(x, y *dw.Attribute) bool {
	if x.Value.Has(dw.KindReference) && y.Value.Has(dw.KindReference) &&
		x.Value.Reference() == y.Value.Reference() {
		return true
	}
	if x.Value.Has(dw.KindString) && y.Value.Has(dw.KindString) &&
		x.Value.StringHash() == y.Value.StringHash() {
		return true
	}
	return false
}

// FindAttributeConflict returns the first fatal attribute on which x
// and y disagree: an attribute y lacks, an attribute whose values
// differ (after the type relaxation), or a fatal attribute present only
// in y. Returns dw.AtNone when the sequences are equivalent.
func FindAttributeConflict(x, y dw.AttributeSequence) dw.At {
	for i := range x {
		name := x[i].Name
		if dw.NonfatalAttribute(name) {
			continue
		}

		yattr := y.Get(name)
		if yattr == nil {
			return name
		}

		if name == dw.AtType && typeEquivalent(&x[i], yattr) {
			continue
		}
		if x[i].Value.Equal(&yattr.Value) {
			continue
		}
		return name
	}

	for i := range y {
		name := y[i].Name
		if dw.NonfatalAttribute(name) {
			continue
		}
		if !x.Has(name) {
			return name
		}
	}

	return dw.AtNone
}

// ConflictDetails is one unique definition of a conflicted symbol: the
// first DIE carrying that fatal-attribute hash and its refetched full
// attribute sequence.
type ConflictDetails struct {
	Die        *dw.Die
	Attributes dw.AttributeSequence
}

type conflictEntry struct {
	hash    uint64
	details ConflictDetails
}

// A Report describes one ODR violation: a symbol with at least two
// disagreeing definitions.
type Report struct {
	Symbol string

	head      *dw.Die
	conflicts []conflictEntry // unique definitions, ordered by hash
	name      dw.At
}

// NewReport builds the report for the conflicted chain rooted at head.
// Each unique definition (by fatal-attribute hash) appears exactly
// once; the category attribute is derived from the first and last
// definitions' full attribute sequences.
func NewReport(symbol string, head *dw.Die) Report {
	if !head.Conflict {
		panic("report built from an unconflicted chain")
	}

	r := Report{Symbol: symbol, head: head}
	seen := make(map[uint64]bool)
	for d := head; d != nil; d = d.Next {
		h := d.FatalAttributeHash
		if seen[h] {
			continue
		}
		seen[h] = true

		attrs, err := mach.FetchAttributes(d)
		if err != nil {
			logrus.WithError(err).Errorf("refetching attributes for %s", d.Path)
		}
		r.conflicts = append(r.conflicts, conflictEntry{h, ConflictDetails{d, attrs}})
	}
	if len(r.conflicts) < 2 {
		panic("conflicted chain with fewer than two unique definitions")
	}
	sort.Slice(r.conflicts, func(i, j int) bool { return r.conflicts[i].hash < r.conflicts[j].hash })

	front := r.conflicts[0].details
	back := r.conflicts[len(r.conflicts)-1].details
	r.name = FindAttributeConflict(front.Attributes, back.Attributes)
	return r
}

// Category is the report classification, "{tag}:{at}".
func (r *Report) Category() string {
	return r.conflicts[0].details.Die.Tag.String() + ":" + r.name.String()
}

// Head returns the first DIE of the conflicted chain, in ancestry
// order. The rest of the chain follows its Next links.
func (r *Report) Head() *dw.Die { return r.head }

// ConflictCount returns the number of unique definitions.
func (r *Report) ConflictCount() int { return len(r.conflicts) }

// Conflicts returns the unique definitions, ordered by hash.
func (r *Report) Conflicts() []ConflictDetails {
	out := make([]ConflictDetails, len(r.conflicts))
	for i, e := range r.conflicts {
		out[i] = e.details
	}
	return out
}

func problemPrefix() string {
	if Config.GracefulExit {
		return "warning"
	}
	return "error"
}

func (r *Report) String() string {
	var b strings.Builder

	symbol := r.Symbol
	if symbol == "" {
		symbol = "<unknown>"
	} else {
		symbol = Demangle(symbol)
	}
	fmt.Fprintf(&b, "%s: ODRV (%s); conflict in `%s`\n", problemPrefix(), r.Category(), symbol)

	for _, e := range r.conflicts {
		d := e.details.Die
		fmt.Fprintf(&b, "    %s (%s)\n", d, mach.AncestryOf(d.OFDIndex))
		for i := range e.details.Attributes {
			a := &e.details.Attributes[i]
			fmt.Fprintf(&b, "        %s: %s\n", a.Name, a.Value.String())
		}
	}
	b.WriteString("\n")
	return b.String()
}
