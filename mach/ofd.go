// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mach

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/odrcheck/orc/arch"
	"github.com/odrcheck/orc/dw"
	"github.com/odrcheck/orc/fio"
)

// A descriptor records where an object's bytes came from: the
// filesystem path of its outermost container, the slice offset of the
// Mach-O inside it, its detection details, and the ancestry trail. It
// is everything needed to rematerialize a DIE's attributes later.
type descriptor struct {
	path     string
	start    int64
	ancestry dw.Ancestry
	details  FileDetails
}

// The object-file-descriptor registry. Append-only for the process
// lifetime; DIEs refer to entries by index.
var ofds struct {
	mu   sync.Mutex
	list []descriptor
}

func registerOFD(d descriptor) uint32 {
	ofds.mu.Lock()
	defer ofds.mu.Unlock()
	ofds.list = append(ofds.list, d)
	return uint32(len(ofds.list) - 1)
}

func getOFD(index uint32) *descriptor {
	ofds.mu.Lock()
	defer ofds.mu.Unlock()
	return &ofds.list[index]
}

// AncestryOf returns the containment path of the object that produced
// the DIE at the given descriptor index.
func AncestryOf(index uint32) *dw.Ancestry {
	return &getOFD(index).ancestry
}

// FetchAttributes rematerializes the full attribute sequence of d from
// the original __debug_info, remapping the owning file.
func FetchAttributes(d *dw.Die) (dw.AttributeSequence, error) {
	desc := getOFD(d.OFDIndex)

	r, err := fio.Open(desc.path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	r.Seek(desc.start, io.SeekStart)
	sections, table, err := machoMeta(r, desc.details)
	if err != nil {
		return nil, err
	}

	reader := dw.NewReader(sections, arch.ForFile(desc.details.NeedsByteswap), desc.details.Arch, d.OFDIndex, lookup(table))
	die, seq, err := reader.FetchOne(d.DebugInfoOffset)
	if err != nil {
		return nil, err
	}
	if die.Tag != d.Tag || die.HasChildren != d.HasChildren || die.Arch != d.Arch {
		return nil, errors.Errorf("refetched DIE at %#x does not match its registration", d.DebugInfoOffset)
	}
	return seq, nil
}
