// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mach dispatches the binary containers a linker consumes:
// Mach-O images, universal (fat) binaries, and ar static archives. It
// descends recursively into containers, locates the __DWARF sections of
// every embedded object, and feeds them to the dw reader.
package mach

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/odrcheck/orc/arch"
	"github.com/odrcheck/orc/fio"
)

// Mach-O and fat magic numbers, per <mach-o/loader.h> and
// <mach-o/fat.h>, as read with host (little-endian) byte order.
const (
	mhMagic    = 0xfeedface
	mhCigam    = 0xcefaedfe
	mhMagic64  = 0xfeedfacf
	mhCigam64  = 0xcffaedfe
	fatMagic   = 0xcafebabe
	fatCigam   = 0xbebafeca
	fatMagic64 = 0xcafebabf
	fatCigam64 = 0xbfbafeca

	// The first four bytes of the "!<arch>\n" signature and their
	// byte reverse, read as a host u32.
	arMagic    = 0x72613c21 // "!<ar"
	arMagicRev = 0x213c6172 // "ra<!"
)

// A Format classifies a container at a cursor position.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatMacho
	FormatAr
	FormatFat
)

func (f Format) String() string {
	switch f {
	case FormatMacho:
		return "macho"
	case FormatAr:
		return "ar"
	case FormatFat:
		return "fat"
	}
	return "unknown"
}

// FileDetails describes the container found at Offset.
type FileDetails struct {
	Offset        int64
	Format        Format
	Arch          arch.Arch
	Is64Bit       bool
	NeedsByteswap bool
}

// DetectFile peeks the magic at the cursor and classifies the
// container. The cursor position is restored.
func DetectFile(r *fio.Reader) (FileDetails, error) {
	var d FileDetails
	err := r.TempSeek(r.Tell(), func() error {
		d.Offset = r.Tell()
		header := r.Uint32(arch.HostLayout)

		switch header {
		case mhMagic, mhCigam, mhMagic64, mhCigam64:
			d.Format = FormatMacho
		case arMagic, arMagicRev:
			d.Format = FormatAr
		case fatMagic, fatCigam, fatMagic64, fatCigam64:
			d.Format = FormatFat
		}

		d.Is64Bit = header == mhMagic64 || header == mhCigam64 ||
			header == fatMagic64 || header == fatCigam64

		// Host-relative: on a little-endian host, the byte-reversed
		// magic variants mean the file's fields are big endian.
		d.NeedsByteswap = header == mhCigam || header == mhCigam64 ||
			header == fatCigam || header == fatCigam64 ||
			header == arMagicRev

		if d.Format == FormatMacho {
			cputype := r.Uint32(arch.ForFile(d.NeedsByteswap))
			if arch.ABI64Bit(cputype) != d.Is64Bit {
				return errors.Errorf("cputype %#x disagrees with %d-bit magic", cputype, bits(d.Is64Bit))
			}
			d.Arch = arch.FromCPUType(cputype)
			if d.Arch == arch.Unknown {
				logrus.Warnf("unknown Mach-O cputype %#x", cputype)
			}
		}
		return nil
	})
	return d, err
}

func bits(is64 bool) int {
	if is64 {
		return 64
	}
	return 32
}
