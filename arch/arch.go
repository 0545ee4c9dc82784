// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch provides basic descriptions of the CPU architectures
// found in Mach-O images.
package arch

// Mach-O cputype constants, per <mach/machine.h>.
const (
	cpuArchABI64   = 0x01000000
	cpuArchABI6432 = 0x02000000

	CPUTypeX86      = 7
	CPUTypeX86_64   = CPUTypeX86 | cpuArchABI64
	CPUTypeARM      = 12
	CPUTypeARM64    = CPUTypeARM | cpuArchABI64
	CPUTypeARM64_32 = CPUTypeARM | cpuArchABI6432
)

// ABI64Bit reports whether cputype carries the 64-bit ABI flag.
func ABI64Bit(cputype uint32) bool {
	return cputype&cpuArchABI64 != 0
}

// An Arch identifies a CPU architecture.
type Arch uint8

const (
	Unknown Arch = iota
	X86
	X86_64
	ARM
	ARM64
	ARM64_32
)

// FromCPUType maps a Mach-O cputype word to an Arch. Unrecognized
// cputypes map to Unknown.
func FromCPUType(cputype uint32) Arch {
	switch cputype {
	case CPUTypeX86:
		return X86
	case CPUTypeX86_64:
		return X86_64
	case CPUTypeARM:
		return ARM
	case CPUTypeARM64:
		return ARM64
	case CPUTypeARM64_32:
		return ARM64_32
	}
	return Unknown
}

// String returns the conventional fat-slice name of a, e.g. "x86_64".
func (a Arch) String() string {
	switch a {
	case X86:
		return "x86"
	case X86_64:
		return "x86_64"
	case ARM:
		return "arm"
	case ARM64:
		return "arm64"
	case ARM64_32:
		return "arm64_32"
	}
	return "unknown"
}
