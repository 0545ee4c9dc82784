// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dw reads the DWARF debug information emitted by Clang for
// Apple targets: abbreviation tables, compilation units, and the
// debugging information entries (DIEs) they contain.
package dw

import "fmt"

// A Tag is a DWARF DW_TAG code.
type Tag uint32

const (
	TagNone                   Tag = 0x00
	TagArrayType              Tag = 0x01
	TagClassType              Tag = 0x02
	TagEntryPoint             Tag = 0x03
	TagEnumerationType        Tag = 0x04
	TagFormalParameter        Tag = 0x05
	TagImportedDeclaration    Tag = 0x08
	TagLabel                  Tag = 0x0a
	TagLexicalBlock           Tag = 0x0b
	TagMember                 Tag = 0x0d
	TagPointerType            Tag = 0x0f
	TagReferenceType          Tag = 0x10
	TagCompileUnit            Tag = 0x11
	TagStringType             Tag = 0x12
	TagStructureType          Tag = 0x13
	TagSubroutineType         Tag = 0x15
	TagTypedef                Tag = 0x16
	TagUnionType              Tag = 0x17
	TagUnspecifiedParameters  Tag = 0x18
	TagVariant                Tag = 0x19
	TagCommonBlock            Tag = 0x1a
	TagCommonInclusion        Tag = 0x1b
	TagInheritance            Tag = 0x1c
	TagInlinedSubroutine      Tag = 0x1d
	TagModule                 Tag = 0x1e
	TagPtrToMemberType        Tag = 0x1f
	TagSetType                Tag = 0x20
	TagSubrangeType           Tag = 0x21
	TagWithStmt               Tag = 0x22
	TagAccessDeclaration      Tag = 0x23
	TagBaseType               Tag = 0x24
	TagCatchBlock             Tag = 0x25
	TagConstType              Tag = 0x26
	TagConstant               Tag = 0x27
	TagEnumerator             Tag = 0x28
	TagFileType               Tag = 0x29
	TagFriend                 Tag = 0x2a
	TagNamelist               Tag = 0x2b
	TagNamelistItem           Tag = 0x2c
	TagPackedType             Tag = 0x2d
	TagSubprogram             Tag = 0x2e
	TagTemplateTypeParameter  Tag = 0x2f
	TagTemplateValueParameter Tag = 0x30
	TagThrownType             Tag = 0x31
	TagTryBlock               Tag = 0x32
	TagVariantPart            Tag = 0x33
	TagVariable               Tag = 0x34
	TagVolatileType           Tag = 0x35
	TagDwarfProcedure         Tag = 0x36
	TagRestrictType           Tag = 0x37
	TagInterfaceType          Tag = 0x38
	TagNamespace              Tag = 0x39
	TagImportedModule         Tag = 0x3a
	TagUnspecifiedType        Tag = 0x3b
	TagPartialUnit            Tag = 0x3c
	TagImportedUnit           Tag = 0x3d
	TagCondition              Tag = 0x3f
	TagSharedType             Tag = 0x40
	TagTypeUnit               Tag = 0x41
	TagRvalueReferenceType    Tag = 0x42
	TagTemplateAlias          Tag = 0x43
	TagCoarrayType            Tag = 0x44
	TagGenericSubrange        Tag = 0x45
	TagDynamicType            Tag = 0x46
	TagAtomicType             Tag = 0x47
	TagCallSite               Tag = 0x48
	TagCallSiteParameter      Tag = 0x49
	TagSkeletonUnit           Tag = 0x4a
	TagImmutableType          Tag = 0x4b
)

var tagNames = map[Tag]string{
	TagArrayType:              "array_type",
	TagClassType:              "class_type",
	TagEnumerationType:        "enumeration_type",
	TagFormalParameter:        "formal_parameter",
	TagLexicalBlock:           "lexical_block",
	TagMember:                 "member",
	TagPointerType:            "pointer_type",
	TagReferenceType:          "reference_type",
	TagCompileUnit:            "compile_unit",
	TagStructureType:          "structure_type",
	TagSubroutineType:         "subroutine_type",
	TagTypedef:                "typedef",
	TagUnionType:              "union_type",
	TagInheritance:            "inheritance",
	TagInlinedSubroutine:      "inlined_subroutine",
	TagPtrToMemberType:        "ptr_to_member_type",
	TagSubrangeType:           "subrange_type",
	TagBaseType:               "base_type",
	TagConstType:              "const_type",
	TagConstant:               "constant",
	TagEnumerator:             "enumerator",
	TagSubprogram:             "subprogram",
	TagTemplateTypeParameter:  "template_type_parameter",
	TagTemplateValueParameter: "template_value_parameter",
	TagVariable:               "variable",
	TagVolatileType:           "volatile_type",
	TagRestrictType:           "restrict_type",
	TagNamespace:              "namespace",
	TagUnspecifiedType:        "unspecified_type",
	TagRvalueReferenceType:    "rvalue_reference_type",
	TagTemplateAlias:          "template_alias",
	TagCallSite:               "call_site",
	TagCallSiteParameter:      "call_site_parameter",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("tag_%#x", uint32(t))
}

// An At is a DWARF DW_AT attribute code.
type At uint32

const (
	AtNone               At = 0x00
	AtSibling            At = 0x01
	AtLocation           At = 0x02
	AtName               At = 0x03
	AtOrdering           At = 0x09
	AtByteSize           At = 0x0b
	AtBitOffset          At = 0x0c
	AtBitSize            At = 0x0d
	AtStmtList           At = 0x10
	AtLowPC              At = 0x11
	AtHighPC             At = 0x12
	AtLanguage           At = 0x13
	AtDiscr              At = 0x15
	AtDiscrValue         At = 0x16
	AtVisibility         At = 0x17
	AtImport             At = 0x18
	AtStringLength       At = 0x19
	AtCommonReference    At = 0x1a
	AtCompDir            At = 0x1b
	AtConstValue         At = 0x1c
	AtContainingType     At = 0x1d
	AtDefaultValue       At = 0x1e
	AtInline             At = 0x20
	AtIsOptional         At = 0x21
	AtLowerBound         At = 0x22
	AtProducer           At = 0x25
	AtPrototyped         At = 0x27
	AtReturnAddr         At = 0x2a
	AtStartScope         At = 0x2c
	AtBitStride          At = 0x2e
	AtUpperBound         At = 0x2f
	AtAbstractOrigin     At = 0x31
	AtAccessibility      At = 0x32
	AtAddressClass       At = 0x33
	AtArtificial         At = 0x34
	AtBaseTypes          At = 0x35
	AtCallingConvention  At = 0x36
	AtCount              At = 0x37
	AtDataMemberLocation At = 0x38
	AtDeclColumn         At = 0x39
	AtDeclFile           At = 0x3a
	AtDeclLine           At = 0x3b
	AtDeclaration        At = 0x3c
	AtDiscrList          At = 0x3d
	AtEncoding           At = 0x3e
	AtExternal           At = 0x3f
	AtFrameBase          At = 0x40
	AtFriend             At = 0x41
	AtIdentifierCase     At = 0x42
	AtMacroInfo          At = 0x43
	AtNamelistItem       At = 0x44
	AtPriority           At = 0x45
	AtSegment            At = 0x46
	AtSpecification      At = 0x47
	AtStaticLink         At = 0x48
	AtType               At = 0x49
	AtUseLocation        At = 0x4a
	AtVariableParameter  At = 0x4b
	AtVirtuality         At = 0x4c
	AtVtableElemLocation At = 0x4d
	AtAllocated          At = 0x4e
	AtAssociated         At = 0x4f
	AtDataLocation       At = 0x50
	AtByteStride         At = 0x51
	AtEntryPC            At = 0x52
	AtUseUTF8            At = 0x53
	AtExtension          At = 0x54
	AtRanges             At = 0x55
	AtTrampoline         At = 0x56
	AtCallColumn         At = 0x57
	AtCallFile           At = 0x58
	AtCallLine           At = 0x59
	AtDescription        At = 0x5a
	AtExplicit           At = 0x63
	AtObjectPointer      At = 0x64
	AtEnumClass          At = 0x6d
	AtLinkageName        At = 0x6e
	AtStrOffsetsBase     At = 0x72
	AtAddrBase           At = 0x73
	AtRnglistsBase       At = 0x74
	AtAlignment          At = 0x88
	AtExportSymbols      At = 0x89
	AtDeleted            At = 0x8a
	AtDefaulted          At = 0x8b
	AtLoclistsBase       At = 0x8c

	// Vendor extension ranges.
	atLoUser At = 0x2000
	atHiUser At = 0x3fff

	AtMIPSLinkageName At = 0x2007

	// GNU extensions occupy 0x2100 and up within the user range.
	atGNULo At = 0x2100
	atGNUHi At = 0x21ff

	// LLVM/Apple extensions.
	AtAPPLEOptimized     At = 0x3fe1
	AtAPPLEFlags         At = 0x3fe2
	AtAPPLEMajorRuntime  At = 0x3fe5
	AtAPPLERuntimeClass  At = 0x3fe6
	AtAPPLEOmitFramePtr  At = 0x3fe7
	AtAPPLEPropertyName  At = 0x3fe8
	AtAPPLESDK           At = 0x3fef
)

var atNames = map[At]string{
	AtSibling:            "sibling",
	AtLocation:           "location",
	AtName:               "name",
	AtByteSize:           "byte_size",
	AtBitOffset:          "bit_offset",
	AtBitSize:            "bit_size",
	AtStmtList:           "stmt_list",
	AtLowPC:              "low_pc",
	AtHighPC:             "high_pc",
	AtLanguage:           "language",
	AtCompDir:            "comp_dir",
	AtConstValue:         "const_value",
	AtContainingType:     "containing_type",
	AtInline:             "inline",
	AtProducer:           "producer",
	AtPrototyped:         "prototyped",
	AtAbstractOrigin:     "abstract_origin",
	AtAccessibility:      "accessibility",
	AtArtificial:         "artificial",
	AtCallingConvention:  "calling_convention",
	AtCount:              "count",
	AtDataMemberLocation: "data_member_location",
	AtDeclColumn:         "decl_column",
	AtDeclFile:           "decl_file",
	AtDeclLine:           "decl_line",
	AtDeclaration:        "declaration",
	AtEncoding:           "encoding",
	AtExternal:           "external",
	AtFrameBase:          "frame_base",
	AtSpecification:      "specification",
	AtType:               "type",
	AtVirtuality:         "virtuality",
	AtVtableElemLocation: "vtable_elem_location",
	AtEntryPC:            "entry_pc",
	AtRanges:             "ranges",
	AtCallColumn:         "call_column",
	AtCallFile:           "call_file",
	AtCallLine:           "call_line",
	AtEnumClass:          "enum_class",
	AtLinkageName:        "linkage_name",
	AtAlignment:          "alignment",
	AtUpperBound:         "upper_bound",
	AtLowerBound:         "lower_bound",
	AtObjectPointer:      "object_pointer",
	AtExplicit:           "explicit",
	AtNone:               "none",
}

func (a At) String() string {
	if s, ok := atNames[a]; ok {
		return s
	}
	return fmt.Sprintf("at_%#x", uint32(a))
}

// A Form is a DWARF DW_FORM value encoding.
type Form uint32

const (
	FormAddr          Form = 0x01
	FormBlock2        Form = 0x03
	FormBlock4        Form = 0x04
	FormData2         Form = 0x05
	FormData4         Form = 0x06
	FormData8         Form = 0x07
	FormString        Form = 0x08
	FormBlock         Form = 0x09
	FormBlock1        Form = 0x0a
	FormData1         Form = 0x0b
	FormFlag          Form = 0x0c
	FormSdata         Form = 0x0d
	FormStrp          Form = 0x0e
	FormUdata         Form = 0x0f
	FormRefAddr       Form = 0x10
	FormRef1          Form = 0x11
	FormRef2          Form = 0x12
	FormRef4          Form = 0x13
	FormRef8          Form = 0x14
	FormRefUdata      Form = 0x15
	FormIndirect      Form = 0x16
	FormSecOffset     Form = 0x17
	FormExprloc       Form = 0x18
	FormFlagPresent   Form = 0x19
	FormStrx          Form = 0x1a
	FormAddrx         Form = 0x1b
	FormRefSup4       Form = 0x1c
	FormStrpSup       Form = 0x1d
	FormData16        Form = 0x1e
	FormLineStrp      Form = 0x1f
	FormRefSig8       Form = 0x20
	FormImplicitConst Form = 0x21
	FormLoclistx      Form = 0x22
	FormRnglistx      Form = 0x23
	FormRefSup8       Form = 0x24
	FormStrx1         Form = 0x25
	FormStrx2         Form = 0x26
	FormStrx3         Form = 0x27
	FormStrx4         Form = 0x28
	FormAddrx1        Form = 0x29
	FormAddrx2        Form = 0x2a
	FormAddrx3        Form = 0x2b
	FormAddrx4        Form = 0x2c
)

// NonfatalAttribute reports whether a disagreement in at between two
// definitions of the same symbol is not an ODR violation. Source
// coordinates, producer strings, PC placement, and vendor bookkeeping
// all legitimately differ between translation units.
func NonfatalAttribute(at At) bool {
	switch at {
	case AtDeclFile, AtDeclLine, AtDeclColumn,
		AtCallFile, AtCallLine, AtCallColumn,
		AtSibling, AtSpecification, AtProducer,
		AtCompDir, AtStmtList, AtLanguage,
		AtLowPC, AtHighPC, AtEntryPC, AtRanges,
		AtFrameBase, AtLocation, AtReturnAddr,
		AtStrOffsetsBase, AtAddrBase, AtRnglistsBase, AtLoclistsBase,
		AtMacroInfo, AtPrototyped, AtExternal,
		AtAbstractOrigin, AtArtificial, AtName:
		return true
	}
	// The whole vendor range is nonfatal: GNU_*, MIPS_*, APPLE_*.
	return at >= atLoUser && at <= atHiUser
}
