package types

import (
	"errors"
	"path/filepath"
	"strings"
)

// Usr is a Universal Symbol Reference: an opaque parser-supplied identity
// that is stable for the same declaration across files, parses and time
type Usr string

// Valid reports whether the USR can be used as an identity
func (u Usr) Valid() bool {
	return u != ""
}

// SymbolKind tags which entity collection an id refers to
type SymbolKind uint8

const (
	KindInvalid SymbolKind = iota
	KindFile
	KindType
	KindFunc
	KindVar
)

func (k SymbolKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindType:
		return "type"
	case KindFunc:
		return "func"
	case KindVar:
		return "var"
	default:
		return "invalid"
	}
}

// ValidateKind checks that k names an entity collection
func (k SymbolKind) ValidateKind() error {
	switch k {
	case KindType, KindFunc, KindVar:
		return nil
	default:
		return errors.New("invalid symbol kind")
	}
}

// Role is a bitmask describing how a source range uses its target
type Role uint16

const RoleNone Role = 0

const (
	RoleDeclaration Role = 1 << iota
	RoleDefinition
	RoleReference
	RoleRead
	RoleWrite
	RoleCall
	RoleDynamic
	RoleAddress
	RoleImplicit
)

// Has reports whether all bits of other are set
func (r Role) Has(other Role) bool {
	return r&other == other
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	names := []struct {
		bit  Role
		name string
	}{
		{RoleDeclaration, "decl"},
		{RoleDefinition, "def"},
		{RoleReference, "ref"},
		{RoleRead, "read"},
		{RoleWrite, "write"},
		{RoleCall, "call"},
		{RoleDynamic, "dynamic"},
		{RoleAddress, "address"},
		{RoleImplicit, "implicit"},
	}
	var parts []string
	for _, n := range names {
		if r&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// StorageClass mirrors the C storage-class specifiers
type StorageClass uint8

const (
	StorageInvalid StorageClass = iota
	StorageNone
	StorageExtern
	StorageStatic
	StoragePrivateExtern
	StorageAuto
	StorageRegister
)

// LanguageID identifies the source language of a file
type LanguageID uint8

const (
	LanguageUnknown LanguageID = iota
	LanguageC
	LanguageCpp
	LanguageObjC
	LanguageObjCpp
)

func (l LanguageID) String() string {
	switch l {
	case LanguageC:
		return "c"
	case LanguageCpp:
		return "cpp"
	case LanguageObjC:
		return "objective-c"
	case LanguageObjCpp:
		return "objective-cpp"
	default:
		return "unknown"
	}
}

// SourceFileLanguage returns the language of a translation-unit source.
// Headers return LanguageUnknown: they are indexed through the file that
// includes them.
func SourceFileLanguage(path string) LanguageID {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".c":
		return LanguageC
	case ".cc", ".cpp", ".cxx", ".c++":
		return LanguageCpp
	case ".m":
		return LanguageObjC
	case ".mm":
		return LanguageObjCpp
	default:
		return LanguageUnknown
	}
}

// IsHeader reports whether path looks like a C/C++ header
func IsHeader(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".h", ".hh", ".hpp", ".hxx", ".h++", ".inc", ".inl", ".ipp":
		return true
	default:
		return false
	}
}
