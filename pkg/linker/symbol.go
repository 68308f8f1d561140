package linker

import "debug/elf"

// Binding generalizes ELF's STB_* values to the four bindings spec.md §3
// names (local/global/weak/unique — STB_GNU_UNIQUE folded in as Unique).
type Binding uint8

const (
	BindLocal Binding = iota
	BindGlobal
	BindWeak
	BindUnique
)

// STBGNUUnique is ELF's STB_GNU_UNIQUE, value 10 per the GNU extensions to
// the generic ABI. debug/elf does not define this constant, so it is
// supplied here for reuse by other packages that inspect elf.SymBind.
const STBGNUUnique elf.SymBind = 10

func bindingFromELF(b elf.SymBind) (Binding, bool) {
	switch b {
	case elf.STB_LOCAL:
		return BindLocal, true
	case elf.STB_GLOBAL:
		return BindGlobal, true
	case elf.STB_WEAK:
		return BindWeak, true
	case STBGNUUnique:
		return BindUnique, true
	default:
		return 0, false
	}
}

// Visibility mirrors st_other's two low bits (STV_DEFAULT..STV_PROTECTED).
type Visibility uint8

const (
	VisDefault Visibility = iota
	VisInternal
	VisHidden
	VisProtected
)

func visibilityFromOther(other uint8) Visibility {
	return Visibility(other & 0x3)
}

// SymbolKind discriminates the seven symbol-body variants spec.md §3
// names. Modeled as a single tagged struct rather than an interface
// hierarchy per the Design Notes §9 suggestion ("model as a tagged
// variant... pointer-identity tricks should not leak into the public
// model") — the same shape the teacher uses for its (much smaller) single
// Symbol type.
type SymbolKind uint8

const (
	SymUndefined SymbolKind = iota
	SymDefinedRegular
	SymCommon
	SymShared
	SymBitcode
	SymLazyArchive
	SymLazyObject
)

// Symbol is both a published, cross-file symbol-table entry (what
// SymbolTable implementations store and what the parsers get back from Add*
// calls) and a file-private body: an ObjectFile's local symbols are Symbol
// values it builds itself and never hands to the Symbol Table Facade.
type Symbol struct {
	Name       string
	Kind       SymbolKind
	Binding    Binding
	Visibility Visibility
	Type       elf.SymType
	File       *File

	// DefinedRegular
	Section *InputSection
	Value   uint64

	// Common
	Size  uint64
	Align uint64

	// Shared
	Verdef *VersionDef

	// LazyArchive
	Archive    *ArchiveFile
	ArchiveSym ArchiveSymbol

	// LazyObject
	LazyFile *LazyObjectFile

	// Bitcode / Undefined
	CanOmitFromDynSym bool
}
