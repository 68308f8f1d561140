package linker

import "debug/elf"

// SymbolTable is the narrow interface spec.md §4.9 names: the Symbol Table
// Facade the parsers publish into. Its resolution discipline (strong over
// weak, common merging, lazy-triggers-extraction) is explicitly out of
// scope for this module — only the contract lives here. pkg/symtab ships a
// reference implementation so this module's own tests can exercise the
// parsers end to end; see DESIGN.md.
type SymbolTable interface {
	AddUndefined(name string, binding Binding, visibility Visibility, typ elf.SymType, canOmitFromDynSym bool, file *File) *Symbol
	AddCommon(name string, size, align uint64, binding Binding, visibility Visibility, typ elf.SymType, file *File) *Symbol
	AddRegular(name string, sym Sym, section *InputSection) *Symbol
	AddShared(file *File, name string, sym Sym, verdef *VersionDef) *Symbol
	AddBitcode(name string, binding Binding, visibility Visibility, typ elf.SymType, canOmitFromDynSym bool, file *File) *Symbol
	AddLazyArchive(archive *ArchiveFile, sym ArchiveSymbol) *Symbol
	AddLazyObject(name string, lazy *LazyObjectFile) *Symbol
}
