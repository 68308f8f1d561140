// Package symtab is the reference Symbol Table Facade spec.md §4.9 leaves
// external. Without an implementation, none of pkg/linker's Add* calls
// could be exercised end to end and the resolution discipline the spec
// only names (strong-over-weak, common merging, lazy-triggers-extraction)
// would have no home in this repository; see DESIGN.md for why the
// ordering below is this module's own decision, not extracted from
// original_source.
package symtab

import (
	"debug/elf"

	"elflink/pkg/linker"
)

// Table is a single process-wide name -> Symbol map, exactly the shared
// mutable state spec.md §5 assigns to "the Symbol Table Facade... its own
// discipline out of scope" — this is the in-scope discipline this module
// supplies so its own tests have something to resolve against.
type Table struct {
	ctx  *linker.Context
	syms map[string]*linker.Symbol
}

func New() *Table {
	return &Table{syms: make(map[string]*linker.Symbol)}
}

// Bind wires the Context this Table will use to trigger lazy extraction.
// Constructing a Context requires a SymbolTable and constructing a fully
// wired Table benefits from the Context it will resolve against, so the
// two are built separately and joined with Bind (cmd/rvld-ingest does
// this once, at startup).
func (t *Table) Bind(ctx *linker.Context) { t.ctx = ctx }

// Lookup is a plain accessor for tests and downstream consumers; it is not
// part of the linker.SymbolTable contract.
func (t *Table) Lookup(name string) (*linker.Symbol, bool) {
	s, ok := t.syms[name]
	return s, ok
}

func (t *Table) AddUndefined(name string, binding linker.Binding, visibility linker.Visibility, typ elf.SymType, canOmitFromDynSym bool, file *linker.File) *linker.Symbol {
	return t.resolve(&linker.Symbol{
		Name: name, Kind: linker.SymUndefined, Binding: binding, Visibility: visibility,
		Type: typ, File: file, CanOmitFromDynSym: canOmitFromDynSym,
	})
}

func (t *Table) AddCommon(name string, size, align uint64, binding linker.Binding, visibility linker.Visibility, typ elf.SymType, file *linker.File) *linker.Symbol {
	return t.resolve(&linker.Symbol{
		Name: name, Kind: linker.SymCommon, Binding: binding, Visibility: visibility,
		Type: typ, File: file, Size: size, Align: align,
	})
}

func (t *Table) AddRegular(name string, sym linker.Sym, section *linker.InputSection) *linker.Symbol {
	bind, _ := bindingOf(sym)
	return t.resolve(&linker.Symbol{
		Name: name, Kind: linker.SymDefinedRegular, Binding: bind,
		Visibility: visibilityOf(sym), Type: sym.Type(), Section: section, Value: sym.Value,
	})
}

func (t *Table) AddShared(file *linker.File, name string, sym linker.Sym, verdef *linker.VersionDef) *linker.Symbol {
	bind, _ := bindingOf(sym)
	return t.resolve(&linker.Symbol{
		Name: name, Kind: linker.SymShared, Binding: bind, Visibility: visibilityOf(sym),
		Type: sym.Type(), File: file, Verdef: verdef,
	})
}

func (t *Table) AddBitcode(name string, binding linker.Binding, visibility linker.Visibility, typ elf.SymType, canOmit bool, file *linker.File) *linker.Symbol {
	return t.resolve(&linker.Symbol{
		Name: name, Kind: linker.SymBitcode, Binding: binding, Visibility: visibility,
		Type: typ, File: file, CanOmitFromDynSym: canOmit,
	})
}

func (t *Table) AddLazyArchive(archive *linker.ArchiveFile, sym linker.ArchiveSymbol) *linker.Symbol {
	return t.resolve(&linker.Symbol{
		Name: sym.Name, Kind: linker.SymLazyArchive, Binding: linker.BindGlobal,
		File: archive.File, Archive: archive, ArchiveSym: sym,
	})
}

func (t *Table) AddLazyObject(name string, lazy *linker.LazyObjectFile) *linker.Symbol {
	return t.resolve(&linker.Symbol{
		Name: name, Kind: linker.SymLazyObject, Binding: linker.BindGlobal,
		File: lazy.File, LazyFile: lazy,
	})
}

func bindingOf(sym linker.Sym) (linker.Binding, bool) {
	switch sym.Binding() {
	case elf.STB_LOCAL:
		return linker.BindLocal, true
	case elf.STB_WEAK:
		return linker.BindWeak, true
	case linker.STBGNUUnique:
		return linker.BindUnique, true
	default:
		return linker.BindGlobal, true
	}
}

func visibilityOf(sym linker.Sym) linker.Visibility {
	switch sym.Other & 0x3 {
	case 1:
		return linker.VisInternal
	case 2:
		return linker.VisHidden
	case 3:
		return linker.VisProtected
	default:
		return linker.VisDefault
	}
}

// strength ranks resolution precedence: undefined < lazy < common < bitcode
// < shared < weak-defined < strong-defined. Grounded on the operation
// names spec.md §4.9 itself lists (addCommon distinct from addRegular
// distinct from addUndefined) and standard ELF/LLD linker convention;
// original_source's actual resolution bodies live in SymbolTable.cpp,
// which was not part of the retrieved source, so this ranking is this
// module's own decision (see DESIGN.md).
func strength(s *linker.Symbol) int {
	switch s.Kind {
	case linker.SymUndefined:
		return 0
	case linker.SymLazyArchive, linker.SymLazyObject:
		return 1
	case linker.SymCommon:
		return 2
	case linker.SymBitcode:
		return 3
	case linker.SymShared:
		return 4
	case linker.SymDefinedRegular:
		if s.Binding == linker.BindWeak {
			return 5
		}
		return 6
	default:
		return 0
	}
}

func isLazy(k linker.SymbolKind) bool {
	return k == linker.SymLazyArchive || k == linker.SymLazyObject
}

func (t *Table) resolve(cand *linker.Symbol) *linker.Symbol {
	existing, ok := t.syms[cand.Name]
	if !ok {
		t.syms[cand.Name] = cand
		return cand
	}

	if existing.Kind == linker.SymCommon && cand.Kind == linker.SymCommon {
		if cand.Size > existing.Size {
			existing.Size = cand.Size
		}
		if cand.Align > existing.Align {
			existing.Align = cand.Align
		}
		return existing
	}

	// Lazy-triggers-extraction (spec.md §9): a concrete reference or
	// definition arriving for a name currently bound to a lazy placeholder
	// forces the archive member / lazy object to materialize, which
	// re-enters this same Table and may republish a stronger definition
	// under cand.Name before this call returns.
	if isLazy(existing.Kind) && !isLazy(cand.Kind) {
		t.materialize(existing)
		if refreshed, ok := t.syms[cand.Name]; ok {
			existing = refreshed
		}
	}

	if strength(cand) > strength(existing) {
		t.syms[cand.Name] = cand
		return cand
	}
	return existing
}

func (t *Table) materialize(sym *linker.Symbol) {
	if t.ctx == nil {
		return
	}
	switch sym.Kind {
	case linker.SymLazyArchive:
		buf, name, err := sym.Archive.GetMember(sym.ArchiveSym)
		if err != nil {
			t.diagnose(sym.Archive.File, err)
			return
		}
		if buf == nil {
			return
		}
		member := t.ctx.Registry.Add(&linker.File{
			Name: name, Contents: buf, Parent: sym.Archive.File, ArchiveName: sym.Archive.File.Name,
		})
		if _, err := linker.ParseObjectFile(t.ctx, member); err != nil {
			t.diagnose(member, err)
		}
	case linker.SymLazyObject:
		if _, err := sym.LazyFile.Materialize(t.ctx); err != nil {
			t.diagnose(sym.LazyFile.File, err)
		}
	}
}

func (t *Table) diagnose(f *linker.File, err error) {
	t.ctx.Diagnostics = append(t.ctx.Diagnostics, linker.Diagnostic{File: linker.DisplayName(f), Message: err.Error()})
}
