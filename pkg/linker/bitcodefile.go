package linker

import (
	"debug/elf"

	"elflink/pkg/bitcode"
)

// BitcodeFile is the parsed form of an LLVM bitcode module (spec.md §4.6).
// It never sees LLVM IR directly — everything comes through the injected
// bitcode.Reader.
type BitcodeFile struct {
	File    *File
	Class   Class
	Endian  Endian
	Machine uint16
	Symbols []*Symbol
}

// ParseBitcodeFile determines the module's target from its triple and
// publishes one symbol per bitcode.Symbol the reader exposes, honoring the
// dispatch order spec.md §4.6 gives (COMDAT drop first, then undefined,
// then common, then plain bitcode placeholder).
func ParseBitcodeFile(ctx *Context, f *File, reader bitcode.Reader) (*BitcodeFile, error) {
	module, err := reader.Read(f.Contents)
	if err != nil {
		return nil, Fatalf(f, "%v", err)
	}
	class, endian, machine, ok := TargetFromTriple(module.Triple)
	if !ok {
		return nil, Fatalf(f, "bitcode target triple %q has no recognized machine", module.Triple)
	}

	bf := &BitcodeFile{File: f, Class: class, Endian: endian, Machine: machine}

	// Comdat membership is resolved once per group name, not once per
	// symbol: two symbols in this same module sharing a group must see
	// the same kept/dropped verdict, but ComdatSet.Insert is insert-once.
	kept := make(map[string]bool)
	for _, sym := range module.Symbols {
		if sym.Comdat == "" {
			continue
		}
		if _, seen := kept[sym.Comdat]; !seen {
			kept[sym.Comdat] = ctx.Comdat.Insert(sym.Comdat)
		}
	}

	bf.Symbols = make([]*Symbol, 0, len(module.Symbols))
	for _, sym := range module.Symbols {
		bf.Symbols = append(bf.Symbols, bf.publish(ctx, sym, kept))
	}
	return bf, nil
}

func (bf *BitcodeFile) publish(ctx *Context, sym bitcode.Symbol, kept map[string]bool) *Symbol {
	bind := BindGlobal
	if sym.Weak {
		bind = BindWeak
	}

	// COMDAT drop dominates every other flag, including common (spec.md
	// §8 scenario 6).
	if sym.Comdat != "" && !kept[sym.Comdat] {
		return ctx.Symtab.AddUndefined(sym.Name, bind, VisDefault, elf.STT_NOTYPE, false, bf.File)
	}
	if sym.Undefined {
		return ctx.Symtab.AddUndefined(sym.Name, bind, VisDefault, elf.STT_NOTYPE, false, bf.File)
	}
	if sym.Common {
		return ctx.Symtab.AddCommon(sym.Name, sym.CommonSize, sym.CommonAlign, bind, VisDefault, elf.STT_OBJECT, bf.File)
	}
	return ctx.Symtab.AddBitcode(sym.Name, bind, VisDefault, elf.STT_NOTYPE, false, bf.File)
}
