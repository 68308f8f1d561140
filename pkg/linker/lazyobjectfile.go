package linker

import (
	"debug/elf"

	"elflink/pkg/bitcode"
)

type lazyState uint8

const (
	lazyUnseen lazyState = iota
	lazyGone
)

// LazyObjectFile is a file whose symbols are announced without a full
// parse (spec.md §4.8): "like an archive member that is its own file."
type LazyObjectFile struct {
	File   *File
	Reader bitcode.Reader
	state  lazyState
}

// ParseLazyObjectFile runs symbol discovery only — the lightweight
// SHT_SYMTAB scan for ELF, or the bitcode reader for bitcode — and
// publishes one LazyObject symbol per discovered name.
func ParseLazyObjectFile(ctx *Context, f *File, reader bitcode.Reader) (*LazyObjectFile, error) {
	names, err := discoverLazySymbols(f, reader)
	if err != nil {
		return nil, err
	}
	lf := &LazyObjectFile{File: f, Reader: reader}
	for _, name := range names {
		ctx.Symtab.AddLazyObject(name, lf)
	}
	return lf, nil
}

func discoverLazySymbols(f *File, reader bitcode.Reader) ([]string, error) {
	if IsBitcode(f.Contents) {
		if reader == nil {
			return nil, Fatalf(f, "bitcode lazy object requires a bitcode reader")
		}
		module, err := reader.Read(f.Contents)
		if err != nil {
			return nil, Fatalf(f, "%v", err)
		}
		names := make([]string, 0, len(module.Symbols))
		for _, s := range module.Symbols {
			if !s.Undefined {
				names = append(names, s.Name)
			}
		}
		return names, nil
	}

	class, endian, err := DetectClassEndian(f.Contents)
	if err != nil {
		return nil, Fatalf(f, "%v", err)
	}
	dec := NewDecoder(f.Contents, class, endian)
	ehdr, err := dec.Ehdr()
	if err != nil {
		return nil, Fatalf(f, "%v", err)
	}
	shdrs, err := dec.Shdrs(ehdr)
	if err != nil {
		return nil, Fatalf(f, "%v", err)
	}

	var symtabShdr Shdr
	found := false
	for _, sh := range shdrs {
		if elf.SectionType(sh.Type) == elf.SHT_SYMTAB {
			symtabShdr = sh
			found = true
			break
		}
	}
	if !found {
		return nil, nil
	}

	syms, err := dec.Syms(symtabShdr)
	if err != nil {
		return nil, Fatalf(f, "%v", err)
	}
	if int(symtabShdr.Link) >= len(shdrs) {
		return nil, Fatalf(f, "invalid sh_link on SHT_SYMTAB")
	}
	strtab, err := dec.Bytes(shdrs[symtabShdr.Link])
	if err != nil {
		return nil, Fatalf(f, "%v", err)
	}

	var names []string
	for _, sym := range syms {
		bind, ok := bindingFromELF(sym.Binding())
		if !ok || bind == BindLocal || sym.Shndx == shnUndef {
			continue
		}
		name, err := dec.StringAt(strtab, sym.Name)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// LazyMaterialization is whichever real parse Materialize produced: exactly
// one of Object or Bitcode is set.
type LazyMaterialization struct {
	Object  *ObjectFile
	Bitcode *BitcodeFile
}

// Materialize is the "Unseen -> InFlight -> Gone" state machine spec.md §9
// names, collapsed to two states since a lazy object has nothing left to do
// between "requested" and "done": the first call runs the real parser, and
// every later call returns (nil, nil), the same at-most-once contract
// ArchiveFile.GetMember gives archive members.
func (lf *LazyObjectFile) Materialize(ctx *Context) (*LazyMaterialization, error) {
	if lf.state == lazyGone {
		return nil, nil
	}
	lf.state = lazyGone

	if IsBitcode(lf.File.Contents) {
		bf, err := ParseBitcodeFile(ctx, lf.File, lf.Reader)
		if err != nil {
			return nil, err
		}
		return &LazyMaterialization{Bitcode: bf}, nil
	}
	obj, err := ParseObjectFile(ctx, lf.File)
	if err != nil {
		return nil, err
	}
	return &LazyMaterialization{Object: obj}, nil
}
