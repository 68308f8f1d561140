package linker

import (
	"debug/elf"
	"encoding/binary"
	"strconv"
	"unsafe"

	"elflink/pkg/utils"
)

// fakeSymtab is a minimal SymbolTable stand-in for pkg/linker's own tests.
// Real resolution discipline (strong-over-weak, common merging,
// lazy-triggers-extraction) lives in pkg/symtab and is tested there; this
// fake only records what each parser published, so parsing/classification
// logic can be tested without depending on the facade's implementation.
type fakeSymtab struct {
	published []*Symbol
}

func (f *fakeSymtab) record(s *Symbol) *Symbol {
	f.published = append(f.published, s)
	return s
}

func (f *fakeSymtab) AddUndefined(name string, binding Binding, vis Visibility, typ elf.SymType, canOmit bool, file *File) *Symbol {
	return f.record(&Symbol{Name: name, Kind: SymUndefined, Binding: binding, Visibility: vis, Type: typ, File: file, CanOmitFromDynSym: canOmit})
}

func (f *fakeSymtab) AddCommon(name string, size, align uint64, binding Binding, vis Visibility, typ elf.SymType, file *File) *Symbol {
	return f.record(&Symbol{Name: name, Kind: SymCommon, Binding: binding, Visibility: vis, Type: typ, File: file, Size: size, Align: align})
}

func (f *fakeSymtab) AddRegular(name string, sym Sym, section *InputSection) *Symbol {
	bind, _ := bindingFromELF(sym.Binding())
	return f.record(&Symbol{Name: name, Kind: SymDefinedRegular, Binding: bind, Visibility: visibilityFromOther(sym.Other),
		Type: sym.Type(), Section: section, Value: sym.Value})
}

func (f *fakeSymtab) AddShared(file *File, name string, sym Sym, verdef *VersionDef) *Symbol {
	bind, _ := bindingFromELF(sym.Binding())
	return f.record(&Symbol{Name: name, Kind: SymShared, Binding: bind, Visibility: visibilityFromOther(sym.Other),
		Type: sym.Type(), File: file, Verdef: verdef})
}

func (f *fakeSymtab) AddBitcode(name string, binding Binding, vis Visibility, typ elf.SymType, canOmit bool, file *File) *Symbol {
	return f.record(&Symbol{Name: name, Kind: SymBitcode, Binding: binding, Visibility: vis, Type: typ, File: file, CanOmitFromDynSym: canOmit})
}

func (f *fakeSymtab) AddLazyArchive(archive *ArchiveFile, sym ArchiveSymbol) *Symbol {
	return f.record(&Symbol{Name: sym.Name, Kind: SymLazyArchive, Binding: BindGlobal, File: archive.File, Archive: archive, ArchiveSym: sym})
}

func (f *fakeSymtab) AddLazyObject(name string, lazy *LazyObjectFile) *Symbol {
	return f.record(&Symbol{Name: name, Kind: SymLazyObject, Binding: BindGlobal, File: lazy.File, LazyFile: lazy})
}

func newTestContext() (*Context, *fakeSymtab) {
	tab := &fakeSymtab{}
	return NewContext(tab, Config{}), tab
}

// testSym is the input to elfBuilder.addSymtab: a description of one
// Elf64_Sym entry in source terms instead of raw bytes.
type testSym struct {
	name        string
	bind        elf.SymBind
	typ         elf.SymType
	other       uint8
	shndx       uint16
	value, size uint64
}

func sym(name string, bind elf.SymBind, typ elf.SymType, shndx uint16, value, size uint64) testSym {
	return testSym{name: name, bind: bind, typ: typ, shndx: shndx, value: value, size: size}
}

// elfBuilder assembles a minimal, real ELF64-LE relocatable object byte by
// byte, the same way binaryfile.go's synthesizeBinaryObject does, so tests
// exercise ParseObjectFile/ParseSharedFile against actual wire bytes
// instead of hand-built Shdr/Sym values.
type elfBuilder struct {
	machine uint16
	etype   uint16
	shdrs   []elf.Section64
	names   []string
	datas   [][]byte
}

func newELFBuilder() *elfBuilder {
	b := &elfBuilder{machine: uint16(elf.EM_X86_64), etype: uint16(elf.ET_REL)}
	b.shdrs = append(b.shdrs, elf.Section64{})
	b.names = append(b.names, "")
	b.datas = append(b.datas, nil)
	return b
}

// add appends a section and returns its index (1-based; 0 is the mandatory
// null section).
func (b *elfBuilder) add(name string, sh elf.Section64, data []byte) uint32 {
	sh.Size = uint64(len(data))
	b.shdrs = append(b.shdrs, sh)
	b.names = append(b.names, name)
	b.datas = append(b.datas, data)
	return uint32(len(b.shdrs) - 1)
}

// addSymtab appends .strtab then .symtab and returns the symtab's index.
// syms[i] becomes symbol table entry i+1 (entry 0 is the mandatory
// all-zero STN_UNDEF row).
func (b *elfBuilder) addSymtab(syms []testSym, firstGlobal uint32) uint32 {
	strtab := []byte{0}
	nameOff := make([]uint32, len(syms))
	for i, s := range syms {
		nameOff[i] = uint32(len(strtab))
		strtab = append(strtab, s.name...)
		strtab = append(strtab, 0)
	}
	strtabIdx := b.add(".strtab", elf.Section64{Type: uint32(elf.SHT_STRTAB), Addralign: 1}, strtab)

	entsize := uint64(unsafe.Sizeof(elf.Sym64{}))
	buf := make([]byte, entsize)
	for i, s := range syms {
		rec := elf.Sym64{
			Name: nameOff[i], Info: uint8(s.bind)<<4 | uint8(s.typ), Other: s.other,
			Shndx: s.shndx, Value: s.value, Size: s.size,
		}
		tmp := make([]byte, entsize)
		utils.Write(tmp, rec)
		buf = append(buf, tmp...)
	}
	return b.add(".symtab", elf.Section64{
		Type: uint32(elf.SHT_SYMTAB), Link: strtabIdx, Info: firstGlobal, Entsize: entsize, Addralign: 8,
	}, buf)
}

// build lays out every section (final .shstrtab last, since its own name
// must appear inside the table it describes) and returns the complete
// object's bytes.
func (b *elfBuilder) build() []byte {
	b.names = append(b.names, ".shstrtab")
	b.datas = append(b.datas, nil)
	b.shdrs = append(b.shdrs, elf.Section64{Type: uint32(elf.SHT_STRTAB), Addralign: 1})
	shstrIdx := uint32(len(b.shdrs) - 1)

	shstrtab := []byte{0}
	nameOff := make([]uint32, len(b.names))
	for i, n := range b.names {
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, n...)
		shstrtab = append(shstrtab, 0)
	}
	b.datas[shstrIdx] = shstrtab
	b.shdrs[shstrIdx].Size = uint64(len(shstrtab))

	ehdrSize := uint64(unsafe.Sizeof(elf.Header64{}))
	shdrSize := uint64(unsafe.Sizeof(elf.Section64{}))

	off := ehdrSize
	for i := range b.shdrs {
		if i == 0 {
			continue
		}
		for off%8 != 0 {
			off++
		}
		b.shdrs[i].Off = off
		off += uint64(len(b.datas[i]))
	}
	for off%8 != 0 {
		off++
	}
	shoff := off

	buf := make([]byte, shoff+shdrSize*uint64(len(b.shdrs)))
	for i, data := range b.datas {
		if len(data) > 0 {
			copy(buf[b.shdrs[i].Off:], data)
		}
	}
	for i, sh := range b.shdrs {
		sh.Name = nameOff[i]
		utils.Write(buf[shoff+uint64(i)*shdrSize:], sh)
	}

	ehdr := elf.Header64{
		Ident:     [16]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)},
		Type:      b.etype,
		Machine:   b.machine,
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    uint16(ehdrSize),
		Shentsize: uint16(shdrSize),
		Shnum:     uint16(len(b.shdrs)),
		Shstrndx:  uint16(shstrIdx),
	}
	utils.Write(buf, ehdr)
	return buf
}

// groupWords encodes an SHT_GROUP body: GRP_COMDAT followed by member
// section indices, little-endian (spec.md §4.3).
func groupWords(members ...uint32) []byte {
	buf := make([]byte, 4*(1+len(members)))
	binary.LittleEndian.PutUint32(buf[0:4], grpComdat)
	for i, m := range members {
		binary.LittleEndian.PutUint32(buf[4+4*i:], m)
	}
	return buf
}

// arHeaderBytes builds a 60-byte Unix ar(5) member header: name blank-padded
// to 16 bytes, decimal size, and the "`\n" magic trailer.
func arHeaderBytes(name string, size int) []byte {
	h := make([]byte, arHdrSize)
	for i := range h {
		h[i] = ' '
	}
	copy(h[0:16], name)
	copy(h[48:58], []byte(strconv.Itoa(size)))
	h[58], h[59] = 0x60, '\n'
	return h
}
