package linker

import (
	"debug/elf"
	"unsafe"

	"elflink/pkg/utils"
)

// sanitizeBinaryName implements spec.md §4.7's <san> transform: every
// non-alphanumeric byte of path becomes '_'.
func sanitizeBinaryName(path string) string {
	b := []byte(path)
	for i, c := range b {
		alnum := c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
		if !alnum {
			b[i] = '_'
		}
	}
	return string(b)
}

// synthesizeBinaryObject builds the minimal ET_REL ELF64-LE object spec.md
// §4.7 describes: one SHF_ALLOC .data section holding blob verbatim, plus
// _binary_<san>_{start,end,size}. Grounded on original_source's
// BinaryFile::createELF; that code emits the object directly into the
// in-memory linker's own section model, whereas this module re-ingests the
// synthesized bytes through the normal Object File Parser (spec.md §8's
// round-trip property), so the layout must be real ELF, not an internal
// shortcut.
func synthesizeBinaryObject(path string, blob []byte) []byte {
	san := sanitizeBinaryName(path)
	names := [3]string{"_binary_" + san + "_start", "_binary_" + san + "_end", "_binary_" + san + "_size"}

	strtab := []byte{0}
	var nameOff [3]uint32
	for i, n := range names {
		nameOff[i] = uint32(len(strtab))
		strtab = append(strtab, n...)
		strtab = append(strtab, 0)
	}

	shNames := [5]string{"", ".data", ".symtab", ".strtab", ".shstrtab"}
	shstrtab := []byte{}
	var shNameOff [5]uint32
	for i, n := range shNames {
		shNameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, n...)
		shstrtab = append(shstrtab, 0)
	}

	const ehdrSize = 64
	symSize := uint64(unsafe.Sizeof(elf.Sym64{}))
	shdrSize := uint64(unsafe.Sizeof(elf.Section64{}))

	off := uint64(ehdrSize)
	dataOff := off
	off += uint64(len(blob))
	for off%8 != 0 {
		off++
	}
	symtabOff := off
	off += symSize * 4
	strtabOff := off
	off += uint64(len(strtab))
	shstrtabOff := off
	off += uint64(len(shstrtab))
	for off%8 != 0 {
		off++
	}
	shoff := off

	buf := make([]byte, shoff+shdrSize*5)
	copy(buf[dataOff:], blob)
	copy(buf[strtabOff:], strtab)
	copy(buf[shstrtabOff:], shstrtab)

	writeSym := func(idx int, nameIdx uint32, value, size uint64, shndx uint16) {
		s := elf.Sym64{
			Name: nameIdx, Info: uint8(elf.STB_GLOBAL)<<4 | uint8(elf.STT_NOTYPE),
			Shndx: shndx, Value: value, Size: size,
		}
		utils.Write(buf[symtabOff+uint64(idx)*symSize:], s)
	}
	writeSym(0, 0, 0, 0, 0)
	writeSym(1, nameOff[0], 0, 0, 1)
	writeSym(2, nameOff[1], uint64(len(blob)), 0, 1)
	writeSym(3, nameOff[2], uint64(len(blob)), 0, uint16(elf.SHN_ABS))

	writeShdr := func(idx int, sh elf.Section64) {
		utils.Write(buf[shoff+uint64(idx)*shdrSize:], sh)
	}
	writeShdr(0, elf.Section64{})
	writeShdr(1, elf.Section64{
		Name: shNameOff[1], Type: uint32(elf.SHT_PROGBITS), Flags: uint64(elf.SHF_ALLOC),
		Off: dataOff, Size: uint64(len(blob)), Addralign: 8,
	})
	writeShdr(2, elf.Section64{
		Name: shNameOff[2], Type: uint32(elf.SHT_SYMTAB), Off: symtabOff, Size: symSize * 4,
		Link: 3, Info: 1, Addralign: 8, Entsize: symSize,
	})
	writeShdr(3, elf.Section64{
		Name: shNameOff[3], Type: uint32(elf.SHT_STRTAB), Off: strtabOff, Size: uint64(len(strtab)), Addralign: 1,
	})
	writeShdr(4, elf.Section64{
		Name: shNameOff[4], Type: uint32(elf.SHT_STRTAB), Off: shstrtabOff, Size: uint64(len(shstrtab)), Addralign: 1,
	})

	ehdr := elf.Header64{
		Ident:     [16]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)},
		Type:      uint16(elf.ET_REL),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    ehdrSize,
		Shentsize: uint16(shdrSize),
		Shnum:     5,
		Shstrndx:  4,
	}
	utils.Write(buf[0:], ehdr)
	return buf
}

// IngestBinaryBlob synthesizes the minimal object described above, adds it
// to the registry as a child of blob (so LIFO destruction tears it down
// first), and re-ingests it through ParseObjectFile — the "wrapper" in
// spec.md §4.7's name refers to this indirection, not a distinct in-memory
// representation.
func IngestBinaryBlob(ctx *Context, blob *File) (*ObjectFile, error) {
	contents := synthesizeBinaryObject(blob.Name, blob.Contents)
	synthetic := ctx.Registry.Add(&File{Name: blob.Name, Contents: contents, Parent: blob})
	return ParseObjectFile(ctx, synthetic)
}
