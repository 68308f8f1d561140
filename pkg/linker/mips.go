package linker

const (
	shtMipsRegInfo  = 0x70000006
	shtMipsOptions  = 0x7000000d
	shtMipsAbiFlags = 0x7000002a

	odkRegInfo = 2
)

// mipsSectionKind reports the SectionKind a MIPS-specific section type maps
// to, or false for anything else. spec.md §4.3 point 2 calls these out by
// name; original_source's InputFiles.cpp special-cases the same three
// section types when computing a MIPS object's GP0 value.
func mipsSectionKind(shType uint32) (SectionKind, bool) {
	switch shType {
	case shtMipsRegInfo:
		return SectionMipsReginfo, true
	case shtMipsOptions:
		return SectionMipsOptions, true
	case shtMipsAbiFlags:
		return SectionMipsAbiflags, true
	default:
		return 0, false
	}
}

// mipsGP0FromRegInfo reads ri_gp_value out of a 32-bit Elf32_RegInfo
// (SHT_MIPS_REGINFO is 32-bit regardless of the file's own class): 4 bytes
// ri_gprmask, 16 bytes ri_cprmask[4], then the 4-byte ri_gp_value.
func mipsGP0FromRegInfo(contents []byte, order byteOrder) (uint64, bool) {
	if len(contents) < 24 {
		return 0, false
	}
	return uint64(order.Uint32(contents[20:24])), true
}

// mipsGP0FromOptions scans SHT_MIPS_OPTIONS for an ODK_REGINFO record and
// returns its ri_gp_value. Each record is an 8-byte header (kind, size,
// section, info) followed by a payload whose size is class-dependent; for
// 64-bit MIPS the Elf64_RegInfo payload places ri_gp_value at payload
// offset 24 (4 gprmask + 4 pad + 16 cprmask).
func mipsGP0FromOptions(contents []byte, order byteOrder) (uint64, bool) {
	off := 0
	for off+8 <= len(contents) {
		kind := contents[off]
		size := order.Uint32(contents[off+4 : off+8])
		if size == 0 {
			break
		}
		if kind == odkRegInfo && off+8+24+8 <= len(contents) {
			return order.Uint64(contents[off+8+24 : off+8+32]), true
		}
		off += int(size)
	}
	return 0, false
}

// byteOrder is the subset of encoding/binary.ByteOrder these helpers need;
// Endian.order() already returns one.
type byteOrder interface {
	Uint32([]byte) uint32
	Uint64([]byte) uint64
}
