package linker

import (
	"debug/elf"
	"strings"
)

// emIAMCU is ELF's EM_IAMCU (Intel MCU), value 180 per the generic ABI.
// debug/elf does not define this constant, so it is supplied here.
const emIAMCU elf.Machine = 180

// MachineName renders e_machine as a string for diagnostics, matching the
// teacher's MachineTypeStringer role but over the full EM_* set spec.md §6
// names for bitcode triple lowering, not just RISC-V.
func MachineName(m uint16) string {
	switch elf.Machine(m) {
	case elf.EM_AARCH64:
		return "aarch64"
	case elf.EM_ARM:
		return "arm"
	case elf.EM_MIPS:
		return "mips"
	case elf.EM_PPC:
		return "powerpc"
	case elf.EM_PPC64:
		return "powerpc64"
	case elf.EM_386:
		return "i386"
	case elf.EM_X86_64:
		return "x86-64"
	case elf.EM_RISCV:
		return "riscv"
	default:
		return "unknown"
	}
}

// TargetFromTriple determines (class, endian, machine) from an LLVM-style
// bitcode target triple, per spec.md §4.6 ("Determine (class, endian,
// machine) from the bitcode's target triple") and §6's Egress list of
// recognized machines. Returns ok=false when the triple's architecture
// component isn't one of those, which the caller treats as the fatal
// "bitcode whose triple yields no recognized machine" (spec.md §7).
func TargetFromTriple(triple string) (class Class, endian Endian, machine uint16, ok bool) {
	arch, _, _ := strings.Cut(triple, "-")
	switch {
	case arch == "aarch64" || arch == "aarch64_be":
		endian = LittleEndian
		if arch == "aarch64_be" {
			endian = BigEndian
		}
		return Class64, endian, uint16(elf.EM_AARCH64), true
	case arch == "arm" || arch == "armeb" || arch == "thumb" || arch == "thumbeb":
		endian = LittleEndian
		if strings.HasSuffix(arch, "eb") {
			endian = BigEndian
		}
		return Class32, endian, uint16(elf.EM_ARM), true
	case arch == "mips64" || arch == "mips64el":
		endian = BigEndian
		if arch == "mips64el" {
			endian = LittleEndian
		}
		return Class64, endian, uint16(elf.EM_MIPS), true
	case arch == "mips" || arch == "mipsel":
		endian = BigEndian
		if arch == "mipsel" {
			endian = LittleEndian
		}
		return Class32, endian, uint16(elf.EM_MIPS), true
	case arch == "powerpc64" || arch == "powerpc64le" || arch == "ppc64" || arch == "ppc64le":
		endian = BigEndian
		if strings.HasSuffix(arch, "le") {
			endian = LittleEndian
		}
		return Class64, endian, uint16(elf.EM_PPC64), true
	case arch == "powerpc" || arch == "ppc":
		return Class32, BigEndian, uint16(elf.EM_PPC), true
	case arch == "i386" || arch == "i486" || arch == "i586" || arch == "i686" || arch == "i786":
		return Class32, LittleEndian, uint16(elf.EM_386), true
	case arch == "x86_64" || arch == "amd64":
		return Class64, LittleEndian, uint16(elf.EM_X86_64), true
	case arch == "iamcu":
		return Class32, LittleEndian, uint16(emIAMCU), true
	default:
		return ClassNone, EndianNone, 0, false
	}
}
