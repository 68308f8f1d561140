package linker

import (
	"debug/elf"
	"slices"
)

// MergePiece is one dedup-candidate element of a mergeable section: either
// a fixed-size record (sh_entsize wide) or a NUL-terminated string whose
// character width is sh_entsize (spec.md's GLOSSARY entry for "Mergeable
// section"). Actually assigning merged pieces to an output location is
// layout work and out of scope (spec.md §1); this module only exposes the
// split, the same boundary original_source draws between InputFiles.cpp
// (classification) and InputSection.cpp (splitting/merging).
type MergePiece struct {
	Offset uint32
	Data   []byte
}

// MergeableSection is the classified form of a section spec.md §3's
// invariant selects as mergeable. Grounded on the teacher's/sibling
// rvld repos' MergeableSection, generalized from "already split, pointing
// at a MergedSection" (a downstream, layout-time concept) to "split, ready
// for a downstream component to merge".
type MergeableSection struct {
	Base    *InputSection
	Strings bool
	EntSize uint64
	Pieces  []MergePiece
}

func splitMergeable(sec *InputSection) *MergeableSection {
	m := &MergeableSection{
		Base:    sec,
		EntSize: sec.Shdr.Entsize,
		Strings: sec.Shdr.Flags&uint64(elf.SHF_STRINGS) != 0,
	}
	data := sec.Contents
	if m.Strings {
		width := int(m.EntSize)
		if width == 0 {
			width = 1
		}
		off := 0
		for off+width <= len(data) {
			start := off
			for off+width <= len(data) {
				zero := true
				for k := 0; k < width; k++ {
					if data[off+k] != 0 {
						zero = false
						break
					}
				}
				off += width
				if zero {
					break
				}
			}
			m.Pieces = append(m.Pieces, MergePiece{Offset: uint32(start), Data: data[start:off]})
		}
		return m
	}
	for off := 0; uint64(off)+m.EntSize <= uint64(len(data)); off += int(m.EntSize) {
		m.Pieces = append(m.Pieces, MergePiece{Offset: uint32(off), Data: data[off : off+int(m.EntSize)]})
	}
	return m
}

// GetPiece returns the piece containing offset and the offset's remainder
// within it, generalizing the teacher's sort.Search-based GetFragment to
// the stdlib slices.BinarySearchFunc the pack's other ELF-domain repo
// (WonderfulToolchain-wf-tools/go/relocation) reaches for instead of
// hand-rolled binary search.
func (m *MergeableSection) GetPiece(offset uint32) (*MergePiece, uint32) {
	idx, found := slices.BinarySearchFunc(m.Pieces, offset, func(p MergePiece, target uint32) int {
		return int(p.Offset) - int(target)
	})
	if found {
		return &m.Pieces[idx], 0
	}
	if idx == 0 {
		return nil, 0
	}
	p := &m.Pieces[idx-1]
	return p, offset - p.Offset
}
