package linker

// SectionKind discriminates the section variants spec.md §9's Design Notes
// suggest modeling as a tagged variant instead of leaking the source's
// pointer-identity-to-a-global-object trick into the public model.
type SectionKind uint8

const (
	SectionRegular SectionKind = iota
	SectionMergeable
	SectionEhFrame
	SectionMipsReginfo
	SectionMipsOptions
	SectionMipsAbiflags
)

// Discarded is the single process-wide sentinel spec.md §3 requires:
// "code must test identity against that sentinel, not value." Every
// ObjectFile.Sections slot that names an eliminated section (SHF_EXCLUDE,
// COMDAT loser, .note.GNU-stack, stripped .debug*, ...) is set to this
// exact pointer.
var Discarded = &InputSection{Name: "<discarded>"}

// InputSection is a classified, non-discarded section from an Object File
// Parse (spec.md §3). Contents is a non-owning view, never mutated.
type InputSection struct {
	File     *ObjectFile
	Shndx    uint32
	Kind     SectionKind
	Name     string
	Shdr     Shdr
	Contents []byte

	// Repl lets a section be transparently redirected to a merged
	// replacement without every reader needing to know; spec.md §9's
	// Design Notes call this out explicitly. Regular sections are their
	// own Repl.
	Repl *InputSection

	// Regular: relocation sections that target this section (spec.md §4.3
	// point 3 — "append this to target's relocation-section list").
	Relocs []Shdr

	// EhFrame: at most one relocation section may target it (spec.md §3).
	EhFrameReloc *Shdr

	// Mergeable
	Merge *MergeableSection

	// Mips*
	MipsGP0 uint64
}

func newInputSection(file *ObjectFile, shndx uint32, shdr Shdr, name string, contents []byte, kind SectionKind) *InputSection {
	s := &InputSection{File: file, Shndx: shndx, Kind: kind, Name: name, Shdr: shdr, Contents: contents}
	s.Repl = s
	return s
}
