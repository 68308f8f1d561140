package linker

import (
	"debug/elf"
	"path"
)

const (
	verNdxLocal        = 0
	verNdxGlobal       = 1
	versymHidden       = 0x8000
	versymVersionMask  = 0x7fff

	dtSoname = 14
)

// SharedFile is the parsed form of a shared object (spec.md §4.4): a
// SONAME, the version-definition table, one shared Symbol per exported
// name, and the list of names this DSO itself leaves undefined (used by a
// downstream --as-needed heuristic this module does not implement).
type SharedFile struct {
	File    *File
	SoName  string
	Verdefs []*VersionDef
	Undefs  []string
	Symbols []*Symbol
}

// ParseSharedFile runs both phases spec.md §4.4 names: parseSoName first
// (so a driver can decide whether to fully parse the DSO before doing so),
// then parseVerdefs/parseRest.
func ParseSharedFile(ctx *Context, f *File) (*SharedFile, error) {
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

	sf := &SharedFile{File: f, SoName: path.Base(f.Name)}
	ctx.noteFirstELF(f)

	var dynsymShdr, dynamicShdr, versymShdr, verdefShdr Shdr
	var hasDynsym, hasDynamic, hasVersym, hasVerdef bool

	for _, sh := range shdrs {
		switch elf.SectionType(sh.Type) {
		case elf.SHT_DYNSYM:
			dynsymShdr, hasDynsym = sh, true
		case elf.SHT_DYNAMIC:
			dynamicShdr, hasDynamic = sh, true
		case elf.SHT_GNU_VERSYM:
			versymShdr, hasVersym = sh, true
		case elf.SHT_GNU_VERDEF:
			verdefShdr, hasVerdef = sh, true
		}
	}

	if hasDynamic {
		if err := sf.parseSoName(dec, shdrs, dynamicShdr); err != nil {
			return nil, err
		}
	}

	if !hasDynsym {
		return sf, nil
	}

	if hasVerdef {
		verdefs, err := parseVerdefsChain(f, dec, shdrs, verdefShdr)
		if err != nil {
			return nil, err
		}
		sf.Verdefs = verdefs
	}

	if err := sf.parseRest(ctx, dec, shdrs, dynsymShdr, versymShdr, hasVersym); err != nil {
		return nil, err
	}
	return sf, nil
}

// parseSoName replaces the filename-derived default with the shared object's own
// DT_SONAME entry when one is present, per spec.md §3's "SONAME defaults to
// the filename" rule.
func (sf *SharedFile) parseSoName(dec *Decoder, shdrs []Shdr, dynamicShdr Shdr) error {
	dyns, err := dec.Dyns(dynamicShdr)
	if err != nil {
		return Fatalf(sf.File, "%v", err)
	}
	if int(dynamicShdr.Link) >= len(shdrs) {
		return nil
	}
	dynstr, err := dec.Bytes(shdrs[dynamicShdr.Link])
	if err != nil {
		return Fatalf(sf.File, "%v", err)
	}
	for _, d := range dyns {
		if d.Tag != dtSoname {
			continue
		}
		name, err := dec.StringAt(dynstr, uint32(d.Val))
		if err != nil {
			return Fatalf(sf.File, "invalid DT_SONAME entry")
		}
		sf.SoName = name
		return nil
	}
	return nil
}

// parseRest walks the dynamic symbol table's global range in lockstep with
// the (already absolutely-indexed) versym array, publishing one shared
// Symbol per non-local, non-hidden global.
func (sf *SharedFile) parseRest(ctx *Context, dec *Decoder, shdrs []Shdr, dynsymShdr, versymShdr Shdr, hasVersym bool) error {
	if int(dynsymShdr.Link) >= len(shdrs) {
		return Fatalf(sf.File, "invalid sh_link on SHT_DYNSYM")
	}
	dynstr, err := dec.Bytes(shdrs[dynsymShdr.Link])
	if err != nil {
		return Fatalf(sf.File, "%v", err)
	}
	syms, err := dec.Syms(dynsymShdr)
	if err != nil {
		return Fatalf(sf.File, "%v", err)
	}
	var versyms []uint16
	if hasVersym {
		versyms, err = dec.Versyms(versymShdr)
		if err != nil {
			return Fatalf(sf.File, "%v", err)
		}
	}

	firstGlobal := dynsymShdr.Info
	for i := int(firstGlobal); i < len(syms); i++ {
		sym := syms[i]
		name, err := dec.StringAt(dynstr, sym.Name)
		if err != nil {
			return Fatalf(sf.File, "%v", err)
		}
		if sym.Shndx == shnUndef {
			sf.Undefs = append(sf.Undefs, name)
			continue
		}

		vIdx := uint16(verNdxGlobal)
		if versyms != nil && i < len(versyms) {
			vIdx = versyms[i]
		}
		if vIdx&versymHidden != 0 || vIdx&versymVersionMask == verNdxLocal {
			continue
		}

		var vd *VersionDef
		if ndx := vIdx & versymVersionMask; ndx != verNdxGlobal && int(ndx) < len(sf.Verdefs) {
			vd = sf.Verdefs[ndx]
		}

		published := ctx.Symtab.AddShared(sf.File, name, sym, vd)
		sf.Symbols = append(sf.Symbols, published)
	}
	return nil
}

// parseVerdefsChain decodes the singly-linked Elf_Verdef record chain into
// an array indexed by vd_ndx, sized at least sh_info+1 but grown if a
// record's own vd_ndx exceeds that prediction (spec.md §4.4).
func parseVerdefsChain(f *File, dec *Decoder, shdrs []Shdr, verdefShdr Shdr) ([]*VersionDef, error) {
	base, err := dec.Bytes(verdefShdr)
	if err != nil {
		return nil, Fatalf(f, "%v", err)
	}
	var strtab []byte
	if int(verdefShdr.Link) < len(shdrs) {
		strtab, _ = dec.Bytes(shdrs[verdefShdr.Link])
	}

	size := verdefShdr.Info + 1
	if size < 1 {
		size = 1
	}
	out := make([]*VersionDef, size)

	off := uint32(0)
	for {
		vd, auxes, err := dec.VerdefAt(base, off)
		if err != nil {
			return nil, Fatalf(f, "%v", err)
		}
		var name string
		if len(auxes) > 0 && strtab != nil {
			name, _ = dec.StringAt(strtab, auxes[0].Name)
		}
		ndx := vd.Ndx & versymVersionMask
		for int(ndx) >= len(out) {
			out = append(out, nil)
		}
		out[ndx] = &VersionDef{Ndx: ndx, Name: name, Flags: vd.Flags}
		if vd.Next == 0 {
			break
		}
		off += vd.Next
	}
	return out, nil
}
