package linker

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"elflink/pkg/utils"
)

const arHdrSize = 60

// arHdr is the fixed 60-byte Unix ar(5) member header: name[16], mtime[12],
// uid[6], gid[6], mode[8], size[10], fmag[2]. No file in the retrieval pack
// actually defines this layout (the teacher's and every sibling rvld's
// `ArHeadher`/`ArHdr` type is referenced but never declared); reconstructed
// from the standard format original_source's `ArchiveFile::parse` and
// `getMember` assume.
type arHdr struct {
	raw [arHdrSize]byte
}

func (h arHdr) rawName() string { return strings.TrimRight(string(h.raw[0:16]), " ") }

func (h arHdr) size() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(string(h.raw[48:58])))
	if err != nil {
		return 0, fmt.Errorf("invalid archive member size: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative archive member size")
	}
	return n, nil
}

// ArchiveSymbol is one entry of the archive's symbol index: a name and the
// byte offset (within the archive) of the member header that defines it.
type ArchiveSymbol struct {
	Name   string
	Offset uint32
}

// ArchiveFile is a lazily-extracting static archive (spec.md §4.5). Only
// the symbol index and the GNU long-names table are read eagerly; member
// bodies are sliced out of the backing buffer on demand.
type ArchiveFile struct {
	File       *File
	IsThin     bool
	strtab     []byte
	seen       utils.Set[uint32]
	ThinLoader func(path string) ([]byte, error)
	Reproducer ReproducerCollector
}

// ParseArchiveFile reads the symbol index and long-names table, publishes a
// LazyArchive symbol for every indexed name, and returns the archive ready
// for on-demand member extraction via GetMember.
func ParseArchiveFile(ctx *Context, f *File) (*ArchiveFile, error) {
	isThin := GetFileType(f.Contents) == FileKindThinArchive
	af := &ArchiveFile{
		File:       f,
		IsThin:     isThin,
		seen:       utils.NewSet[uint32](),
		Reproducer: ctx.Reproducer,
		ThinLoader: ctx.ThinLoader,
	}

	syms, err := af.readIndex()
	if err != nil {
		return nil, err
	}
	for _, sym := range syms {
		ctx.Symtab.AddLazyArchive(af, sym)
	}
	return af, nil
}

// readIndex walks the archive once, pulling out the GNU "//" long-names
// member (if present) and decoding the "/" (or "/SYM64/") symbol-index
// member into an []ArchiveSymbol. Regular object members are skipped here;
// they're only visited on demand through GetMember.
func (af *ArchiveFile) readIndex() ([]ArchiveSymbol, error) {
	data := af.File.Contents
	pos := 8 // len("!<arch>\n") / len("!<thin>\n")
	var syms []ArchiveSymbol

	for pos+arHdrSize <= len(data) {
		if pos%2 == 1 {
			pos++
			if pos+arHdrSize > len(data) {
				break
			}
		}
		var hdr arHdr
		copy(hdr.raw[:], data[pos:pos+arHdrSize])
		size, err := hdr.size()
		if err != nil {
			return nil, Fatalf(af.File, "%v", err)
		}
		bodyStart := pos + arHdrSize
		bodyEnd := bodyStart + size
		if bodyEnd > len(data) {
			return nil, Fatalf(af.File, "archive member out of range")
		}
		name := hdr.rawName()
		switch {
		case name == "/" || name == "/SYM64/":
			decoded, err := decodeSymbolIndex(data[bodyStart:bodyEnd])
			if err != nil {
				return nil, Fatalf(af.File, "%v", err)
			}
			syms = decoded
		case name == "//":
			af.strtab = data[bodyStart:bodyEnd]
		}
		pos = bodyEnd
	}
	return syms, nil
}

// decodeSymbolIndex parses the System V ranlib-style symbol table: a
// big-endian member count, that many big-endian 4-byte member offsets, then
// that many NUL-terminated names in the same order.
func decodeSymbolIndex(body []byte) ([]ArchiveSymbol, error) {
	if len(body) < 4 {
		return nil, nil
	}
	n := binary.BigEndian.Uint32(body[0:4])
	offTableEnd := 4 + int(n)*4
	if offTableEnd > len(body) {
		return nil, fmt.Errorf("truncated archive symbol index")
	}
	offsets := make([]uint32, n)
	for i := range offsets {
		offsets[i] = binary.BigEndian.Uint32(body[4+i*4:])
	}
	names := body[offTableEnd:]
	out := make([]ArchiveSymbol, 0, n)
	start := 0
	for i := 0; i < int(n); i++ {
		nul := start
		for nul < len(names) && names[nul] != 0 {
			nul++
		}
		out = append(out, ArchiveSymbol{Name: string(names[start:nul]), Offset: offsets[i]})
		start = nul + 1
	}
	return out, nil
}

// memberName resolves a header's name field, including the GNU "/<offset>"
// indirection into the long-names table and the System V trailing-"/"
// terminator for short names.
func (af *ArchiveFile) memberName(hdr arHdr) (string, error) {
	raw := hdr.rawName()
	if strings.HasPrefix(raw, "/") && len(raw) > 1 {
		off, err := strconv.Atoi(raw[1:])
		if err == nil {
			if off < 0 || off >= len(af.strtab) {
				return "", fmt.Errorf("long-name offset out of range")
			}
			rest := af.strtab[off:]
			nul := 0
			for nul < len(rest) && rest[nul] != '\n' && rest[nul] != 0 {
				nul++
			}
			return strings.TrimRight(string(rest[:nul]), "/"), nil
		}
	}
	return strings.TrimSuffix(raw, "/"), nil
}

// GetMember implements spec.md §3's at-most-once extraction contract: the
// first call for a given symbol's offset returns the member's buffer and
// name; every later call for the same offset returns a nil buffer, the
// signal a caller uses to know the member is already being consumed.
func (af *ArchiveFile) GetMember(sym ArchiveSymbol) ([]byte, string, error) {
	if !af.seen.Insert(sym.Offset) {
		return nil, "", nil
	}
	if int(sym.Offset)+arHdrSize > len(af.File.Contents) {
		return nil, "", Fatalf(af.File, "archive member offset out of range")
	}
	var hdr arHdr
	copy(hdr.raw[:], af.File.Contents[sym.Offset:int(sym.Offset)+arHdrSize])
	size, err := hdr.size()
	if err != nil {
		return nil, "", Fatalf(af.File, "%v", err)
	}
	name, err := af.memberName(hdr)
	if err != nil {
		return nil, "", Fatalf(af.File, "%v", err)
	}

	if af.IsThin {
		if af.ThinLoader == nil {
			return nil, "", Fatalf(af.File, "thin archive member %q requires a loader", name)
		}
		buf, err := af.ThinLoader(name)
		if err != nil {
			return nil, "", Fatalf(af.File, "%v", err)
		}
		if af.Reproducer != nil {
			af.Reproducer.Add(name, buf)
		}
		return buf, name, nil
	}

	start := int(sym.Offset) + arHdrSize
	end := start + size
	if end > len(af.File.Contents) {
		return nil, "", Fatalf(af.File, "archive member data out of range")
	}
	return af.File.Contents[start:end], name, nil
}
