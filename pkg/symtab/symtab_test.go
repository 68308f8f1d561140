package symtab_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elflink/pkg/linker"
	"elflink/pkg/symtab"
)

func newTable() (*symtab.Table, *linker.Context) {
	tab := symtab.New()
	ctx := linker.NewContext(tab, linker.Config{})
	tab.Bind(ctx)
	return tab, ctx
}

func TestResolve_StrongDefinedBeatsUndefined(t *testing.T) {
	tab, _ := newTable()
	f := linker.NewMemoryFile("a.o", nil)
	tab.AddUndefined("foo", linker.BindGlobal, linker.VisDefault, elf.STT_NOTYPE, false, f)
	tab.AddRegular("foo", makeSym(elf.STB_GLOBAL, elf.STT_FUNC, 0), nil)

	s, ok := tab.Lookup("foo")
	require.True(t, ok)
	assert.Equal(t, linker.SymDefinedRegular, s.Kind)
}

func TestResolve_StrongDefinedBeatsWeak(t *testing.T) {
	tab, _ := newTable()
	tab.AddRegular("foo", makeSym(elf.STB_WEAK, elf.STT_FUNC, 0), nil)
	tab.AddRegular("foo", makeSym(elf.STB_GLOBAL, elf.STT_FUNC, 0), nil)

	s, ok := tab.Lookup("foo")
	require.True(t, ok)
	assert.Equal(t, linker.BindGlobal, s.Binding)
}

func TestResolve_WeakDoesNotOverrideStrong(t *testing.T) {
	tab, _ := newTable()
	tab.AddRegular("foo", makeSym(elf.STB_GLOBAL, elf.STT_FUNC, 0), nil)
	tab.AddRegular("foo", makeSym(elf.STB_WEAK, elf.STT_FUNC, 0), nil)

	s, ok := tab.Lookup("foo")
	require.True(t, ok)
	assert.Equal(t, linker.BindGlobal, s.Binding)
}

func TestResolve_CommonMergesToMax(t *testing.T) {
	tab, _ := newTable()
	f := linker.NewMemoryFile("a.o", nil)
	tab.AddCommon("buf", 4, 4, linker.BindGlobal, linker.VisDefault, elf.STT_OBJECT, f)
	tab.AddCommon("buf", 16, 8, linker.BindGlobal, linker.VisDefault, elf.STT_OBJECT, f)

	s, ok := tab.Lookup("buf")
	require.True(t, ok)
	assert.Equal(t, uint64(16), s.Size)
	assert.Equal(t, uint64(8), s.Align)
}

// TestResolve_LazyArchiveTriggersExtraction exercises the full lazy-object
// pipeline: a real archive containing one member is parsed against this
// Table, publishing "bar" as a lazy-archive placeholder; a later reference
// to "bar" must materialize the member and adopt its stronger definition.
func TestResolve_LazyArchiveTriggersExtraction(t *testing.T) {
	tab, ctx := newTable()

	archiveBytes := buildArchive(t, "bar.o", buildObjectWithGlobal(t, "bar"))
	af, err := linker.ParseArchiveFile(ctx, ctx.Registry.Add(linker.NewMemoryFile("libx.a", archiveBytes)))
	require.NoError(t, err)
	require.NotNil(t, af)

	s, ok := tab.Lookup("bar")
	require.True(t, ok)
	require.Equal(t, linker.SymLazyArchive, s.Kind)

	f := linker.NewMemoryFile("main.o", nil)
	tab.AddUndefined("bar", linker.BindGlobal, linker.VisDefault, elf.STT_NOTYPE, false, f)

	s, ok = tab.Lookup("bar")
	require.True(t, ok)
	assert.Equal(t, linker.SymDefinedRegular, s.Kind)
}

func makeSym(bind elf.SymBind, typ elf.SymType, shndx uint16) linker.Sym {
	return linker.Sym{Info: uint8(bind)<<4 | uint8(typ), Shndx: shndx}
}

// buildObjectWithGlobal builds a minimal ET_REL ELF64-LE object exporting
// name as a defined global function in .text.
func buildObjectWithGlobal(t *testing.T, name string) []byte {
	t.Helper()

	shstrtab := []byte{0}
	textNameOff := uint32(len(shstrtab))
	shstrtab = append(shstrtab, ".text\x00"...)
	symtabNameOff := uint32(len(shstrtab))
	shstrtab = append(shstrtab, ".symtab\x00"...)
	strtabNameOff := uint32(len(shstrtab))
	shstrtab = append(shstrtab, ".strtab\x00"...)
	shstrNameOff := uint32(len(shstrtab))
	shstrtab = append(shstrtab, ".shstrtab\x00"...)

	strtab := []byte{0}
	nameOff := uint32(len(strtab))
	strtab = append(strtab, name...)
	strtab = append(strtab, 0)

	textData := []byte{0x90}

	symSize := uint64(unsafe.Sizeof(elf.Sym64{}))
	symtabData := make([]byte, symSize*2)
	writeSym64(symtabData[symSize:], elf.Sym64{Name: nameOff, Info: uint8(elf.STB_GLOBAL)<<4 | uint8(elf.STT_FUNC), Shndx: 1, Value: 0})

	ehdrSize := uint64(unsafe.Sizeof(elf.Header64{}))
	shdrSize := uint64(unsafe.Sizeof(elf.Section64{}))

	off := ehdrSize
	textOff := off
	off += uint64(len(textData))
	symtabOff := off
	off += uint64(len(symtabData))
	strtabOff := off
	off += uint64(len(strtab))
	shstrtabOff := off
	off += uint64(len(shstrtab))
	for off%8 != 0 {
		off++
	}
	shoff := off

	const nsec = 5 // null, .text, .symtab, .strtab, .shstrtab
	buf := make([]byte, shoff+shdrSize*nsec)
	copy(buf[textOff:], textData)
	copy(buf[symtabOff:], symtabData)
	copy(buf[strtabOff:], strtab)
	copy(buf[shstrtabOff:], shstrtab)

	writeShdr := func(idx int, sh elf.Section64) {
		writeShdr64(buf[shoff+uint64(idx)*shdrSize:], sh)
	}
	writeShdr(0, elf.Section64{})
	writeShdr(1, elf.Section64{Name: textNameOff, Type: uint32(elf.SHT_PROGBITS), Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), Off: textOff, Size: uint64(len(textData)), Addralign: 1})
	writeShdr(2, elf.Section64{Name: symtabNameOff, Type: uint32(elf.SHT_SYMTAB), Off: symtabOff, Size: uint64(len(symtabData)), Link: 3, Info: 1, Addralign: 8, Entsize: symSize})
	writeShdr(3, elf.Section64{Name: strtabNameOff, Type: uint32(elf.SHT_STRTAB), Off: strtabOff, Size: uint64(len(strtab)), Addralign: 1})
	writeShdr(4, elf.Section64{Name: shstrNameOff, Type: uint32(elf.SHT_STRTAB), Off: shstrtabOff, Size: uint64(len(shstrtab)), Addralign: 1})

	ehdr := elf.Header64{
		Ident:     [16]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)},
		Type:      uint16(elf.ET_REL),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    uint16(ehdrSize),
		Shentsize: uint16(shdrSize),
		Shnum:     nsec,
		Shstrndx:  4,
	}
	writeEhdr64(buf, ehdr)
	return buf
}

func writeSym64(dst []byte, s elf.Sym64) {
	binary.LittleEndian.PutUint32(dst[0:4], s.Name)
	dst[4] = s.Info
	dst[5] = s.Other
	binary.LittleEndian.PutUint16(dst[6:8], s.Shndx)
	binary.LittleEndian.PutUint64(dst[8:16], s.Value)
	binary.LittleEndian.PutUint64(dst[16:24], s.Size)
}

func writeShdr64(dst []byte, s elf.Section64) {
	binary.LittleEndian.PutUint32(dst[0:4], s.Name)
	binary.LittleEndian.PutUint32(dst[4:8], s.Type)
	binary.LittleEndian.PutUint64(dst[8:16], s.Flags)
	binary.LittleEndian.PutUint64(dst[16:24], s.Addr)
	binary.LittleEndian.PutUint64(dst[24:32], s.Off)
	binary.LittleEndian.PutUint64(dst[32:40], s.Size)
	binary.LittleEndian.PutUint32(dst[40:44], s.Link)
	binary.LittleEndian.PutUint32(dst[44:48], s.Info)
	binary.LittleEndian.PutUint64(dst[48:56], s.Addralign)
	binary.LittleEndian.PutUint64(dst[56:64], s.Entsize)
}

func writeEhdr64(dst []byte, h elf.Header64) {
	copy(dst[0:16], h.Ident[:])
	binary.LittleEndian.PutUint16(dst[16:18], h.Type)
	binary.LittleEndian.PutUint16(dst[18:20], h.Machine)
	binary.LittleEndian.PutUint32(dst[20:24], h.Version)
	binary.LittleEndian.PutUint64(dst[24:32], h.Entry)
	binary.LittleEndian.PutUint64(dst[32:40], h.Phoff)
	binary.LittleEndian.PutUint64(dst[40:48], h.Shoff)
	binary.LittleEndian.PutUint32(dst[48:52], h.Flags)
	binary.LittleEndian.PutUint16(dst[52:54], h.Ehsize)
	binary.LittleEndian.PutUint16(dst[54:56], h.Phentsize)
	binary.LittleEndian.PutUint16(dst[56:58], h.Phnum)
	binary.LittleEndian.PutUint16(dst[58:60], h.Shentsize)
	binary.LittleEndian.PutUint16(dst[60:62], h.Shnum)
	binary.LittleEndian.PutUint16(dst[62:64], h.Shstrndx)
}

const arHdrSize = 60

func arHeader(name string, size int) []byte {
	h := make([]byte, arHdrSize)
	for i := range h {
		h[i] = ' '
	}
	copy(h[0:16], name)
	copy(h[48:58], []byte(itoa(size)))
	h[58], h[59] = 0x60, '\n'
	return h
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

// buildArchive assembles a real "!<arch>\n" archive with a GNU symbol-index
// ("/") member naming symbol "bar" -> the sole member's header offset,
// followed by that member itself.
func buildArchive(t *testing.T, memberName string, memberData []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("!<arch>\n")

	idxBody := make([]byte, 0, 12)
	idxBody = binary.BigEndian.AppendUint32(idxBody, 1)
	idxBody = binary.BigEndian.AppendUint32(idxBody, 0) // patched below
	idxBody = append(idxBody, "bar\x00"...)

	idxHeaderOff := buf.Len()
	memberHeaderOff := idxHeaderOff + arHdrSize + len(idxBody)
	if memberHeaderOff%2 == 1 {
		memberHeaderOff++
	}
	binary.BigEndian.PutUint32(idxBody[4:8], uint32(memberHeaderOff))

	buf.Write(arHeader("/", len(idxBody)))
	buf.Write(idxBody)
	if buf.Len()%2 == 1 {
		buf.WriteByte('\n')
	}
	require.Equal(t, memberHeaderOff, buf.Len())

	buf.Write(arHeader(memberName, len(memberData)))
	buf.Write(memberData)
	return buf.Bytes()
}
