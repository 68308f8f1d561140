package linker

import (
	"fmt"
	"os"
)

// File is a borrowed view over one input's bytes: a relocatable object, a
// shared object, an archive, a bitcode module, a raw blob, or an archive
// member extracted from one of those. It never owns Contents past the
// Registry's lifetime — spec.md §3's MemoryBlob entity, folded into File
// because every parser needs the archive-qualification metadata alongside
// the bytes.
type File struct {
	Name        string
	Contents    []byte
	Parent      *File
	ArchiveName string
}

// MustNewFile reads path off disk. This is the one piece of real I/O in the
// module; it exists only so cmd/rvld-ingest has something to hand the
// Registry, mirroring the teacher's own top-level use of a bare path. A
// real driver supplies its own pre-mapped buffers instead (spec.md §5: "no
// operation suspends on I/O inside a parser").
func MustNewFile(path string) *File {
	contents, err := os.ReadFile(path)
	if err != nil {
		Fatalf(nil, "%v", err)
	}
	return &File{Name: path, Contents: contents}
}

func NewMemoryFile(name string, contents []byte) *File {
	return &File{Name: name, Contents: contents}
}

// DisplayName implements spec.md §7's filename policy: "(internal)" for the
// nil sentinel file, archive-qualified names for archive members, the bare
// name otherwise.
func DisplayName(f *File) string {
	if f == nil {
		return "(internal)"
	}
	if f.ArchiveName != "" {
		return fmt.Sprintf("%s(%s)", f.ArchiveName, f.Name)
	}
	return f.Name
}

// FileKind is the result of magic detection (spec.md §6 "Ingress").
type FileKind uint8

const (
	FileKindUnknown FileKind = iota
	FileKindObject
	FileKindShared
	FileKindArchive
	FileKindThinArchive
	FileKindBitcode
)

var (
	elfMagic        = [4]byte{0x7f, 'E', 'L', 'F'}
	archiveMagic    = []byte("!<arch>\n")
	thinArchiveMagic = []byte("!<thin>\n")
	bitcodeMagic    = []byte{'B', 'C', 0xC0, 0xDE}
	bitcodeWrapperMagic = []byte{0xDE, 0xC0, 0x17, 0x0B}
)

func CheckMagic(contents []byte) bool {
	return len(contents) >= 4 && [4]byte(contents[:4]) == elfMagic
}

func IsBitcode(contents []byte) bool {
	if len(contents) < 4 {
		return false
	}
	return equalPrefix(contents, bitcodeMagic) || equalPrefix(contents, bitcodeWrapperMagic)
}

func equalPrefix(b, magic []byte) bool {
	return len(b) >= len(magic) && string(b[:len(magic)]) == string(magic)
}

// GetFileType dispatches by magic only. Opaque bytes (none of the above)
// are left to the driver, which decides whether they should be wrapped as
// a Binary Blob (spec.md §6) — that decision lives outside this function
// because it depends on how the file was named on the command line
// (-b vs. a bare path), a driver concern.
func GetFileType(contents []byte) FileKind {
	switch {
	case IsBitcode(contents):
		return FileKindBitcode
	case equalPrefix(contents, archiveMagic):
		return FileKindArchive
	case equalPrefix(contents, thinArchiveMagic):
		return FileKindThinArchive
	case CheckMagic(contents):
		class, _, err := DetectClassEndian(contents)
		if err != nil {
			return FileKindUnknown
		}
		_ = class
		return classifyELF(contents)
	default:
		return FileKindUnknown
	}
}

func classifyELF(contents []byte) FileKind {
	class, endian, err := DetectClassEndian(contents)
	if err != nil {
		return FileKindUnknown
	}
	d := NewDecoder(contents, class, endian)
	ehdr, err := d.Ehdr()
	if err != nil {
		return FileKindUnknown
	}
	switch elfType(ehdr.Type) {
	case etDyn:
		return FileKindShared
	default:
		return FileKindObject
	}
}

type elfType uint16

const (
	etNone elfType = 0
	etRel  elfType = 1
	etExec elfType = 2
	etDyn  elfType = 3
	etCore elfType = 4
)

// Registry is the process-wide, append-only pool of ingested files. Files
// formed from other files (archive members, the synthetic object behind a
// binary blob) are appended after their parent, so closing in LIFO order
// destroys children before parents — spec.md §4.2, §8's first invariant.
type Registry struct {
	files []*File
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Add(f *File) *File {
	r.files = append(r.files, f)
	return f
}

// Files returns every file added so far, in insertion order.
func (r *Registry) Files() []*File {
	return r.files
}

// Close tears the registry down in LIFO order and returns the destruction
// sequence (as display names) so callers/tests can assert on it.
func (r *Registry) Close() []string {
	order := make([]string, 0, len(r.files))
	for i := len(r.files) - 1; i >= 0; i-- {
		f := r.files[i]
		order = append(order, DisplayName(f))
		f.Contents = nil
	}
	r.files = nil
	return order
}
