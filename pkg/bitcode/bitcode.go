// Package bitcode is the narrow, symbol-only contract pkg/linker's Bitcode
// File Parser consumes from an external bitcode reader (spec.md §1: "we
// consume a symbol-only view of a bitcode module from an external bitcode
// reader"). The LTO compiler back-end itself is out of scope; this package
// only carries what a linker core needs to publish placeholder symbols.
package bitcode

// Symbol is one global entry a bitcode module exposes, reduced to the
// fields spec.md §4.6's dispatch rule reads: COMDAT membership, the
// undefined/weak/common flags, and (when Common) the size and alignment a
// tentative definition would reserve.
type Symbol struct {
	Name string

	// Comdat is the group name this symbol belongs to, or "" if none.
	Comdat string

	Undefined bool
	Weak      bool
	Common    bool

	CommonSize  uint64
	CommonAlign uint64
}

// Module is a bitcode file reduced to its target triple (spec.md §4.6:
// "Determine (class, endian, machine) from the bitcode's target triple")
// and symbol list.
type Module struct {
	Triple  string
	Symbols []Symbol
}

// Reader is the external bitcode reader's contract. pkg/linker depends
// only on this interface, never on an LLVM binding directly.
type Reader interface {
	Read(contents []byte) (Module, error)
}

// Fixture is an in-memory Reader test double, keyed by the identity of the
// contents slice it was registered against, so pkg/linker's tests can
// exercise COMDAT/common/undefined/weak dispatch without a real LLVM
// bitcode encoder.
type Fixture struct {
	responses map[*byte]Module
}

func NewFixture() *Fixture {
	return &Fixture{responses: make(map[*byte]Module)}
}

// Register associates contents with the Module a test wants the parser to
// see when it reads that exact slice.
func (fx *Fixture) Register(contents []byte, m Module) {
	if len(contents) == 0 {
		return
	}
	fx.responses[&contents[0]] = m
}

func (fx *Fixture) Read(contents []byte) (Module, error) {
	if len(contents) == 0 {
		return Module{}, nil
	}
	if m, ok := fx.responses[&contents[0]]; ok {
		return m, nil
	}
	return Module{}, nil
}
