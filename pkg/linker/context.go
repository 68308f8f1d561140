package linker

// StripPolicy mirrors the driver's --strip handling (spec.md §6): it
// governs whether .debug* sections survive Object File Parser
// classification.
type StripPolicy uint8

const (
	StripNone StripPolicy = iota
	StripAll
	StripDebug
)

// Config is the process-wide configuration record spec.md §6 says the
// driver populates: strip policy, optimize level, relocatable-output mode,
// and the default machine type. It generalizes the teacher's ContextArgs
// (which carried only Output/Emulation/LibraryPaths, all driver-only
// concerns out of scope here).
type Config struct {
	Strip       StripPolicy
	Optimize    int
	Relocatable bool
	EMachine    uint16
}

// Context carries every piece of shared, cross-file state spec.md §5 names:
// the Registry, the process-wide comdat signature set, and a handle to the
// Symbol Table Facade. It is passed explicitly into every parser entry
// point instead of living behind package-level statics, per spec.md's
// Design Notes §9.
type Context struct {
	Config      Config
	Registry    *Registry
	Comdat      *ComdatSet
	Symtab      SymbolTable
	Diagnostics []Diagnostic
	FirstELF    *File
	Reproducer  ReproducerCollector

	// ThinLoader resolves a thin archive member's path to its bytes; thin
	// archives store members as external files rather than embedding them
	// (spec.md §4.5). nil unless a driver embedding this module opts in.
	ThinLoader func(path string) ([]byte, error)
}

// ReproducerCollector is the thin-archive reproducer hook (spec.md §4.5).
// Left as an interface so this module doesn't hard-depend on a concrete
// archiver; a driver that doesn't care about reproducers passes nil.
type ReproducerCollector interface {
	Add(pathRelativeToRoot string, contents []byte)
}

func NewContext(symtab SymbolTable, cfg Config) *Context {
	return &Context{
		Config:   cfg,
		Registry: NewRegistry(),
		Comdat:   NewComdatSet(),
		Symtab:   symtab,
	}
}

func (c *Context) noteFirstELF(f *File) {
	if c.FirstELF == nil {
		c.FirstELF = f
	}
}
