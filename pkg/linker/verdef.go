package linker

// VersionDef is a shared object's version-definition record (spec.md §3),
// indexed by vd_ndx. Built once during a Shared File Parse's phase 2 and
// referenced, never copied, by every shared Symbol that carries a version.
type VersionDef struct {
	Ndx   uint16
	Name  string
	Flags uint16
}
