package linker

import "elflink/pkg/utils"

// ComdatSet is the process-wide, insert-only dedup set keyed by COMDAT
// group signature (spec.md §3's ComdatGroup entity, §5's "global COMDAT
// signature set"). First occurrence wins; later files with the same
// signature discard every member section of their own group.
type ComdatSet struct {
	seen utils.Set[string]
}

func NewComdatSet() *ComdatSet {
	return &ComdatSet{seen: utils.NewSet[string]()}
}

// Insert reports whether signature was newly claimed by this call. A false
// return means some earlier file already owns this group.
func (c *ComdatSet) Insert(signature string) bool {
	return c.seen.Insert(signature)
}
