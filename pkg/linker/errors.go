package linker

import "fmt"

// FileError is a fatal, file-scoped parse error (spec.md §7). Every parser
// returns one instead of panicking; a driver decides how "terminate the
// link" actually happens (cmd/rvld-ingest just prints and exits, the way
// the teacher's utils.Fatal does).
type FileError struct {
	File    string // DisplayName(f), computed eagerly so the error survives Registry.Close
	Message string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Fatalf builds a FileError prefixed with f's display name, per spec.md
// §7's filename display policy.
func Fatalf(f *File, format string, args ...any) *FileError {
	return &FileError{File: DisplayName(f), Message: fmt.Sprintf(format, args...)}
}

// Diagnostic is the non-fatal counterpart: split-stack objects and other
// conditions that let the link continue with the offending section
// discarded still need to be reported somewhere. Parsers append to
// Context.Diagnostics rather than print directly, so a driver controls
// formatting (spec.md §1: diagnostics formatting is an external concern).
type Diagnostic struct {
	File    string
	Message string
}

func warnf(ctx *Context, f *File, format string, args ...any) {
	ctx.Diagnostics = append(ctx.Diagnostics, Diagnostic{
		File:    DisplayName(f),
		Message: fmt.Sprintf(format, args...),
	})
}
