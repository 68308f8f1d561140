// Command rvld-ingest is a thin smoke driver in the shape of the teacher's
// rvld.go: it wires Registry -> parser -> Symbol Table Facade for every
// path on the command line and reports what came out. It is not the
// linker's CLI (spec.md §1 puts that out of scope) — it exists only to
// exercise the ingestion API end to end, the same role the teacher's main
// played for a single ObjectFile.Parse call.
package main

import (
	"flag"
	"fmt"
	"os"

	"elflink/pkg/bitcode"
	"elflink/pkg/linker"
	"elflink/pkg/symtab"
	"elflink/pkg/utils"
)

func main() {
	binaryFlag := flag.String("b", "", "treat this path as a raw binary blob (spec.md §4.7)")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		utils.Fatal("usage: rvld-ingest [-b blob] file...")
	}

	table := symtab.New()
	ctx := linker.NewContext(table, linker.Config{})
	table.Bind(ctx)
	reader := bitcode.NewFixture() // no LLVM binding wired to this driver; a bitcode input reads as an empty module whose empty triple is rejected as fatal

	for _, path := range args {
		f := ctx.Registry.Add(linker.MustNewFile(path))
		if path == *binaryFlag {
			if _, err := linker.IngestBinaryBlob(ctx, f); err != nil {
				utils.Fatal(err.Error())
			}
			continue
		}
		if err := ingest(ctx, f, reader); err != nil {
			utils.Fatal(err.Error())
		}
	}

	for _, d := range ctx.Diagnostics {
		fmt.Fprintf(os.Stderr, "rvld-ingest: warning: %s: %s\n", d.File, d.Message)
	}

	if ctx.FirstELF != nil {
		fmt.Printf("first ELF input: %s\n", linker.DisplayName(ctx.FirstELF))
	}
	fmt.Printf("ingested %d file(s)\n", len(ctx.Registry.Files()))

	for _, name := range ctx.Registry.Close() {
		fmt.Printf("closed %s\n", name)
	}
}

func ingest(ctx *linker.Context, f *linker.File, reader bitcode.Reader) error {
	switch linker.GetFileType(f.Contents) {
	case linker.FileKindObject:
		_, err := linker.ParseObjectFile(ctx, f)
		return err
	case linker.FileKindShared:
		_, err := linker.ParseSharedFile(ctx, f)
		return err
	case linker.FileKindArchive, linker.FileKindThinArchive:
		_, err := linker.ParseArchiveFile(ctx, f)
		return err
	case linker.FileKindBitcode:
		_, err := linker.ParseBitcodeFile(ctx, f, reader)
		return err
	default:
		return linker.Fatalf(f, "unrecognized input file")
	}
}

