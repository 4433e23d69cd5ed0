package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/hutomosaktikartiko/patchly/internal/bytestore"
	"github.com/hutomosaktikartiko/patchly/internal/patch"
)

// StatCmd dumps just the header of a patch container, without walking its
// instruction stream.
func StatCmd() *Command {
	flags := flag.NewFlagSet("stat", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "stat <patch-file>",
		Short: "Print a patch container's header",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: expected <patch-file>", errUsage)
			}

			return runStat(o, args[0])
		},
	}
}

func runStat(o *IO, patchPath string) error {
	f, err := bytestore.OpenFileStore(patchPath)
	if err != nil {
		return fmt.Errorf("opening patch file: %w", err)
	}
	defer func() { _ = f.Close() }()

	size, err := f.Size()
	if err != nil {
		return fmt.Errorf("stat patch file: %w", err)
	}

	buf := make([]byte, patch.HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	hdr, err := patch.ParseHeader(buf)
	if err != nil {
		return err
	}

	o.Printf("source_size:    %d\n", hdr.SourceSize)
	o.Printf("source_digest:  %#016x\n", hdr.SourceDigest)
	o.Printf("target_size:    %d\n", hdr.TargetSize)
	o.Printf("instr_bytes:    %d\n", size-patch.HeaderSize)

	return nil
}
