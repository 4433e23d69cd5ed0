package cli

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/hutomosaktikartiko/patchly/internal/applier"
	"github.com/hutomosaktikartiko/patchly/internal/bytestore"
)

// ApplyCmd reconstructs <target> from <source> and <patch-file>.
func ApplyCmd() *Command {
	flags := flag.NewFlagSet("apply", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "apply <source> <patch-file> <target>",
		Short: "Reconstruct target by applying a patch to source",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 3 {
				return fmt.Errorf("%w: expected <source> <patch-file> <target>", errUsage)
			}

			return runApply(o, args[0], args[1], args[2])
		},
	}
}

func runApply(o *IO, sourcePath, patchPath, targetPath string) error {
	lock, err := bytestore.Acquire(targetPath, bytestore.DefaultLockTimeout)
	if err != nil {
		return fmt.Errorf("locking target: %w", err)
	}
	defer func() { _ = lock.Close() }()

	sourceStore, err := bytestore.OpenFileStore(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer func() { _ = sourceStore.Close() }()

	patchFile, err := bytestore.OpenFileStore(patchPath)
	if err != nil {
		return fmt.Errorf("opening patch file: %w", err)
	}
	defer func() { _ = patchFile.Close() }()

	patchSize, err := patchFile.Size()
	if err != nil {
		return fmt.Errorf("stat patch file: %w", err)
	}

	a := applier.NewApplier(patchFile, patchSize, sourceStore)

	if _, err := a.ParseHeader(); err != nil {
		return err
	}

	if err := a.ValidateSource(); err != nil {
		return err
	}

	tmpPath := targetPath + ".patchly-tmp"

	out, err := bytestore.CreateFileStore(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp output: %w", err)
	}

	applyErr := a.ApplyTo(out)

	closeErr := out.Close()
	if applyErr != nil {
		_ = os.Remove(tmpPath)

		return applyErr
	}

	if closeErr != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("closing temp output: %w", closeErr)
	}

	if err := bytestore.PublishTemp(tmpPath, targetPath); err != nil {
		return err
	}

	o.Println("applied patch:", patchPath, "->", targetPath)

	return nil
}
