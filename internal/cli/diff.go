package cli

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/hutomosaktikartiko/patchly/internal/bytestore"
	"github.com/hutomosaktikartiko/patchly/internal/config"
	"github.com/hutomosaktikartiko/patchly/internal/differ"
)

const (
	ingestChunkSize = 64 * 1024
	writeBatchSize  = 1024 * 1024
)

// DiffCmd builds a patch from <source> to <target>, writing it to <patch-file>.
func DiffCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("diff", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "diff <source> <target> <patch-file>",
		Short: "Compute a patch that transforms source into target",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 3 {
				return fmt.Errorf("%w: expected <source> <target> <patch-file>", errUsage)
			}

			return runDiff(o, cfg, args[0], args[1], args[2])
		},
	}
}

func runDiff(o *IO, cfg config.Config, sourcePath, targetPath, patchPath string) error {
	lock, err := bytestore.Acquire(patchPath, bytestore.DefaultLockTimeout)
	if err != nil {
		return fmt.Errorf("locking patch output: %w", err)
	}
	defer func() { _ = lock.Close() }()

	sourceSeq, err := os.Open(sourcePath) //nolint:gosec // CLI positional argument, user-controlled by design
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer func() { _ = sourceSeq.Close() }()

	sourceRand, err := bytestore.OpenFileStore(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source for random access: %w", err)
	}
	defer func() { _ = sourceRand.Close() }()

	targetSeq, err := os.Open(targetPath) //nolint:gosec // CLI positional argument, user-controlled by design
	if err != nil {
		return fmt.Errorf("opening target: %w", err)
	}
	defer func() { _ = targetSeq.Close() }()

	targetInfo, err := targetSeq.Stat()
	if err != nil {
		return fmt.Errorf("stat target: %w", err)
	}

	tmpPath := patchPath + ".patchly-tmp"

	patchOut, err := bytestore.CreateFileStore(tmpPath)
	if err != nil {
		return fmt.Errorf("creating patch file: %w", err)
	}

	if err := diffTo(o, cfg, sourceRand, sourceSeq, targetSeq, targetInfo.Size(), patchOut); err != nil {
		_ = patchOut.Close()
		_ = os.Remove(tmpPath)

		return err
	}

	if err := patchOut.Close(); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("closing patch file: %w", err)
	}

	return bytestore.PublishTemp(tmpPath, patchPath)
}

func diffTo(
	o *IO,
	cfg config.Config,
	sourceRand *bytestore.FileStore,
	sourceSeq, targetSeq *os.File,
	targetSize int64,
	patchOut *bytestore.FileStore,
) error {
	b := differ.NewBuilder(cfg.DifferOptions(), sourceRand)

	src := bytestore.NewChunkSource(sourceSeq, ingestChunkSize)
	for {
		chunk, readErr := src.ReadNext()
		if chunk != nil {
			if err := b.AddSourceChunk(chunk); err != nil {
				return err
			}
		}

		if readErr != nil {
			break
		}
	}

	if err := b.FinalizeSource(); err != nil {
		return err
	}

	if err := b.SetTargetSize(uint64(targetSize)); err != nil {
		return err
	}

	if err := drainOutput(b, patchOut); err != nil {
		return err
	}

	tgt := bytestore.NewChunkSource(targetSeq, ingestChunkSize)
	for {
		chunk, readErr := tgt.ReadNext()
		if chunk != nil {
			if err := b.AddTargetChunk(chunk); err != nil {
				return err
			}

			if err := drainOutput(b, patchOut); err != nil {
				return err
			}
		}

		if readErr != nil {
			break
		}
	}

	if err := b.FinalizeTarget(); err != nil {
		return err
	}

	if err := drainOutput(b, patchOut); err != nil {
		return err
	}

	if b.AreFilesIdentical() {
		o.Println("source and target are identical")
	}

	return nil
}

func drainOutput(b *differ.Builder, out *bytestore.FileStore) error {
	for b.HasOutput() {
		chunk := b.FlushOutput(writeBatchSize)
		if _, err := out.Write(chunk); err != nil {
			return fmt.Errorf("writing patch output: %w", err)
		}
	}

	return nil
}
