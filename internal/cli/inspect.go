package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/hutomosaktikartiko/patchly/internal/bytestore"
	"github.com/hutomosaktikartiko/patchly/internal/patch"
)

// InspectCmd opens an interactive stepper over a patch container's
// instruction stream, for debugging what a diff produced.
func InspectCmd() *Command {
	flags := flag.NewFlagSet("inspect", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "inspect <patch-file>",
		Short: "Interactively step through a patch's instruction stream",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: expected <patch-file>", errUsage)
			}

			return runInspect(o, args[0])
		},
	}
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".patchly_history")
}

// inspector holds the REPL's state over one open patch container.
type inspector struct {
	o      *IO
	store  *bytestore.FileStore
	dec    *patch.Decoder
	header patch.Header
	index  int
	line   *liner.State
}

func runInspect(o *IO, patchPath string) error {
	f, err := bytestore.OpenFileStore(patchPath)
	if err != nil {
		return fmt.Errorf("opening patch file: %w", err)
	}
	defer func() { _ = f.Close() }()

	size, err := f.Size()
	if err != nil {
		return fmt.Errorf("stat patch file: %w", err)
	}

	headerBuf := make([]byte, patch.HeaderSize)
	if _, err := f.ReadAt(headerBuf, 0); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	hdr, err := patch.ParseHeader(headerBuf)
	if err != nil {
		return err
	}

	insp := &inspector{
		o:      o,
		store:  f,
		dec:    patch.NewDecoder(f, patch.HeaderSize, size),
		header: hdr,
	}

	return insp.run()
}

func (r *inspector) run() error {
	r.line = liner.NewLiner()
	defer r.line.Close() //nolint:errcheck // best-effort cleanup on exit

	r.line.SetCtrlCAborts(true)

	if histPath := historyFilePath(); histPath != "" {
		if f, err := os.Open(histPath); err == nil { //nolint:gosec // fixed, user-home-relative path
			_, _ = r.line.ReadHistory(f)
			_ = f.Close()
		}
	}

	r.o.Printf("patchly inspect (source=%d bytes, target=%d bytes)\n", r.header.SourceSize, r.header.TargetSize)
	r.o.Println("Type 'help' for commands.")

	for {
		line, err := r.line.Prompt("patchly> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				r.o.Println("bye")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.line.AppendHistory(line)

		if r.dispatch(strings.Fields(line)) {
			break
		}
	}

	r.saveHistory()

	return nil
}

// dispatch executes one REPL command, returning true when the loop should exit.
func (r *inspector) dispatch(parts []string) bool {
	switch strings.ToLower(parts[0]) {
	case "exit", "quit", "q":
		return true
	case "help", "?":
		r.printHelp()
	case "next", "n":
		r.cmdNext()
	case "header":
		r.cmdHeader()
	case "rest":
		r.cmdRest()
	default:
		r.o.Println("unknown command (type 'help')")
	}

	return false
}

func (r *inspector) printHelp() {
	r.o.Println("  next, n     Show the next instruction")
	r.o.Println("  rest        Summarize every remaining instruction")
	r.o.Println("  header      Reprint the patch header")
	r.o.Println("  exit, q     Exit")
}

func (r *inspector) cmdHeader() {
	r.o.Printf("source_size=%d source_digest=%#016x target_size=%d\n",
		r.header.SourceSize, r.header.SourceDigest, r.header.TargetSize)
}

func (r *inspector) cmdNext() {
	if r.dec.Done() {
		r.o.Println("(end of instruction stream)")

		return
	}

	inst, err := r.dec.NextInstruction()
	if err != nil {
		r.o.Println("error:", err)

		return
	}

	r.printInstruction(r.index, inst)
	r.index++
}

func (r *inspector) cmdRest() {
	for !r.dec.Done() {
		inst, err := r.dec.NextInstruction()
		if err != nil {
			r.o.Println("error:", err)

			return
		}

		r.printInstruction(r.index, inst)
		r.index++
	}
}

func (r *inspector) printInstruction(idx int, inst patch.Instruction) {
	switch inst.Op {
	case patch.OpCopy:
		r.o.Printf("#%-5d COPY  src_off=%-10d len=%d\n", idx, inst.SrcOff, inst.Len)
	case patch.OpInsert:
		r.o.Printf("#%-5d INSERT len=%d\n", idx, inst.Len)
	}
}

func (r *inspector) saveHistory() {
	path := historyFilePath()
	if path == "" {
		return
	}

	f, err := os.Create(path) //nolint:gosec // fixed, user-home-relative path
	if err != nil {
		return
	}

	_, _ = r.line.WriteHistory(f)
	_ = f.Close()
}
