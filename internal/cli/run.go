// Package cli implements the patchly command-line interface: global flag
// parsing, config resolution, and dispatch to the diff/apply/inspect/stat
// subcommands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/hutomosaktikartiko/patchly/internal/config"
)

// Run is the process entry point. sigCh may be nil when signal handling
// isn't needed (tests).
func Run(_ io.Reader, out, errOut io.Writer, args []string, env []string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("patchly", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})

	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagBlockSize := globalFlags.Int("block-size", 0, "Override block size B")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	workDir := *flagCwd
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fprintln(errOut, "error:", err)

			return 1
		}

		workDir = wd
	}

	cfg, _, err := config.Load(workDir, *flagConfig, config.Config{BlockSize: *flagBlockSize}, env)
	if err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	commands := allCommands(cfg)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, commands)

		return 0
	}

	if len(commandAndArgs) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, commands)

		return 1
	}

	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return 1
	}

	cmdIO := NewIO(out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, cmdIO, commandAndArgs[1:])
	}()

	select {
	case exitCode := <-done:
		return exitCode
	case <-sigCh:
		fprintln(errOut, "shutting down with 5s timeout...")
		cancel()
	}

	select {
	case <-done:
		fprintln(errOut, "graceful shutdown ok (130)")

		return 130
	case <-time.After(5 * time.Second):
		fprintln(errOut, "graceful shutdown timed out, forced exit (130)")

		return 130
	case <-sigCh:
		fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")

		return 130
	}
}

func allCommands(cfg config.Config) []*Command {
	return []*Command{
		DiffCmd(cfg),
		ApplyCmd(),
		InspectCmd(),
		StatCmd(),
		PrintConfigCmd(cfg),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

const globalOptionsHelp = `  -h, --help             Show help
  -C, --cwd <dir>        Run as if started in <dir>
  -c, --config <file>    Use specified config file
  --block-size <n>       Override block size B`

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Usage: patchly [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Run 'patchly --help' for a list of commands.")
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "patchly - a streaming binary diff/patch engine")
	fprintln(w)
	fprintln(w, "Usage: patchly [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
