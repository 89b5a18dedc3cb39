package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/calvinalkan/odb/pkg/odb"
)

const (
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
	helpFlag     = "--help"
)

// Run is the main entry point. Returns exit code.
//
// A value on sigCh cancels the context handed to the running command.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) < 2 {
		printUsage(out)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printUsage(errOut)

		return 1
	}

	if len(flags.remaining) == 0 || flags.remaining[0] == helpFlag || flags.remaining[0] == "-h" {
		printUsage(out)

		return 0
	}

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride:    flags.workDir,
		ConfigPath:         flags.configPath,
		ObjectsDirOverride: flags.objectsDir,
		LogLevelOverride:   flags.logLevel,
		Env:                env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printUsage(errOut)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	a := &app{
		cfg: cfg,
		log: slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.Level})),
	}

	name := flags.remaining[0]

	for _, cmd := range a.commands() {
		if cmd.Name() == name {
			return cmd.Run(ctx, NewIO(stdin, out, errOut), flags.remaining[1:])
		}
	}

	fprintln(errOut, "error:", fmt.Errorf("%w: %s", ErrUnknownCommand, name))
	printUsage(errOut)

	return 1
}

// app carries what every command needs.
type app struct {
	cfg Config
	log *slog.Logger
}

func (a *app) commands() []*Command {
	return []*Command{
		a.statusCommand(),
		a.snapshotCommand(),
		a.alternatesCommand(),
		a.metricsCommand(),
		a.replCommand(),
		a.printConfigCommand(),
	}
}

// openStore opens the configured store and takes its first snapshot.
func (a *app) openStore() (*odb.Store, *odb.Handle, error) {
	store, err := odb.Open(a.cfg.StoreOptions(a.log))
	if err != nil {
		return nil, nil, err
	}

	h := store.NewHandle(a.cfg.RefreshMode)

	_, err = h.Refresh()
	if err != nil {
		_ = h.Close()

		return nil, nil, err
	}

	return store, h, nil
}

type globalFlags struct {
	workDir    string
	configPath string
	objectsDir *string
	logLevel   string
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag tries to parse a flag at args[idx]. Returns number of args consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	// valueOf handles "--name value" and "--name=value" for a flag with
	// an optional short form.
	valueOf := func(short, long string) (string, int, bool, error) {
		if arg == long || (short != "" && arg == short) {
			if idx+1 >= len(args) {
				return "", consumedNone, true, fmt.Errorf("%w: %s", ErrFlagRequiresArg, arg)
			}

			return args[idx+1], consumedTwo, true, nil
		}

		if after, ok := strings.CutPrefix(arg, long+"="); ok {
			return after, consumedOne, true, nil
		}

		return "", consumedNone, false, nil
	}

	for _, f := range []struct {
		short, long string
		set         func(string)
	}{
		{"-C", "--cwd", func(v string) { flags.workDir = v }},
		{"-c", "--config", func(v string) { flags.configPath = v }},
		{"-o", "--objects-dir", func(v string) { flags.objectsDir = &v }},
		{"", "--log-level", func(v string) { flags.logLevel = v }},
	} {
		value, consumed, matched, err := valueOf(f.short, f.long)
		if err != nil {
			return consumedNone, err
		}

		if matched {
			f.set(value)

			return consumed, nil
		}
	}

	// -h/--help flags
	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	// Unknown flag
	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("%w: %s", ErrUnknownFlag, arg)
	}

	// Not a flag
	return consumedNone, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer) {
	fprintln(w, `odbx - inspect the pack indices of an object database

Usage: odbx [global flags] <command> [args]

Global flags:
  -C, --cwd <dir>            Run as if started in <dir>
  -c, --config <file>        Use specified config file
  -o, --objects-dir <dir>    Objects directory (default .git/objects)
      --log-level <level>    debug, info, warn or error
  -h, --help                 Show this help

Commands:`)

	for _, cmd := range (&app{}).commands() {
		fprintln(w, cmd.HelpLine())
	}
}
