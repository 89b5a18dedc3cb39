package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/odb/pkg/odb"
)

// lineReader is the part of liner the REPL needs, so tests can feed
// lines without a terminal.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// scanReader reads lines from a plain reader.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return r.sc.Text(), nil
}

func (*scanReader) AppendHistory(string) {}

func (*scanReader) Close() error { return nil }

func (a *app) replCommand() *Command {
	return &Command{
		Flags: flag.NewFlagSet("repl", flag.ContinueOnError),
		Usage: "repl",
		Short: "Interactive session on one store handle",
		Long: `Start an interactive session with one handle on the store.

Commands:
  refresh        Ask the store for anything newer than the last snapshot
  ls             List the indices of the current snapshot
  stats          Show store counters
  pin            Make the handle require stable slot ids
  release        Drop mapped pack data if allowed
  help           Show this help
  exit / quit    Leave the session`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			store, err := odb.Open(a.cfg.StoreOptions(a.log))
			if err != nil {
				return err
			}

			r := &repl{store: store, h: store.NewHandle(a.cfg.RefreshMode), o: o}
			defer func() { _ = r.h.Close() }()

			lines := newLineReader(o.in)
			defer func() { _ = lines.Close() }()

			return r.run(ctx, lines)
		},
	}
}

// newLineReader uses liner on the process terminal and a scanner
// everywhere else.
func newLineReader(in io.Reader) lineReader {
	if f, ok := in.(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)

		if f, err := os.Open(historyFile()); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}

		return &linerReader{State: state}
	}

	if in == nil {
		in = strings.NewReader("")
	}

	return &scanReader{sc: bufio.NewScanner(in)}
}

// linerReader saves history on Close.
type linerReader struct {
	*liner.State
}

func (l *linerReader) Close() error {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = l.WriteHistory(f)
			_ = f.Close()
		}
	}

	return l.State.Close()
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".odbx_history")
}

type repl struct {
	store *odb.Store
	h     *odb.Handle
	o     *IO
}

func (r *repl) run(ctx context.Context, lines lineReader) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := lines.Prompt("odbx> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				r.o.Println("Bye!")

				return nil
			}

			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		lines.AppendHistory(line)

		switch cmd := strings.ToLower(strings.Fields(line)[0]); cmd {
		case "exit", "quit", "q":
			r.o.Println("Bye!")

			return nil
		case "help", "?":
			r.o.Println("refresh | ls | stats | pin | release | help | exit")
		case "refresh":
			r.cmdRefresh()
		case "ls":
			r.cmdList()
		case "stats":
			r.cmdStats()
		case "pin":
			r.h.PreventPackUnload()
			r.o.Println("pinned: slot ids stay stable until exit")
		case "release":
			n, ok := r.store.ReleasePackData()
			if !ok {
				r.o.Println("not allowed: a handle requires stable ids")

				continue
			}

			r.o.Printf("released %d pack(s)\n", n)
		default:
			r.o.Printf("unknown command %q (try help)\n", cmd)
		}
	}
}

func (r *repl) cmdRefresh() {
	out, err := r.h.Refresh()
	if err != nil {
		r.o.Println("error:", err)

		return
	}

	if out == nil {
		r.o.Println("no change")

		return
	}

	m := out.Snapshot.Marker
	r.o.Printf("%s generation=%d state_id=%d indices=%d\n", out.Kind, m.Generation, m.StateID, len(out.Snapshot.Indices))
}

func (r *repl) cmdList() {
	snap := r.h.Snapshot()
	if snap == nil {
		r.o.Println("no snapshot yet (run refresh)")

		return
	}

	for _, l := range snap.Indices {
		if l.Kind == odb.LookupMulti {
			r.o.Row(l.ID, "multi", l.Multi.Path())

			continue
		}

		r.o.Row(l.ID, "pack", l.Index.Path())
	}
}

func (r *repl) cmdStats() {
	st := r.store.Stats()
	r.o.Printf("handles=%d stable=%d generation=%d state_id=%d listed=%d mapped=%d\n",
		st.Handles, st.StableHandles, st.Generation, st.StateID, st.ListedSlots, st.PacksMapped)
}
