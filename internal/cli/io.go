package cli

import (
	"fmt"
	"io"
	"strings"
)

// warning is a problem found while producing output, with the fix the
// user should apply.
type warning struct {
	issue string
	fix   string
}

func (w warning) String() string {
	return w.issue + ": " + w.fix
}

// IO is the output side of one odbx command.
//
// stdout carries machine-readable results: key=value lines from [IO.KV]
// and tab-separated rows from [IO.Row]. stderr carries errors, logs and
// warnings. Warnings are repeated before the first stdout write and after
// the command, so a reader piping stdout through head or tail still sees
// them, and any warning makes the command exit 1.
type IO struct {
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	warnings []warning
	started  bool
}

// NewIO creates a new IO instance.
func NewIO(in io.Reader, out, errOut io.Writer) *IO {
	return &IO{in: in, out: out, errOut: errOut}
}

// Warn records that issue needs fix. Output continues.
func (o *IO) Warn(issue string, fix string) {
	o.warnings = append(o.warnings, warning{issue: issue, fix: fix})
}

// KV writes one key=value line.
func (o *IO) KV(key string, value any) {
	o.Printf("%s=%v\n", key, value)
}

// Row writes cols separated by tabs. Fields never contain tabs (paths
// with tabs are not valid pack names).
func (o *IO) Row(cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}

	o.Println(strings.Join(parts, "\t"))
}

// Println writes to stdout.
func (o *IO) Println(a ...any) {
	o.flushWarnings()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout.
func (o *IO) Printf(format string, a ...any) {
	o.flushWarnings()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln writes to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Out returns the stdout writer for encoders that stream directly.
func (o *IO) Out() io.Writer {
	o.flushWarnings()

	return o.out
}

// Finish prints every warning to stderr and returns the exit code: 1 if
// anything was warned about, 0 otherwise.
func (o *IO) Finish() int {
	o.flushWarnings()

	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}

	if len(o.warnings) > 0 {
		return 1
	}

	return 0
}

// flushWarnings prints the warnings recorded before the first stdout
// write. Later warnings only appear in the Finish summary.
func (o *IO) flushWarnings() {
	if o.started {
		return
	}

	o.started = true

	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}
}
