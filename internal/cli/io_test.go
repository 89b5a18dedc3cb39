package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestIO() (*IO, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer

	return NewIO(nil, &out, &errOut), &out, &errOut
}

func Test_IO_Prints_Warnings_Before_And_After_Output_When_Warned_Early(t *testing.T) {
	t.Parallel()

	o, out, errOut := newTestIO()

	o.Warn("slot 3 pack 0: missing", "repack")
	o.KV("indices", 2)
	o.Row(3, "pack", "/objects/pack/pack-a.idx")

	if got, want := o.Finish(), 1; got != want {
		t.Fatalf("Finish()=%d, want %d", got, want)
	}

	if diff := cmp.Diff("indices=2\n3\tpack\t/objects/pack/pack-a.idx\n", out.String()); diff != "" {
		t.Fatalf("stdout mismatch (-want +got):\n%s", diff)
	}

	want := "warning: slot 3 pack 0: missing: repack\nwarning: slot 3 pack 0: missing: repack\n"
	if diff := cmp.Diff(want, errOut.String()); diff != "" {
		t.Fatalf("stderr mismatch (-want +got):\n%s", diff)
	}
}

func Test_IO_Prints_Late_Warning_Once_When_Output_Already_Started(t *testing.T) {
	t.Parallel()

	o, _, errOut := newTestIO()

	o.Row("-", "loose", "-", "/objects")
	o.Warn("late", "fix it")

	if got, want := o.Finish(), 1; got != want {
		t.Fatalf("Finish()=%d, want %d", got, want)
	}

	if diff := cmp.Diff("warning: late: fix it\n", errOut.String()); diff != "" {
		t.Fatalf("stderr mismatch (-want +got):\n%s", diff)
	}
}

func Test_IO_Finish_Returns_Zero_When_Nothing_Was_Warned(t *testing.T) {
	t.Parallel()

	o, _, errOut := newTestIO()
	o.Println("ok")

	if got := o.Finish(); got != 0 {
		t.Fatalf("Finish()=%d, want 0", got)
	}

	if errOut.Len() != 0 {
		t.Fatalf("stderr=%q, want empty", errOut.String())
	}
}

func Test_Command_Run_Exits_130_When_Context_Is_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := &Command{
		Usage: "wait",
		Exec: func(ctx context.Context, _ *IO, _ []string) error {
			<-ctx.Done()

			return ctx.Err()
		},
	}

	o, _, errOut := newTestIO()

	if got, want := cmd.Run(ctx, o, nil), exitInterrupted; got != want {
		t.Fatalf("Run()=%d, want %d", got, want)
	}

	if diff := cmp.Diff("interrupted\n", errOut.String()); diff != "" {
		t.Fatalf("stderr mismatch (-want +got):\n%s", diff)
	}
}

func Test_Command_Run_Prints_Error_When_Exec_Fails(t *testing.T) {
	t.Parallel()

	cmd := &Command{
		Usage: "boom",
		Exec: func(context.Context, *IO, []string) error {
			return errors.New("boom failed")
		},
	}

	o, _, errOut := newTestIO()

	if got := cmd.Run(context.Background(), o, nil); got != 1 {
		t.Fatalf("Run()=%d, want 1", got)
	}

	if diff := cmp.Diff("error: boom failed\n", errOut.String()); diff != "" {
		t.Fatalf("stderr mismatch (-want +got):\n%s", diff)
	}
}
