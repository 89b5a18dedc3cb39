package cli_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/odb/internal/cli"
	"github.com/calvinalkan/odb/internal/packtest"
	"github.com/calvinalkan/odb/pkg/odb/alternate"
)

func Test_Invalid_Global_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("--invalid-flag", "status")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "unknown flag")
	cli.AssertContains(t, stderr, "--invalid-flag")
	cli.AssertContains(t, stderr, "Global flags:")
	cli.AssertContains(t, stderr, "--objects-dir")
}

func Test_Global_Flag_Without_Value_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--config")

	cli.AssertContains(t, stderr, "flag requires an argument")
}

func Test_Main_Help_When_Invoked(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{{}, {"--help"}, {"-h"}} {
		c := cli.NewCLI(t)
		stdout := c.MustRun(args...)

		for _, cmd := range []string{"status", "snapshot", "alternates", "metrics", "repl", "print-config"} {
			cli.AssertContains(t, stdout, "  "+cmd)
		}
	}
}

func Test_Unknown_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("frobnicate")

	cli.AssertContains(t, stderr, "unknown command: frobnicate")
}

func Test_Command_Help_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("snapshot", "--help")

	cli.AssertContains(t, stdout, "Usage: odbx [global flags] snapshot [--verify]")
	cli.AssertContains(t, stdout, "Run 'odbx --help' for global flags.")
	cli.AssertContains(t, stdout, "--verify")
}

func Test_Invalid_Command_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, code := c.Run("status", "--bogus")

	if code != 1 {
		t.Fatalf("exitCode=%d, want=1", code)
	}

	if stdout != "" {
		t.Fatalf("stdout=%q, want empty", stdout)
	}

	cli.AssertContains(t, stderr, "unknown flag: --bogus")
	cli.AssertContains(t, stderr, "Usage: odbx [global flags] status")
}

func Test_Command_Rejects_Extra_Arguments_Before_Opening_Store(t *testing.T) {
	t.Parallel()

	// No objects dir exists; the argument check has to fail first.
	c := cli.NewCLI(t)
	stderr := c.MustFail("status", "extra", "args")

	cli.AssertContains(t, stderr, "unexpected arguments: extra args")
	cli.AssertNotContains(t, stderr, "objects directory")
	cli.AssertContains(t, stderr, "Usage: odbx [global flags] status")
}

func Test_Status_Prints_Counters_When_Repo_Has_Packs(t *testing.T) {
	t.Parallel()

	c, repo := cli.NewRepoCLI(t, "a", "b")
	stdout := c.MustRun("status")

	cli.AssertContains(t, stdout, "objects_dir="+repo.ObjectsDir)
	cli.AssertContains(t, stdout, "generation=0")
	cli.AssertContains(t, stdout, "state_id=1")
	cli.AssertContains(t, stdout, "indices=2")
	cli.AssertContains(t, stdout, "loose_dbs=1")
	cli.AssertContains(t, stdout, "slots_loaded=2")
	cli.AssertContains(t, stdout, "consolidations=1")
}

func Test_Status_Fails_When_Objects_Dir_Is_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("status")

	cli.AssertContains(t, stderr, "objects directory")
}

func Test_Status_Logs_Consolidation_When_Log_Level_Is_Debug(t *testing.T) {
	t.Parallel()

	c, _ := cli.NewRepoCLI(t, "a")
	_, stderr, code := c.Run("--log-level", "debug", "status")

	if code != 0 {
		t.Fatalf("exitCode=%d, want=0\nstderr: %s", code, stderr)
	}

	cli.AssertContains(t, stderr, "odb: consolidated disk state")
	cli.AssertContains(t, stderr, "level=DEBUG")
}

func Test_Snapshot_Lists_Indices_In_Search_Order_When_Invoked(t *testing.T) {
	t.Parallel()

	c, repo := cli.NewRepoCLI(t, "a", "b")
	repo.AddMultiIndex(3, "a", "b")
	repo.AddPack("c", 4)

	stdout := c.MustRun("snapshot", "--verify")
	lines := strings.Split(stdout, "\n")

	if got, want := len(lines), 3; got != want {
		t.Fatalf("lines=%d, want=%d\n%s", got, want, stdout)
	}

	cli.AssertContains(t, lines[0], "\tmulti\t3\t"+repo.MultiIndexPath())
	cli.AssertContains(t, lines[1], "\tpack\t4\t"+repo.IndexPath("c"))
	cli.AssertContains(t, lines[2], "-\tloose\t-\t"+repo.ObjectsDir)
}

func Test_Snapshot_Warns_When_Pack_Is_Missing(t *testing.T) {
	t.Parallel()

	c, repo := cli.NewRepoCLI(t, "a")

	if err := os.Remove(repo.PackPath("a")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	stdout, warnings := c.MustWarn("snapshot", "--verify")

	cli.AssertContains(t, stdout, repo.IndexPath("a"))

	if len(warnings) != 1 {
		t.Fatalf("warnings=%q, want exactly one", warnings)
	}

	cli.AssertContains(t, warnings[0], " pack 0: ")
	cli.AssertContains(t, warnings[0], repo.PackPath("a"))
	cli.AssertContains(t, warnings[0], "repack or remove the damaged pack")

	// Without --verify packs are never opened.
	c.MustRun("snapshot")
}

func Test_Snapshot_Ignores_MultiPackIndex_When_Disabled_By_Config(t *testing.T) {
	t.Parallel()

	c, repo := cli.NewRepoCLI(t, "a", "b")
	repo.AddMultiIndex(3, "a", "b")
	writeFile(t, filepath.Join(c.Dir, ".odbx.json"), `{"multi_pack_index": false}`)

	stdout := c.MustRun("snapshot")

	cli.AssertNotContains(t, stdout, "multi")
	cli.AssertContains(t, stdout, repo.IndexPath("a"))
	cli.AssertContains(t, stdout, repo.IndexPath("b"))
}

func Test_Alternates_Adds_And_Lists_When_Invoked(t *testing.T) {
	t.Parallel()

	c, repo := cli.NewRepoCLI(t, "a")

	shared := packtest.NewRepoAt(t, filepath.Join(c.Dir, "shared"))

	if got := c.MustRun("alternates"); got != "" {
		t.Fatalf("alternates=%q, want empty", got)
	}

	c.MustRun("alternates", "add", shared.ObjectsDir)
	c.MustRun("alternates", "add", shared.ObjectsDir)

	if got, want := c.MustRun("alternates"), shared.ObjectsDir; got != want {
		t.Fatalf("alternates=%q, want=%q", got, want)
	}

	content, err := os.ReadFile(filepath.Join(repo.ObjectsDir, alternate.FileName))
	if err != nil {
		t.Fatalf("read alternates: %v", err)
	}

	if got, want := string(content), shared.ObjectsDir+"\n"; got != want {
		t.Fatalf("alternates file=%q, want=%q", got, want)
	}

	stdout := c.MustRun("status")
	cli.AssertContains(t, stdout, "loose_dbs=2")

	stderr := c.MustFail("alternates", "remove", "x")
	cli.AssertContains(t, stderr, "unexpected arguments")
}

func Test_Metrics_Prints_Prometheus_Text_When_Invoked(t *testing.T) {
	t.Parallel()

	c, _ := cli.NewRepoCLI(t, "a", "b")
	stdout := c.MustRun("metrics")

	cli.AssertContains(t, stdout, "# TYPE odb_disk_consolidations_total counter")
	cli.AssertContains(t, stdout, "odb_disk_consolidations_total 1")
	cli.AssertContains(t, stdout, "odb_listed_slots 2")
	cli.AssertContains(t, stdout, `odb_slots{state="loaded"} 2`)
	cli.AssertContains(t, stdout, "odb_handles 1")
}

func Test_Repl_Runs_Commands_From_Input_When_Not_A_Terminal(t *testing.T) {
	t.Parallel()

	c, repo := cli.NewRepoCLI(t, "a")

	input := strings.Join([]string{
		"refresh",
		"refresh",
		"ls",
		"pin",
		"release",
		"stats",
		"bogus",
		"help",
		"quit",
		"refresh",
	}, "\n")

	stdout, stderr, code := c.RunWithInput(input, "repl")
	if code != 0 {
		t.Fatalf("exitCode=%d, want=0\nstderr: %s", code, stderr)
	}

	cli.AssertContains(t, stdout, "replace generation=0 state_id=1 indices=1")
	cli.AssertContains(t, stdout, "no change")
	cli.AssertContains(t, stdout, "\tpack\t"+repo.IndexPath("a"))
	cli.AssertContains(t, stdout, "pinned")
	cli.AssertContains(t, stdout, "not allowed")
	cli.AssertContains(t, stdout, "handles=1 stable=1")
	cli.AssertContains(t, stdout, `unknown command "bogus"`)
	cli.AssertContains(t, stdout, "Bye!")

	// Nothing after quit runs.
	if got := strings.Count(stdout, "no change"); got != 1 {
		t.Fatalf("no change count=%d, want=1", got)
	}
}

func Test_Repl_Exits_When_Input_Ends(t *testing.T) {
	t.Parallel()

	c, _ := cli.NewRepoCLI(t)

	stdout, _, code := c.RunWithInput("ls\n", "repl")
	if code != 0 {
		t.Fatalf("exitCode=%d, want=0", code)
	}

	cli.AssertContains(t, stdout, "no snapshot yet")
	cli.AssertContains(t, stdout, "Bye!")
}
