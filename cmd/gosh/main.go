// Command gosh is the shell's executable entry point: a thin CLI layer
// wiring internal/config, internal/obslog, internal/engine, and
// internal/editor together. It replaces the teacher's flat cmd/ebash/
// main.go (a one-line delegate to Shell.Run, which only ever read an
// interactive terminal) with one that understands the full external
// interface spec.md §6 names: `gosh`, `gosh -c <string>`, `gosh <script>
// [args...]`, `gosh --subshell <script>`, `gosh --no-rc`, and an
// argv[0][0]=='-' login-shell convention.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/gosh-project/gosh/internal/config"
	"github.com/gosh-project/gosh/internal/editor"
	"github.com/gosh-project/gosh/internal/engine"
	"github.com/gosh-project/gosh/internal/obslog"
	"github.com/gosh-project/gosh/internal/shellenv"
	"github.com/gosh-project/gosh/internal/shellerr"
	"github.com/gosh-project/gosh/internal/subshell"
)

func main() {
	os.Exit(run(os.Args))
}

// invocation is the hand-parsed argv per SPEC_FULL.md §3.1: args after a
// script path (or after "-c <string>") must reach $1..$N byte-for-byte,
// including their own leading '-' ("rm -rf" included), so this cannot go
// through pflag/cobra's flag-vs-positional merging — a general flag
// parser would eat $1's own '-' arguments.
type invocation struct {
	command    string
	scriptPath string
	subshell   bool
	noRC       bool
	login      bool
	args       []string
}

func parseArgs(argv []string) invocation {
	inv := invocation{}
	if len(argv) > 0 && strings.HasPrefix(filepath.Base(argv[0]), "-") {
		inv.login = true
	}
	rest := argv[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "-c":
			if i+1 < len(rest) {
				inv.command = rest[i+1]
				inv.args = rest[i+2:]
			}
			return inv
		case "--subshell":
			inv.subshell = true
		case "--no-rc":
			inv.noRC = true
		default:
			inv.scriptPath = rest[i]
			inv.args = rest[i+1:]
			return inv
		}
	}
	return inv
}

func run(argv []string) int {
	inv := parseArgs(argv)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		cfg = config.Default()
	}

	logger, err := obslog.New(os.TempDir(), cfg.Shell.Debug || os.Getenv("GOSH_DEBUG") == "1")
	if err != nil {
		fmt.Fprintln(os.Stderr, "gosh:", err)
	}
	defer logger.Sync()

	interactive := inv.command == "" && inv.scriptPath == "" && !inv.subshell &&
		term.IsTerminal(int(os.Stdin.Fd()))

	var flags shellenv.Flags
	if interactive {
		flags |= shellenv.Interactive
	}
	if inv.login {
		flags |= shellenv.LoginShell
	}
	if inv.noRC {
		flags |= shellenv.NoRC
	}
	if inv.subshell {
		flags |= shellenv.InSubshell
	}

	ttyFd := -1
	if interactive {
		ttyFd = int(os.Stdin.Fd())
	}

	eng := engine.New(flags, ttyFd, logger)
	defer eng.Jobs.HangupBackground()

	// The shell reassigns terminal ownership around every foreground
	// job; without this it would stop itself on the resulting SIGTTOU.
	signal.Ignore(unix.SIGTTOU)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGQUIT)
	go forwardSignals(sigCh, eng)

	switch {
	case inv.command != "":
		setPositional(eng.Env, "gosh", inv.args)
		return runAndExit(eng, inv.command, "-c")
	case inv.subshell && inv.scriptPath != "":
		// External-subshell path: the body is rendered into a memfd with
		// a shebang pointing back at this binary and execve'd, so the
		// script runs in a process of its own the way an on-disk script
		// with `#!/path/to/gosh` would. Does not return on success.
		src, rerr := os.ReadFile(inv.scriptPath)
		if rerr != nil {
			fmt.Fprintf(os.Stderr, "gosh: %s: %v\n", inv.scriptPath, rerr)
			return 127
		}
		if err := subshell.RunExternal(string(src), inv.args, eng.Env.EnvPairs()); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		// Exec failed; run the body in-process instead.
		setPositional(eng.Env, inv.scriptPath, inv.args)
		return runAndExit(eng, string(src), inv.scriptPath)
	case inv.scriptPath != "":
		src, rerr := os.ReadFile(inv.scriptPath)
		if rerr != nil {
			fmt.Fprintf(os.Stderr, "gosh: %s: %v\n", inv.scriptPath, rerr)
			return 127
		}
		setPositional(eng.Env, inv.scriptPath, inv.args)
		return runAndExit(eng, string(src), inv.scriptPath)
	default:
		return runInteractive(eng, cfg)
	}
}

// runAndExit runs src to completion, honoring an `exit` builtin's
// Control signal (engine.ExitRequested) as the process's exit code;
// otherwise the last command's own status is used, matching spec.md §6.
// A parse error aborts before anything runs, with exit code 2. An exec
// failure (127/126) inside src is reported on stderr by the engine and
// does not abort; its code is the result only when it was the last
// command.
func runAndExit(eng *engine.Engine, src, name string) int {
	code, err := eng.RunString(src, name)
	if exitCode, ok := engine.ExitRequested(err); ok {
		return exitCode
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return shellerr.ExitCode(err)
	}
	return code
}

func setPositional(env *shellenv.ShellEnv, name string, args []string) {
	env.SetVar("0", name)
	env.ClearPosParameters()
	for _, a := range args {
		env.PushPositional(a)
	}
}

// forwardSignals relays SIGINT/SIGQUIT to the foreground job's pgid per
// spec.md §5: "SIGINT during job execution is forwarded to the
// foreground pgid via terminal handling."
func forwardSignals(ch <-chan os.Signal, eng *engine.Engine) {
	for sig := range ch {
		switch sig {
		case unix.SIGINT:
			eng.Jobs.SignalForeground(unix.SIGINT)
		case unix.SIGQUIT:
			eng.Jobs.SignalForeground(unix.SIGQUIT)
		}
	}
}

// runInteractive is the REPL: read (editor.Reader), reap completed
// background jobs, execute, repeat until EOF or `exit`.
func runInteractive(eng *engine.Engine, cfg *config.Config) int {
	rd, err := editor.New(cfg, eng.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gosh:", err)
		return 1
	}
	defer rd.Close()

	for {
		eng.Jobs.Reap()

		line, err := rd.ReadCommand()
		if err != nil {
			switch err {
			case editor.ErrInterrupted:
				continue
			case editor.ErrEOF:
				return eng.Env.LastExit()
			default:
				fmt.Fprintln(os.Stderr, "gosh:", err)
				return 1
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		code, runErr := eng.RunString(line, "")
		if exitCode, ok := engine.ExitRequested(runErr); ok {
			return exitCode
		}
		if runErr != nil {
			fmt.Fprintln(os.Stderr, runErr)
			code = shellerr.ExitCode(runErr)
		}
		eng.Env.SetLastExit(code)
	}
}
