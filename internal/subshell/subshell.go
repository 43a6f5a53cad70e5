// Package subshell implements spec.md 4.H's subshell execution, in both
// forms oxide's execute/subshell.rs distinguishes: an internal subshell
// (body runs in-process against a cloned environment) and an external
// one (body is handed to a freshly exec'd copy of the shell itself via
// a memfd, matching handle_external_subshell's memfd+execve). mvdan's
// POSIX grammar has no concept of a shebang line inside "( ... )", so
// the external form is not reachable from ordinary parsed input; it is
// exercised instead through cmd/gosh's --subshell flag, which re-execs
// a script body the same way a `#!/path/to/gosh` subshell would have.
package subshell

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/gosh-project/gosh/internal/fdio"
	"github.com/gosh-project/gosh/internal/shellenv"
	"github.com/gosh-project/gosh/internal/shellerr"
)

// RunInternal runs fn against a snapshot of env (spec.md's Open Question
// resolution: clone-on-enter, not journaled rollback) and restores env
// to its pre-subshell state once fn returns, discarding any variable,
// cwd, or open-fd registry changes fn made — matching
// handle_internal_subshell's `*slash = snapshot` restore.
func RunInternal(env *shellenv.ShellEnv, fn func(*shellenv.ShellEnv) (int, error)) (int, error) {
	snap := env.Snapshot()
	cwd, cwdErr := os.Getwd()
	defer func() {
		if cwdErr == nil {
			_ = os.Chdir(cwd)
		}
		env.Restore(snap)
	}()
	return fn(env)
}

// RunExternal renders script into a memfd with a shebang pointing back
// at the current gosh binary, then execve(2)s the /proc/self/fd path,
// the way oxide's handle_external_subshell runs a generated body without
// touching disk. The kernel re-invokes gosh with the fd path as an
// ordinary script argument, so the re-exec'd instance runs the body in
// a fresh process and never loops back here. It does not return on
// success.
func RunExternal(script string, argv []string, env []string) error {
	exe, err := os.Executable()
	if err != nil {
		return shellerr.Io("subshell", err)
	}
	body := script
	if !strings.HasPrefix(body, "#!") {
		body = "#!" + exe + " --no-rc\n" + body
	}

	h, err := fdio.NewMemfd("anonymous_subshell", false)
	if err != nil {
		return shellerr.Io("subshell", err)
	}
	if _, err := h.Write([]byte(body)); err != nil {
		_ = h.Close()
		return shellerr.Io("subshell", err)
	}

	fdPath := h.Path()
	full := append([]string{fdPath}, argv...)

	if err := unix.Exec(fdPath, full, env); err != nil {
		_ = h.Close()
		return shellerr.Io("subshell", err)
	}
	panic("unreachable: unix.Exec returned without error")
}
