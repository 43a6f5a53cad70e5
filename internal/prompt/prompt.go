// Package prompt builds the interactive shell prompt string. It is
// generalized from the teacher's free-standing prompt.Update (which read
// os.Getwd/os.UserHomeDir directly) into a Builder that renders from the
// shell's own ShellEnv PWD/HOME (spec.md 4.B), so the prompt reflects the
// shell's bookkeeping rather than the OS's process-wide view, and honors
// the trunc_prompt_path shopt (spec.md 4.B default 4).
package prompt

import (
	"strings"

	"github.com/gosh-project/gosh/internal/painter"
	"github.com/gosh-project/gosh/internal/shellenv"
)

// DefaultPrompt is used when PWD cannot be resolved at all.
const DefaultPrompt = "$ "

// Builder renders prompt strings using a fixed color theme.
type Builder struct {
	Painter painter.Painter
}

// New returns a Builder painting with p.
func New(p painter.Painter) Builder {
	return Builder{Painter: p}
}

// Render builds the prompt for env's current state: PWD with HOME
// abbreviated as "~", truncated to the last N path components when the
// trunc_prompt_path shopt is positive, colored per the configured theme.
func (b Builder) Render(env *shellenv.ShellEnv) string {
	pwd, ok := env.GetVar("PWD")
	if !ok || pwd == "" {
		return DefaultPrompt
	}
	display := pwd
	if home, ok := env.GetVar("HOME"); ok && home != "" && strings.HasPrefix(pwd, home) {
		display = "~" + strings.TrimPrefix(pwd, home)
	}
	if n := env.GetShopt("trunc_prompt_path"); n > 0 {
		display = truncate(display, n)
	}
	painted := b.Painter.Paint(b.Painter.PathBold, b.Painter.PathColour, display)
	return painted + " $ "
}

// truncate keeps at most the last n '/'-separated components of p,
// prefixing ".../" when components were dropped.
func truncate(p string, n int) string {
	trimmed := strings.TrimPrefix(p, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) <= n {
		return p
	}
	return ".../" + strings.Join(parts[len(parts)-n:], "/")
}
