package editor

import (
	"errors"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/gosh-project/gosh/internal/completer"
	"github.com/gosh-project/gosh/internal/config"
	"github.com/gosh-project/gosh/internal/painter"
	"github.com/gosh-project/gosh/internal/prompt"
	"github.com/gosh-project/gosh/internal/shellenv"
)

// ErrEOF is returned by ReadCommand on Ctrl-D with no pending input,
// matching spec.md 7's "SIGQUIT at EOF causes an orderly exit" /
// readline's io.EOF contract (the shell treats plain EOF the same way).
var ErrEOF = errors.New("editor: eof")

// ErrInterrupted is returned by ReadCommand when SIGINT clears the
// in-progress line (spec.md 7: "SIGINT during prompt edits clears the
// line"), so the caller can re-prompt instead of treating it as an error.
var ErrInterrupted = errors.New("editor: interrupted")

// Reader drives the interactive REPL's line reading: multi-line
// continuation (Validate), syntax highlighting (Highlighter), filesystem/
// process/alias completion (internal/completer), and history persistence
// with optional dedupe. It generalizes the teacher's Shell.terminal
// wiring (internal/ebash/ebash.go's boot/Run, which only set
// HistoryFile/HistoryLimit/prompts once at boot) into one that rebuilds
// the completer and prompt every read and supports multi-line input.
type Reader struct {
	term      *readline.Instance
	completer *completer.Completer
	prompt    prompt.Builder
	env       *shellenv.ShellEnv
	lastHist  string
}

// New constructs a Reader from cfg's terminal/prompt settings and env's
// live shell state.
func New(cfg *config.Config, env *shellenv.ShellEnv) (*Reader, error) {
	p := painter.NewPainter(cfg.Prompt)
	r := &Reader{
		completer: completer.New(),
		prompt:    prompt.New(p),
		env:       env,
	}
	term, err := readline.NewEx(&readline.Config{
		HistoryFile:            histFile(env, cfg.Terminal.HistoryFile),
		HistoryLimit:           histLimit(env, cfg.Terminal.HistoryLimit),
		InterruptPrompt:        cfg.Terminal.InterruptPrompt,
		EOFPrompt:              cfg.Terminal.EOFPrompt,
		AutoComplete:           r.completer,
		Painter:                NewHighlighter(env),
		VimMode:                env.GetShopt("edit_mode") != 0,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		return nil, err
	}
	r.term = term
	return r, nil
}

func histLimit(env *shellenv.ShellEnv, fallback int) int {
	if n := env.GetShopt("max_hist"); n > 0 {
		return n
	}
	return fallback
}

// histFile prefers the shell's own $HIST_FILE over the app config's
// history path, so `export HIST_FILE=...` in .goshrc takes effect.
func histFile(env *shellenv.ShellEnv, fallback string) string {
	if v, ok := env.GetVar("HIST_FILE"); ok && v != "" {
		return v
	}
	return fallback
}

// Close releases the underlying terminal.
func (r *Reader) Close() error { return r.term.Close() }

// ReadCommand reads one logical shell command, transparently joining
// continuation lines while Validate reports Incomplete ("Multi-line
// editing continues while Incomplete", spec.md 4.I) and appending the
// finished command to history (spec.md 6's "Persisted state", with
// hist_ignore_dupes/auto_hist shopt gating).
func (r *Reader) ReadCommand() (string, error) {
	r.completer.Update(r.env)
	r.term.SetPrompt(r.prompt.Render(r.env))

	var buf strings.Builder
	for {
		line, err := r.term.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if buf.Len() == 0 {
					return "", ErrInterrupted
				}
				buf.Reset()
				r.term.SetPrompt(r.prompt.Render(r.env))
				continue
			}
			if errors.Is(err, io.EOF) {
				return "", ErrEOF
			}
			return "", err
		}

		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)

		src := buf.String()
		if strings.TrimSpace(src) == "" {
			return "", nil
		}

		switch Validate(src).Status {
		case Incomplete:
			r.term.SetPrompt("> ")
			continue
		default: // Valid or Invalid: hand off to the engine, which owns
			// parse-error reporting for the Invalid case.
			r.saveHistory(src)
			return src, nil
		}
	}
}

// saveHistory appends src to the history file, skipping an immediate
// repeat when hist_ignore_dupes is set, and skipping entirely when
// auto_hist is off.
func (r *Reader) saveHistory(src string) {
	if r.env.GetShopt("auto_hist") == 0 {
		return
	}
	if r.env.GetShopt("hist_ignore_dupes") != 0 && src == r.lastHist {
		return
	}
	r.lastHist = src
	_ = r.term.SaveHistory(src)
}
