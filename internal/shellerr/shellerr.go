// Package shellerr defines the error taxonomy shared by every engine
// component: Parse, Expansion, Io, Exec, Builtin, Internal, and the
// non-error control signals (return/break/continue) that unwind to a
// matching construct instead of aborting the shell.
package shellerr

import "fmt"

// Kind classifies a shell error for reporting and exit-code purposes.
type Kind int

const (
	KindParse Kind = iota
	KindExpansion
	KindIo
	KindExec
	KindBuiltin
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "Parse"
	case KindExpansion:
		return "Expansion"
	case KindIo:
		return "Io"
	case KindExec:
		return "Exec"
	case KindBuiltin:
		return "Builtin"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// ShellError is the concrete error type carried through the engine. Code
// is the exit status a non-interactive shell should adopt if this error
// goes unhandled; Cmd names the offending command when known.
type ShellError struct {
	Kind Kind
	Cmd  string
	Code int
	Err  error
}

func (e *ShellError) Error() string {
	if e.Cmd != "" {
		return fmt.Sprintf("gosh: %s: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("gosh: %v", e.Err)
}

func (e *ShellError) Unwrap() error { return e.Err }

func New(kind Kind, code int, cmd string, err error) *ShellError {
	return &ShellError{Kind: kind, Cmd: cmd, Code: code, Err: err}
}

func Parsef(format string, args ...any) *ShellError {
	return &ShellError{Kind: KindParse, Code: 2, Err: fmt.Errorf(format, args...)}
}

func Expansionf(format string, args ...any) *ShellError {
	return &ShellError{Kind: KindExpansion, Code: 2, Err: fmt.Errorf(format, args...)}
}

func Io(cmd string, err error) *ShellError {
	return &ShellError{Kind: KindIo, Code: 1, Cmd: cmd, Err: err}
}

// NotFound builds the "command not found" (127) exec error, kept
// distinguishable from other Exec failures the way oxide's
// source_file special-cases it.
func NotFound(cmd string) *ShellError {
	return &ShellError{Kind: KindExec, Code: 127, Cmd: cmd, Err: fmt.Errorf("command not found")}
}

// NotExecutable builds the "found but not executable" (126) exec error.
func NotExecutable(cmd string, err error) *ShellError {
	return &ShellError{Kind: KindExec, Code: 126, Cmd: cmd, Err: err}
}

func Builtinf(name, format string, args ...any) *ShellError {
	return &ShellError{Kind: KindBuiltin, Code: 2, Cmd: name, Err: fmt.Errorf(format, args...)}
}

func Internalf(format string, args ...any) *ShellError {
	return &ShellError{Kind: KindInternal, Code: 70, Err: fmt.Errorf(format, args...)}
}

// ExitCode extracts the exit status an unhandled error should produce,
// defaulting to 1 for plain errors that never went through this package.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if se, ok := err.(*ShellError); ok {
		return se.Code
	}
	return 1
}

// Control is the non-error propagation vehicle for return/break/continue
// and exit. It is returned alongside a nil *ShellError by statements that
// need to unwind to the nearest matching construct (loop body, function
// call, or the top-level REPL/script runner for exit) rather than report
// a failure.
type Control struct {
	Kind  ControlKind
	Code  int // for Return/Exit: the function's or shell's exit status
	Depth int // for Break/Continue: how many enclosing loops to unwind (N in `break N`)
}

type ControlKind int

const (
	ControlReturn ControlKind = iota
	ControlBreak
	ControlContinue
	// ControlExit carries the `exit` builtin's request all the way up to
	// the top-level runner, distinct from ControlReturn so a bare
	// top-level `return` (a builtin error, spec.md 4.F) is never
	// confused with `exit` silently terminating the shell.
	ControlExit
)

func (c *Control) Error() string {
	switch c.Kind {
	case ControlReturn:
		return "return outside function"
	case ControlBreak:
		return "break outside loop"
	case ControlExit:
		return "exit"
	default:
		return "continue outside loop"
	}
}
