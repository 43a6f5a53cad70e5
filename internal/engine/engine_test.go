package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosh-project/gosh/internal/shellenv"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(shellenv.NoRC, -1, nil)
}

func TestRunStringSimpleCommand(t *testing.T) {
	e := newTestEngine(t)
	code, err := e.RunString("true", "test")
	require.NoError(t, err)
	require.Equal(t, 0, code)

	code, err = e.RunString("false", "test")
	require.NoError(t, err)
	require.Equal(t, 1, code)
}

func TestRunStringExitPropagatesAsControlExit(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.RunString("exit 5", "test")
	code, ok := ExitRequested(err)
	require.True(t, ok)
	require.Equal(t, 5, code)
}

func TestRunStringExitInsideConditionalPropagates(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.RunString("if true; then exit 3; fi", "test")
	code, ok := ExitRequested(err)
	require.True(t, ok)
	require.Equal(t, 3, code)
}

func TestRunStringBareReturnIsReportedNotFatal(t *testing.T) {
	e := newTestEngine(t)
	code, err := e.RunString("return 2", "test")
	// A bare top-level return is a builtin error (spec.md 4.F), not an
	// exit request: it must not be confused with ExitRequested.
	_, exited := ExitRequested(err)
	require.False(t, exited)
	require.NoError(t, err, "RunString reports recoverable errors rather than returning them")
	_ = code
}

func TestRunStringFunctionReturnDoesNotExitShell(t *testing.T) {
	e := newTestEngine(t)
	code, err := e.RunString("f() { return 4; }; f; echo after", "test")
	require.NoError(t, err)
	_, exited := ExitRequested(err)
	require.False(t, exited, "a function-scoped return must not terminate the shell")
	require.Equal(t, 0, code, "the `echo after` statement runs and sets the final status")
}

func TestRunStringLoopBreakStaysLocal(t *testing.T) {
	e := newTestEngine(t)
	code, err := e.RunString("for i in 1 2 3; do if [ $i = 2 ]; then break; fi; done; echo done", "test")
	require.NoError(t, err)
	_, exited := ExitRequested(err)
	require.False(t, exited)
	require.Equal(t, 0, code)
}

func TestExitRequestedIgnoresPlainErrors(t *testing.T) {
	_, ok := ExitRequested(nil)
	require.False(t, ok)
}
