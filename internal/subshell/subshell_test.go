package subshell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosh-project/gosh/internal/shellenv"
)

func noopRun(*shellenv.ShellEnv, string, string) error { return nil }

func TestRunInternalDiscardsMutations(t *testing.T) {
	env := shellenv.New(shellenv.NoRC, noopRun)
	env.SetVar("KEEP", "outer")

	code, err := RunInternal(env, func(e *shellenv.ShellEnv) (int, error) {
		e.SetVar("KEEP", "inner")
		e.SetVar("ONLY_INSIDE", "x")
		return 4, nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, code)

	v, _ := env.GetVar("KEEP")
	require.Equal(t, "outer", v)
	_, ok := env.GetVar("ONLY_INSIDE")
	require.False(t, ok)
}

func TestRunInternalRestoresOnError(t *testing.T) {
	env := shellenv.New(shellenv.NoRC, noopRun)
	env.SetVar("V", "before")

	boom := errors.New("boom")
	code, err := RunInternal(env, func(e *shellenv.ShellEnv) (int, error) {
		e.SetVar("V", "during")
		return 1, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, code)

	v, _ := env.GetVar("V")
	require.Equal(t, "before", v)
}

func TestRunInternalRestoresPositionalParams(t *testing.T) {
	env := shellenv.New(shellenv.NoRC, noopRun)
	env.PushPositional("outer-arg")

	_, err := RunInternal(env, func(e *shellenv.ShellEnv) (int, error) {
		e.ClearPosParameters()
		e.PushPositional("inner-arg")
		return 0, nil
	})
	require.NoError(t, err)

	v, ok := env.GetParameter("1")
	require.True(t, ok)
	require.Equal(t, "outer-arg", v)
}
