package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosh-project/gosh/internal/painter"
	"github.com/gosh-project/gosh/internal/shellenv"
)

func noopRun(*shellenv.ShellEnv, string, string) error { return nil }

func newEnv(t *testing.T) *shellenv.ShellEnv {
	t.Helper()
	return shellenv.New(shellenv.NoRC, noopRun)
}

func TestRenderAbbreviatesHome(t *testing.T) {
	env := newEnv(t)
	env.Export("HOME", "/home/u")
	env.Export("PWD", "/home/u/src")

	b := New(painter.Painter{})
	got := b.Render(env)
	require.Contains(t, got, "~/src")
	require.NotContains(t, got, "/home/u/src")
	require.True(t, strings.HasSuffix(got, " $ "))
}

func TestRenderTruncatesDeepPaths(t *testing.T) {
	env := newEnv(t)
	env.Export("HOME", "/nonexistent-home")
	env.Export("PWD", "/a/b/c/d/e/f/g")

	b := New(painter.Painter{})
	got := b.Render(env)
	require.Contains(t, got, ".../d/e/f/g")
	require.NotContains(t, got, "/a/b/c")
}

func TestRenderFallsBackWithoutPWD(t *testing.T) {
	env := newEnv(t)
	env.Export("PWD", "")

	b := New(painter.Painter{})
	require.Equal(t, DefaultPrompt, b.Render(env))
}

func TestTruncateKeepsShortPaths(t *testing.T) {
	require.Equal(t, "/a/b", truncate("/a/b", 4))
	require.Equal(t, "~/x", truncate("~/x", 4))
	require.Equal(t, ".../c/d/e/f", truncate("/a/b/c/d/e/f", 4))
}
