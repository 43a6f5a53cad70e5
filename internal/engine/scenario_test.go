package engine

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"mvdan.cc/sh/v3/syntax"

	"github.com/gosh-project/gosh/internal/execctx"
)

// runCapture executes src with stdout captured through a pipe, returning
// the final exit status and everything the statements wrote.
func runCapture(t *testing.T, e *Engine, src string) (int, string) {
	t.Helper()
	f, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(strings.NewReader(src), "test")
	require.NoError(t, err)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	ctx := execctx.New()
	ctx.Stdout.Set(w)

	ch := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(r)
		_ = r.Close()
		ch <- string(data)
	}()

	code, runErr := e.runStmts(f.Stmts, ctx)
	require.NoError(t, runErr)
	require.NoError(t, w.Close())
	return code, <-ch
}

func TestScenarioEchoHelloWorld(t *testing.T) {
	e := newTestEngine(t)
	code, out := runCapture(t, e, "echo hello world")
	require.Equal(t, 0, code)
	require.Equal(t, "hello world\n", out)
}

func TestScenarioCdAndPwd(t *testing.T) {
	e := newTestEngine(t)
	orig, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(orig)

	prior, _ := e.Env.GetVar("PWD")
	code, out := runCapture(t, e, "cd /tmp && pwd")
	require.Equal(t, 0, code)
	require.Equal(t, "/tmp\n", out)

	pwd, _ := e.Env.GetVar("PWD")
	oldpwd, _ := e.Env.GetVar("OLDPWD")
	require.Equal(t, "/tmp", pwd)
	require.Equal(t, prior, oldpwd)
}

func TestScenarioPipelineLastStageWins(t *testing.T) {
	e := newTestEngine(t)
	code, _ := runCapture(t, e, "false | true")
	require.Equal(t, 0, code)

	code, _ = runCapture(t, e, "true | false")
	require.Equal(t, 1, code)
}

func TestScenarioThreeStagePipeline(t *testing.T) {
	e := newTestEngine(t)
	code, out := runCapture(t, e, `printf 'a\nxb\nxc\n' | grep x | wc -l`)
	require.Equal(t, 0, code)
	require.Equal(t, "2", strings.TrimSpace(out))
}

func TestScenarioSubshellRedirection(t *testing.T) {
	e := newTestEngine(t)
	path := t.TempDir() + "/out"

	code, out := runCapture(t, e, "(echo a; echo b) > "+path+"; cat "+path)
	require.Equal(t, 0, code)
	require.Equal(t, "a\nb\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a\nb\n", string(data))
}

func TestScenarioTestAndOrChain(t *testing.T) {
	e := newTestEngine(t)
	code, out := runCapture(t, e, "[ -f /etc/hostname ] && echo yes || echo no")
	require.Equal(t, 0, code)
	if _, err := os.Stat("/etc/hostname"); err == nil {
		require.Equal(t, "yes\n", out)
	} else {
		require.Equal(t, "no\n", out)
	}
}

func TestScenarioAliasDefineAndPrint(t *testing.T) {
	e := newTestEngine(t)
	code, out := runCapture(t, e, "alias ll='ls -la'; alias ll")
	require.Equal(t, 0, code)
	require.Equal(t, "ll=ls -la\n", out)
}

func TestScenarioVariableExpansion(t *testing.T) {
	e := newTestEngine(t)
	code, out := runCapture(t, e, "GREETING=hi; echo $GREETING there")
	require.Equal(t, 0, code)
	require.Equal(t, "hi there\n", out)
}

func TestScenarioCommandSubstitution(t *testing.T) {
	e := newTestEngine(t)
	code, out := runCapture(t, e, "echo got:$(echo inner)")
	require.Equal(t, 0, code)
	require.Equal(t, "got:inner\n", out)
}

func TestScenarioForLoop(t *testing.T) {
	e := newTestEngine(t)
	code, out := runCapture(t, e, "for i in 1 2 3; do echo $i; done")
	require.Equal(t, 0, code)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestScenarioWhileUntilLoops(t *testing.T) {
	e := newTestEngine(t)
	code, out := runCapture(t, e, "n=0; while [ $n -lt 3 ]; do echo $n; n=$(expr $n + 1); done")
	require.Equal(t, 0, code)
	require.Equal(t, "0\n1\n2\n", out)

	code, out = runCapture(t, e, "n=0; until [ $n -ge 2 ]; do echo $n; n=$(expr $n + 1); done")
	require.Equal(t, 0, code)
	require.Equal(t, "0\n1\n", out)
}

func TestScenarioCaseDispatch(t *testing.T) {
	e := newTestEngine(t)
	code, out := runCapture(t, e, `case hello in h*) echo matched;; *) echo fallthrough;; esac`)
	require.Equal(t, 0, code)
	require.Equal(t, "matched\n", out)
}

func TestScenarioFunctionCallAndReturn(t *testing.T) {
	e := newTestEngine(t)
	code, out := runCapture(t, e, "f() { echo arg:$1; return 3; }; f hello")
	require.Equal(t, 3, code)
	require.Equal(t, "arg:hello\n", out)
}

func TestScenarioLastExitParameter(t *testing.T) {
	e := newTestEngine(t)
	code, out := runCapture(t, e, "false; echo $?")
	require.Equal(t, 0, code)
	require.Equal(t, "1\n", out)
}

func TestScenarioDollarHashAndAt(t *testing.T) {
	e := newTestEngine(t)
	e.Env.PushPositional("one")
	e.Env.PushPositional("two")
	code, out := runCapture(t, e, `echo $# "$@"`)
	require.Equal(t, 0, code)
	require.Equal(t, "2 one two\n", out)
}
