package pipeline

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosh-project/gosh/internal/jobs"
)

// capture returns a pipe pair plus a collector goroutine's result
// channel, for asserting what a pipeline wrote to its stdout.
func capture(t *testing.T) (*os.File, func() string) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	ch := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(r)
		_ = r.Close()
		ch <- string(data)
	}()
	return w, func() string {
		_ = w.Close()
		return <-ch
	}
}

func writerStage(label, text string, code int) Stage {
	return Stage{
		Label: label,
		Builtin: func(stdin, stdout, stderr *os.File) (int, error) {
			_, _ = stdout.WriteString(text)
			return code, nil
		},
	}
}

func TestRunEmptyPipeline(t *testing.T) {
	res, err := Run(nil, jobs.New(-1), StdIO{}, false)
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
}

func TestRunSingleBuiltinStage(t *testing.T) {
	w, collect := capture(t)
	res, err := Run(
		[]Stage{writerStage("w", "solo\n", 0)},
		jobs.New(-1), StdIO{Out: w}, false,
	)
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "solo\n", collect())
}

func TestRunBuiltinToBuiltinPipe(t *testing.T) {
	w, collect := capture(t)
	upper := Stage{
		Label: "upper",
		Builtin: func(stdin, stdout, stderr *os.File) (int, error) {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return 1, err
			}
			_, _ = stdout.WriteString(strings.ToUpper(string(data)))
			return 0, nil
		},
	}
	res, err := Run(
		[]Stage{writerStage("w", "ab\n", 0), upper},
		jobs.New(-1), StdIO{Out: w}, false,
	)
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "AB\n", collect())
}

func TestRunLastStageStatusWins(t *testing.T) {
	w, collect := capture(t)
	res, err := Run(
		[]Stage{writerStage("a", "x", 7), writerStage("b", "", 0)},
		jobs.New(-1), StdIO{Out: w}, false,
	)
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode, "the last stage's status wins, no pipefail")
	_ = collect()

	w2, collect2 := capture(t)
	res, err = Run(
		[]Stage{writerStage("a", "x", 0), writerStage("b", "", 3)},
		jobs.New(-1), StdIO{Out: w2}, false,
	)
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
	_ = collect2()
}

func TestRunExternalToBuiltinPipe(t *testing.T) {
	w, collect := capture(t)
	count := Stage{
		Label: "count",
		Builtin: func(stdin, stdout, stderr *os.File) (int, error) {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return 1, err
			}
			_, _ = stdout.WriteString(strings.ToUpper(string(data)))
			return 0, nil
		},
	}
	res, err := Run(
		[]Stage{
			{Label: "echo", External: &ExternalSpec{Argv: []string{"/bin/echo", "hi"}}},
			count,
		},
		jobs.New(-1), StdIO{Out: w}, false,
	)
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "HI\n", collect())
}

func TestRunExternalStatusPropagates(t *testing.T) {
	res, err := Run(
		[]Stage{{Label: "false", External: &ExternalSpec{Argv: []string{"false"}}}},
		jobs.New(-1), StdIO{}, false,
	)
	require.NoError(t, err)
	require.Equal(t, 1, res.ExitCode)
}

func TestRunStageStdoutOverride(t *testing.T) {
	path := t.TempDir() + "/out"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)

	res, err := Run(
		[]Stage{{
			Label:  "w",
			Stdout: f,
			Builtin: func(stdin, stdout, stderr *os.File) (int, error) {
				_, _ = stdout.WriteString("to file")
				return 0, nil
			},
		}},
		jobs.New(-1), StdIO{}, false,
	)
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "to file", string(data))
}
