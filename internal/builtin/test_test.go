package builtin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunTestNoArgsIsFalse(t *testing.T) {
	ok, err := RunTest(nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunTestEmptyStringEquality(t *testing.T) {
	ok, err := RunTest([]string{"", "=", ""})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = RunTest([]string{"a", "=", "b"})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = RunTest([]string{"a", "!=", "b"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunTestBareStringTruthiness(t *testing.T) {
	ok, err := RunTest([]string{"nonempty"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = RunTest([]string{""})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunTestIntegerComparisons(t *testing.T) {
	cases := []struct {
		toks []string
		want bool
	}{
		{[]string{"1", "-lt", "2"}, true},
		{[]string{"2", "-lt", "1"}, false},
		{[]string{"2", "-le", "2"}, true},
		{[]string{"3", "-gt", "1"}, true},
		{[]string{"3", "-ge", "4"}, false},
		{[]string{"5", "-eq", "5"}, true},
		{[]string{"5", "-ne", "5"}, false},
	}
	for _, tc := range cases {
		got, err := RunTest(tc.toks)
		require.NoError(t, err, "toks=%v", tc.toks)
		require.Equal(t, tc.want, got, "toks=%v", tc.toks)
	}
}

func TestRunTestLogicalConnectives(t *testing.T) {
	ok, err := RunTest([]string{"1", "-lt", "2", "-a", "3", "-gt", "1"})
	require.NoError(t, err)
	require.True(t, ok)

	// The false left side short-circuits -a: the bogus right side would
	// error if it were evaluated.
	ok, err = RunTest([]string{"2", "-lt", "1", "-a", "-n"})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = RunTest([]string{"2", "-lt", "1", "-o", "3", "-gt", "1"})
	require.NoError(t, err)
	require.True(t, ok)

	// The true left side short-circuits -o the same way.
	ok, err = RunTest([]string{"1", "-lt", "2", "-o", "-n"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunTestNegation(t *testing.T) {
	ok, err := RunTest([]string{"!", "", "=", ""})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = RunTest([]string{"!", "a", "=", "b"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunTestDoubleEqualsRejected(t *testing.T) {
	_, err := RunTest([]string{"=="})
	require.Error(t, err)

	_, err = RunTest([]string{"a", "==", "b"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "'='")
}

func TestRunTestMissingOperand(t *testing.T) {
	_, err := RunTest([]string{"-n"})
	require.Error(t, err)

	_, err = RunTest([]string{"-f"})
	require.Error(t, err)
}

func TestRunTestStringLengthFlags(t *testing.T) {
	ok, err := RunTest([]string{"-n", "x"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = RunTest([]string{"-n", ""})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = RunTest([]string{"-z", ""})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunTestFilePredicates(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("data"), 0644))

	ok, err := RunTest([]string{"-d", dir})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = RunTest([]string{"-f", file})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = RunTest([]string{"-s", file})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = RunTest([]string{"-e", filepath.Join(dir, "missing")})
	require.NoError(t, err)
	require.False(t, ok)

	// A conversion failure is predicate-false, never an error.
	ok, err = RunTest([]string{"-d", "definitely/not/a/path"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunTestStrayTrailingBracketStripped(t *testing.T) {
	ok, err := RunTest([]string{"1", "-lt", "2", "]"})
	require.NoError(t, err)
	require.True(t, ok)

	// "[ ] ]" reaches RunTest as a lone "]" after the closer is removed
	// by the dispatcher; it strips once more and evaluates an empty list.
	ok, err = RunTest([]string{"]"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExecuteBracketRequiresCloser(t *testing.T) {
	d, _ := newDeps(t, 0)
	code, err := Execute("[", []string{"-n", "x"}, testCtx(), d)
	require.Error(t, err)
	require.Equal(t, 2, code)

	code, err = Execute("[", []string{"-n", "x", "]"}, testCtx(), d)
	require.NoError(t, err)
	require.Equal(t, 0, code)
}
