package editor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizeRespectsQuoting(t *testing.T) {
	toks := tokenize(`echo 'a b' "c $d" | grep e`)

	var words []string
	for _, tk := range toks {
		if tk.isWord {
			words = append(words, tk.text)
		}
	}
	require.Equal(t, []string{"echo", "'a b'", `"c $d"`, "grep", "e"}, words)
}

func TestTokenizeMultiCharOperators(t *testing.T) {
	toks := tokenize("a && b || c |& d")

	var ops []string
	for _, tk := range toks {
		if !tk.isWord && isSeparator(tk.text) {
			ops = append(ops, tk.text)
		}
	}
	require.Equal(t, []string{"&&", "||", "|&"}, ops)
}

func TestIsNumber(t *testing.T) {
	require.True(t, isNumber("1234"))
	require.False(t, isNumber(""))
	require.False(t, isNumber("12a"))
}

func TestColorForClassifiesTokens(t *testing.T) {
	h := NewHighlighter(nil)

	require.Equal(t, h.Str, h.colorFor(`"hi"`, false))
	require.Equal(t, h.Var, h.colorFor("$HOME", false))
	require.Equal(t, h.Num, h.colorFor("42", false))
	require.Equal(t, h.Keyword, h.colorFor("if", true))
	require.Empty(t, h.colorFor("if", false), "keyword coloring only applies in command position")
}

func TestColorForResolvesBuiltinInCommandPosition(t *testing.T) {
	h := NewHighlighter(nil)
	require.Equal(t, h.Found, h.colorFor("cd", true))
	require.Equal(t, h.Missing, h.colorFor("definitely-not-a-real-command-xyz", true))
}

func TestPaintPreservesLineContent(t *testing.T) {
	h := NewHighlighter(nil)
	h.Enabled = true
	line := []rune("echo hello")
	painted := h.Paint(line, len(line))

	require.Contains(t, string(painted), "echo")
	require.Contains(t, string(painted), "hello")
	require.Contains(t, string(painted), h.Found, "a resolvable command word is colored")
}

func TestPaintPassesThroughOnNonTTY(t *testing.T) {
	h := NewHighlighter(nil)
	h.Enabled = false
	line := []rune("echo hello")
	require.Equal(t, line, h.Paint(line, len(line)), "no escape bytes without a tty")
}
