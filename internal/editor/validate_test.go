package editor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateComplete(t *testing.T) {
	cases := []string{
		`echo hello`,
		`ls -la | grep foo`,
		`if true; then echo yes; fi`,
		`for i in 1 2 3; do echo $i; done`,
		`while true; do break; done`,
		`case $x in a) echo a;; *) echo b;; esac`,
		`(echo a; echo b) > /tmp/out`,
		`{ echo grouped; }`,
		`f() { echo body; }`,
		`[ -f /etc/hostname ] && echo yes || echo no`,
		`echo a & echo b`,
		`echo 'quoted | not an op'`,
		`echo \)`,
		"# just a comment",
	}
	for _, src := range cases {
		res := Validate(src)
		require.Equal(t, Valid, res.Status, "src=%q msg=%q", src, res.Msg)
	}
}

func TestValidateIncompleteAwaitsContinuation(t *testing.T) {
	cases := []string{
		"if true; then",
		"if true; then echo hi",
		"for i in 1 2 3; do echo $i;",
		"while true; do",
		"case $x in",
		"echo 'unterminated",
		`echo "unterminated`,
		"echo `unterminated",
		"echo foo |",
		"echo foo &&",
		"echo foo ||",
		"(echo a; echo b",
		"{ echo grouped;",
		"f() {",
		"[ -f /etc/hostname",
		"echo continued \\",
	}
	for _, src := range cases {
		res := Validate(src)
		require.Equal(t, Incomplete, res.Status, "src=%q", src)
	}
}

func TestValidateInvalidSyntax(t *testing.T) {
	for _, src := range []string{"fi", "done", "esac", "echo )", "do", "then"} {
		res := Validate(src)
		require.Equal(t, Invalid, res.Status, "src=%q", src)
		require.NotEmpty(t, res.Msg)
	}
}

func TestValidateEmptyInputIsValid(t *testing.T) {
	require.Equal(t, Valid, Validate("").Status)
}
