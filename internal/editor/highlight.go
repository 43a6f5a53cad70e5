package editor

import (
	"os"
	"os/exec"
	"strings"
	"unicode"

	"golang.org/x/term"

	"github.com/gosh-project/gosh/internal/builtin"
	"github.com/gosh-project/gosh/internal/painter"
	"github.com/gosh-project/gosh/internal/shellenv"
)

// reservedWords lists the control keywords spec.md 4.I names, colored
// distinctly from ordinary command words.
var reservedWords = map[string]bool{
	"if": true, "then": true, "elif": true, "else": true, "fi": true,
	"for": true, "while": true, "until": true, "select": true,
	"do": true, "done": true, "case": true, "in": true, "esac": true,
	"function": true,
}

// Highlighter implements chzyer/readline's Painter interface, coloring
// keywords, found/missing commands, strings, variable substitutions, and
// numbers the way spec.md 4.I's character-by-character walk describes.
// Colors are resolved through internal/painter.Color, the same
// name-to-escape table the prompt theme uses. Coloring is applied only
// when stdout is a terminal; on a non-tty (output piped or captured)
// Paint passes the line through untouched so no escape bytes leak.
type Highlighter struct {
	Env     *shellenv.ShellEnv
	Enabled bool   // stdout is a tty; false passes lines through uncolored
	Keyword string // resolved ANSI color for reserved words
	Found   string // resolved ANSI color for a resolvable command word
	Missing string // resolved ANSI color for an unresolvable command word
	Str     string // resolved ANSI color for quoted strings
	Var     string // resolved ANSI color for $name/${...} substitutions
	Num     string // resolved ANSI color for bare numbers
}

// NewHighlighter builds a Highlighter with the shell's default palette,
// enabled only when stdout is a terminal.
func NewHighlighter(env *shellenv.ShellEnv) *Highlighter {
	return &Highlighter{
		Env:     env,
		Enabled: term.IsTerminal(int(os.Stdout.Fd())),
		Keyword: painter.Color("magenta"),
		Found:   painter.Color("green"),
		Missing: painter.Color("red"),
		Str:     painter.Color("yellow"),
		Var:     painter.Color("cyan"),
		Num:     painter.Color("blue"),
	}
}

const resetColor = "\033[0m"

// Paint colors the whole line for readline's per-keystroke redraw. pos is
// unused: spec.md 4.I highlights tokens by role, not by cursor proximity.
func (h *Highlighter) Paint(line []rune, pos int) []rune {
	if !h.Enabled {
		return line
	}
	toks := tokenize(string(line))
	var b strings.Builder
	commandPosition := true
	for _, t := range toks {
		if !t.isWord {
			b.WriteString(t.text)
			if isSeparator(t.text) {
				commandPosition = true
			}
			continue
		}
		color := h.colorFor(t.text, commandPosition)
		if color != "" {
			b.WriteString(color)
			b.WriteString(t.text)
			b.WriteString(resetColor)
		} else {
			b.WriteString(t.text)
		}
		commandPosition = false
	}
	return []rune(b.String())
}

func isSeparator(sep string) bool {
	switch sep {
	case "|", "|&", "||", "&&", ";", "\n":
		return true
	default:
		return false
	}
}

// colorFor classifies one word token and resolves its color: the
// string/variable/number cases apply anywhere, the keyword and
// found/missing-command cases only in command position. Paint gives
// command position to the first word after a separator. tokenize splits
// off only |, &, ;, parentheses and whitespace, so a redirection such as
// ">" or ">out" is ordinary word text here; a leading redirection takes
// the command position instead of the command word that follows it.
func (h *Highlighter) colorFor(text string, commandPosition bool) string {
	switch {
	case len(text) >= 2 && (text[0] == '\'' || text[0] == '"'):
		return h.Str
	case strings.HasPrefix(text, "$"):
		return h.Var
	case isNumber(text):
		return h.Num
	case commandPosition && reservedWords[text]:
		return h.Keyword
	case commandPosition:
		if h.resolves(text) {
			return h.Found
		}
		return h.Missing
	default:
		return ""
	}
}

// resolves implements "first word resolves via PATH, alias table, or
// function table" (spec.md 4.I).
func (h *Highlighter) resolves(name string) bool {
	if builtin.IsBuiltin(name) {
		return true
	}
	if h.Env != nil {
		if _, ok := h.Env.GetAlias(name); ok {
			return true
		}
		if _, ok := h.Env.GetFunction(name); ok {
			return true
		}
	}
	if strings.Contains(name, "/") {
		return true
	}
	_, err := exec.LookPath(name)
	return err == nil
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// token is one lexical piece of a line: either a word (isWord) or a
// separator/operator, stored verbatim so re-joining every token
// reproduces the original line exactly.
type token struct {
	text   string
	isWord bool
}

// tokenize splits s into words and separators, respecting escapes and
// quoted regions per spec.md 4.I: "single-quoted is literal; double-quoted
// still allows escape". Multi-char operators (&&, ||, |&) are recognized
// as single separator tokens so isSeparator can reset command position
// correctly.
func tokenize(s string) []token {
	var toks []token
	var cur strings.Builder
	inSingle, inDouble := false, false

	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, token{text: cur.String(), isWord: true})
			cur.Reset()
		}
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inSingle:
			cur.WriteRune(r)
			if r == '\'' {
				inSingle = false
			}
		case inDouble:
			if r == '\\' && i+1 < len(runes) {
				cur.WriteRune(r)
				i++
				cur.WriteRune(runes[i])
				continue
			}
			cur.WriteRune(r)
			if r == '"' {
				inDouble = false
			}
		case r == '\'':
			cur.WriteRune(r)
			inSingle = true
		case r == '"':
			cur.WriteRune(r)
			inDouble = true
		case r == '\\' && i+1 < len(runes):
			cur.WriteRune(r)
			i++
			cur.WriteRune(runes[i])
		case unicode.IsSpace(r):
			flush()
			toks = append(toks, token{text: string(r), isWord: false})
		case r == '|' || r == '&' || r == ';':
			flush()
			op := string(r)
			if i+1 < len(runes) && ((r == '|' && (runes[i+1] == '|' || runes[i+1] == '&')) || (r == '&' && runes[i+1] == '&')) {
				op += string(runes[i+1])
				i++
			}
			toks = append(toks, token{text: op, isWord: false})
		case r == '(' || r == ')':
			flush()
			toks = append(toks, token{text: string(r), isWord: false})
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}
