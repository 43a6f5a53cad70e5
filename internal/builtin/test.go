// test.go implements the test/[ recursive predicate evaluator, spec.md
// 4.G. It is a direct generalization of oxide's test() function
// (original_source/src/builtin.rs): evaluation pops from the right of a
// mutable working slice so logical operators read naturally
// left-to-right, and short-circuit -a/-o stop as soon as the running
// result can no longer change.
package builtin

import (
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/gosh-project/gosh/internal/shellerr"
)

// RunTest evaluates an already-expanded token list. A stray trailing "]"
// is stripped exactly once before evaluation begins. The working list is
// stored reversed so that pop (which takes from the right of the slice)
// consumes tokens in their written left-to-right order, the same trick
// oxide's test() plays with Vec::pop on a reversed args vector.
func RunTest(tokens []string) (bool, error) {
	if len(tokens) > 0 && tokens[len(tokens)-1] == "]" {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return false, nil
	}
	work := make([]string, len(tokens))
	for i, t := range tokens {
		work[len(tokens)-1-i] = t
	}
	return testEval(&work)
}

// testEval is the recursive evaluator: pop one token from the right,
// dispatch on it, then check for a trailing -a/-o that chains into
// another recursive call.
func testEval(work *[]string) (bool, error) {
	if len(*work) == 0 {
		return false, nil
	}
	arg := pop(work)
	var result bool
	var err error

	switch arg {
	case "!":
		r, e := testEval(work)
		result, err = !r, e
	case "-t":
		result, err = unaryInt(work, func(n int) bool { return isatty(n) })
	case "-b":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return fi.Mode()&os.ModeDevice != 0 && fi.Mode()&os.ModeCharDevice == 0 })
	case "-c":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return fi.Mode()&os.ModeCharDevice != 0 })
	case "-d":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return fi.IsDir() })
	case "-f":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return fi.Mode().IsRegular() })
	case "-g":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return fi.Mode()&os.ModeSetgid != 0 })
	case "-G":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return statGid(fi) == uint32(os.Getegid()) })
	case "-h", "-L":
		result, err = unarySymlink(work)
	case "-k":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return fi.Mode()&os.ModeSticky != 0 })
	case "-N":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return statMtime(fi) > statAtime(fi) })
	case "-O":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return statUid(fi) == uint32(os.Geteuid()) })
	case "-p":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return fi.Mode()&os.ModeNamedPipe != 0 })
	case "-s":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return fi.Size() > 0 })
	case "-S":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return fi.Mode()&os.ModeSocket != 0 })
	case "-u":
		result, err = unaryMeta(work, func(fi os.FileInfo) bool { return fi.Mode()&os.ModeSetuid != 0 })
	case "-n":
		result, err = unaryStr(work, func(s string) bool { return s != "" })
	case "-z":
		result, err = unaryStr(work, func(s string) bool { return s == "" })
	case "-e":
		result, err = unaryStr(work, func(s string) bool { _, e := os.Stat(s); return e == nil })
	case "-r":
		result, err = unaryStr(work, func(s string) bool { return unix.Access(s, unix.R_OK) == nil })
	case "-w":
		result, err = unaryStr(work, func(s string) bool { return unix.Access(s, unix.W_OK) == nil })
	case "-x":
		result, err = unaryStr(work, func(s string) bool { return unix.Access(s, unix.X_OK) == nil })
	default:
		result, err = testNonFlag(arg, work)
	}
	if err != nil {
		return false, err
	}

	if len(*work) == 0 {
		return result, nil
	}
	op := (*work)[len(*work)-1]
	switch op {
	case "-a":
		if !result {
			return result, nil // short-circuit: already false, AND can't flip it
		}
		pop(work)
		return testEval2(work, result, "-a")
	case "-o":
		if result {
			return result, nil // short-circuit: already true, OR can't flip it
		}
		pop(work)
		return testEval2(work, result, "-o")
	default:
		return false, shellerr.Builtinf("test", "unexpected extra argument %q", op)
	}
}

func testEval2(work *[]string, lhs bool, op string) (bool, error) {
	rhs, err := testEval(work)
	if err != nil {
		return false, err
	}
	if op == "-a" {
		return lhs && rhs, nil
	}
	return lhs || rhs, nil
}

// testNonFlag handles integer comparisons, file comparisons, and string
// comparisons/equality/bare-truthiness — the non-flag branch of oxide's
// test(), including its empty-left-hand-side `=` carve-out. It peeks at
// the next token rather than popping it, so a trailing -a/-o connective
// stays in the working list for testEval to consume.
func testNonFlag(arg string, work *[]string) (bool, error) {
	if arg == "==" {
		return false, shellerr.Builtinf("test", "'==' is not valid here, use '='")
	}

	if len(*work) > 0 {
		switch next := (*work)[len(*work)-1]; next {
		case "-eq", "-ge", "-gt", "-le", "-lt", "-ne":
			pop(work)
			return intCmp(arg, work, next)
		case "-ef", "-nt", "-ot":
			pop(work)
			return fileCmp(arg, work, next)
		case "=":
			pop(work)
			return strCmp(arg, work, func(l, r string) bool { return l == r })
		case "!=":
			pop(work)
			return strCmp(arg, work, func(l, r string) bool { return l != r })
		case "==":
			return false, shellerr.Builtinf("test", "'==' is not valid here, use '='")
		}
	}

	if arg == "=" && len(*work) > 0 {
		// The left-hand side evaluated to nothing (an expansion returned
		// empty), leaving a bare "=" here. Per oxide's test(): true only
		// if the right side is equally empty.
		next := (*work)[len(*work)-1]
		if next == "-o" || next == "-a" {
			return true, nil
		}
		return pop(work) == "", nil
	}

	// A bare operand: nonempty is true, empty is false.
	return arg != "", nil
}

func pop(work *[]string) string {
	n := len(*work)
	v := (*work)[n-1]
	*work = (*work)[:n-1]
	return v
}

func unaryInt(work *[]string, pred func(int) bool) (bool, error) {
	if len(*work) == 0 {
		return false, shellerr.Builtinf("test", "missing operand")
	}
	arg := pop(work)
	n, err := strconv.Atoi(arg)
	if err != nil {
		return false, nil
	}
	return pred(n), nil
}

func unaryStr(work *[]string, pred func(string) bool) (bool, error) {
	if len(*work) == 0 {
		return false, shellerr.Builtinf("test", "missing operand")
	}
	return pred(pop(work)), nil
}

func unaryMeta(work *[]string, pred func(os.FileInfo) bool) (bool, error) {
	if len(*work) == 0 {
		return false, shellerr.Builtinf("test", "missing operand")
	}
	arg := pop(work)
	fi, err := os.Stat(arg)
	if err != nil {
		return false, nil
	}
	return pred(fi), nil
}

func unarySymlink(work *[]string) (bool, error) {
	if len(*work) == 0 {
		return false, shellerr.Builtinf("test", "missing operand")
	}
	arg := pop(work)
	fi, err := os.Lstat(arg)
	if err != nil {
		return false, nil
	}
	return fi.Mode()&os.ModeSymlink != 0, nil
}

func intCmp(lhs string, work *[]string, op string) (bool, error) {
	if len(*work) == 0 {
		return false, shellerr.Builtinf("test", "missing operand")
	}
	rhs := pop(work)
	l, lerr := strconv.Atoi(lhs)
	r, rerr := strconv.Atoi(rhs)
	if lerr != nil || rerr != nil {
		return false, shellerr.Builtinf("test", "expected an integer for this test flag")
	}
	switch op {
	case "-eq":
		return l == r, nil
	case "-ne":
		return l != r, nil
	case "-lt":
		return l < r, nil
	case "-le":
		return l <= r, nil
	case "-gt":
		return l > r, nil
	case "-ge":
		return l >= r, nil
	}
	return false, nil
}

func fileCmp(lhs string, work *[]string, op string) (bool, error) {
	if len(*work) == 0 {
		return false, shellerr.Builtinf("test", "missing operand")
	}
	rhs := pop(work)
	lfi, lerr := os.Stat(lhs)
	rfi, rerr := os.Stat(rhs)
	if lerr != nil || rerr != nil {
		return false, nil
	}
	switch op {
	case "-ef":
		return statDev(lfi) == statDev(rfi), nil
	case "-nt":
		return statMtime(lfi) > statMtime(rfi), nil
	case "-ot":
		return statMtime(lfi) < statMtime(rfi), nil
	}
	return false, nil
}

func strCmp(lhs string, work *[]string, pred func(l, r string) bool) (bool, error) {
	if len(*work) == 0 {
		return false, shellerr.Builtinf("test", "missing operand")
	}
	return pred(lhs, pop(work)), nil
}

func isatty(fd int) bool {
	return term.IsTerminal(fd)
}

func statGid(fi os.FileInfo) uint32 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return st.Gid
	}
	return 0
}

func statUid(fi os.FileInfo) uint32 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return st.Uid
	}
	return 0
}

func statDev(fi os.FileInfo) uint64 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Dev)
	}
	return 0
}

func statMtime(fi os.FileInfo) int64 {
	return fi.ModTime().UnixNano()
}

func statAtime(fi os.FileInfo) int64 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return st.Atim.Sec*1e9 + st.Atim.Nsec
	}
	return 0
}
