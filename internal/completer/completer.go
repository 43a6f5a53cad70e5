// Package completer provides filesystem-, process-, and environment-aware
// tab completion for the interactive shell, generalizing the teacher's
// static per-command item list (a fixed cd/rm/kill/ps/ls/cat/cut/vim/grep
// table rebuilt from directory and /proc scans) into one that also
// reflects the live ShellEnv: every recognized builtin name (internal/
// builtin.Names) and every user-defined alias become completable command
// words, matching spec.md 4.I's "found-commands ... resolves via PATH,
// alias table, or function table" resolution also used by the
// highlighter.
package completer

import (
	"os"
	"strconv"

	"github.com/chzyer/readline"

	"github.com/gosh-project/gosh/internal/builtin"
	"github.com/gosh-project/gosh/internal/shellenv"
)

// Completer adapts the shell's dynamic environment (filesystem, processes,
// aliases, builtins) to the readline.AutoCompleter interface.
type Completer struct {
	inner *readline.PrefixCompleter
}

// New returns a Completer with an empty underlying PrefixCompleter; call
// Update before first use.
func New() *Completer {
	return &Completer{inner: readline.NewPrefixCompleter()}
}

// Update rebuilds the completion tree based on the current working
// directory, the process table, and env's aliases, alongside the fixed
// builtin-name table.
func (c *Completer) Update(env *shellenv.ShellEnv) {
	entries, _ := os.ReadDir(".")

	var onlyDirs []readline.PrefixCompleterInterface
	var fileNamesToComplete []readline.PrefixCompleterInterface
	for _, entry := range entries {
		if entry.IsDir() {
			fileNamesToComplete = append(fileNamesToComplete, readline.PcItem(entry.Name()+"/"))
			onlyDirs = append(onlyDirs, readline.PcItem(entry.Name()+"/"))
		} else {
			fileNamesToComplete = append(fileNamesToComplete, readline.PcItem(entry.Name()))
		}
	}

	var procsToKill []readline.PrefixCompleterInterface
	for _, val := range getPIDs() {
		procsToKill = append(procsToKill, readline.PcItem(val))
	}

	rmCompleter := append(append([]readline.PrefixCompleterInterface{}, fileNamesToComplete...),
		readline.PcItem("-rf", fileNamesToComplete...))

	items := []readline.PrefixCompleterInterface{
		readline.PcItem("cd", onlyDirs...),
		readline.PcItem("rm", rmCompleter...),
		readline.PcItem("kill", procsToKill...),
		readline.PcItem("ps", fileNamesToComplete...),
		readline.PcItem("ls", fileNamesToComplete...),
		readline.PcItem("cat", fileNamesToComplete...),
		readline.PcItem("cut", fileNamesToComplete...),
		readline.PcItem("vim", fileNamesToComplete...),
		readline.PcItem("grep", fileNamesToComplete...),
		readline.PcItem("echo", fileNamesToComplete...),
	}
	for name := range builtin.Names {
		items = append(items, readline.PcItem(name, fileNamesToComplete...))
	}
	for _, name := range env.AliasNames() {
		items = append(items, readline.PcItem(name))
	}

	c.inner = readline.NewPrefixCompleter(items...)
}

// Do delegates the completion logic to the underlying PrefixCompleter.
// It satisfies the readline.AutoCompleter interface.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	return c.inner.Do(line, pos)
}

// getPIDs reads the /proc directory to find all currently running
// process IDs, used for `kill` completion targets.
func getPIDs() []string {
	proc, _ := os.ReadDir("/proc")
	var pids []string
	for _, entry := range proc {
		if entry.IsDir() {
			name := entry.Name()
			if _, err := strconv.Atoi(name); err == nil {
				pids = append(pids, name)
			}
		}
	}
	return pids
}
