package engine

import "path/filepath"

// matchGlob matches subject against a case-pattern using the same
// glob syntax spec.md's pathname expansion uses (*, ?, [...]),
// reusing path/filepath's matcher since case patterns are not
// filesystem-rooted and don't need the dotglob special-casing that
// pathname expansion does.
func matchGlob(pattern, subject string) (bool, error) {
	return filepath.Match(pattern, subject)
}
