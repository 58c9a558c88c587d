package subst

import "path/filepath"

// resolvePath resolves a path to an absolute, symlink-free form via the
// host filesystem resolver.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
