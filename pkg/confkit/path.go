package confkit

import (
	"os"
	"path/filepath"
	"runtime"
)

// maxAscent bounds the upward walk when searching for the project root.
const maxAscent = 8

// ProjectRoot locates the repository root by walking up from this
// source file until a directory containing go.mod or .git appears. It
// falls back to the working directory when the walk finds nothing,
// which covers binaries built outside the source tree.
func ProjectRoot() (string, error) {
	if _, file, _, ok := runtime.Caller(0); ok {
		if root, found := ascend(filepath.Dir(file)); found {
			return root, nil
		}
	}
	return os.Getwd()
}

// ProjectPath resolves rel against the project root.
func ProjectPath(rel string) (string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

// MustProjectPath is ProjectPath for paths that must exist for the
// process to be useful at all; it panics on failure.
func MustProjectPath(rel string) string {
	path, err := ProjectPath(rel)
	if err != nil {
		panic(err)
	}
	return path
}

func ascend(dir string) (string, bool) {
	for i := 0; i < maxAscent; i++ {
		if fileExists(filepath.Join(dir, "go.mod")) || fileExists(filepath.Join(dir, ".git")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
