// Package confkit carries the small pieces of configuration plumbing
// shared by every entry point: .env loading, project-root discovery and
// split config sections that hydrate from their own files.
package confkit

import (
	"os"
	"path/filepath"
)

// ResolvePath expands environment variables in file and resolves it
// against base when relative. Absolute paths are returned as-is after
// expansion.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// Section is a config subsection that lives in its own file. The main
// config carries only the File reference; Hydrate fills Value.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate resolves File against base and runs loader on it, storing the
// result in Value. A Section with an empty File stays unhydrated and
// Hydrate returns nil.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	path := ResolvePath(base, s.File)
	value, err := loader(path)
	if err != nil {
		return err
	}
	s.File = path
	s.Value = value
	return nil
}
