// Package finder locates the text files to index under a path.
package finder

import (
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/errors"
)

// IsTextFile reports whether path has a .txt or .text extension, ignoring case.
func IsTextFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".text"
}

// List returns the text files at root. A file root is returned when it is a
// text file; a directory root is walked recursively in lexical order,
// following symbolic links and visiting each real directory once.
func List(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperrors.IOFailure("listing "+root, err)
	}
	if !info.IsDir() {
		if info.Mode().IsRegular() && IsTextFile(root) {
			return []string{root}, nil
		}
		return []string{}, nil
	}
	w := &walker{visited: make(map[string]struct{}), files: []string{}}
	if err := w.walk(root); err != nil {
		return nil, err
	}
	return w.files, nil
}

type walker struct {
	visited map[string]struct{}
	files   []string
}

func (w *walker) walk(dir string) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return apperrors.IOFailure("resolving "+dir, err)
	}
	if _, seen := w.visited[resolved]; seen {
		return nil
	}
	w.visited[resolved] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return apperrors.IOFailure("reading "+dir, err)
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		// Stat follows links, so a link to a directory is walked as one.
		info, err := os.Stat(path)
		if err != nil {
			// dangling link
			continue
		}
		switch {
		case info.IsDir():
			if err := w.walk(path); err != nil {
				return err
			}
		case info.Mode().IsRegular() && IsTextFile(path):
			w.files = append(w.files, path)
		}
	}
	return nil
}
