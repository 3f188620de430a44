// Package serializer writes program outputs as pretty-printed JSON and
// replaces output files atomically.
package serializer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	apperrors "github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/errors"
)

// Encode writes v to w as JSON indented with tabs. Map keys come out sorted.
func Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return apperrors.IOFailure("encoding json", err)
	}
	return nil
}

// WriteFile replaces path with whatever fn writes. Output goes to a sibling
// .tmp file which is synced and renamed over path only when fn succeeds; a
// .lock file keeps two processes from interleaving on the same destination.
// The .lock file is left in place: unlinking it would let a later writer lock
// a fresh inode while another still holds the old one.
func WriteFile(path string, fn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.IOFailure("creating output directory", err)
	}

	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return apperrors.IOFailure("locking "+path, err)
	}
	defer func() {
		_ = fl.Unlock()
	}()

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return apperrors.IOFailure("creating temp file", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	if err = fn(f); err != nil {
		if apperrors.Is(err, apperrors.ErrIO) {
			return err
		}
		return apperrors.IOFailure(fmt.Sprintf("writing %s", path), err)
	}
	if err = f.Sync(); err != nil {
		return apperrors.IOFailure("syncing temp file", err)
	}
	if err = f.Close(); err != nil {
		return apperrors.IOFailure("closing temp file", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return apperrors.IOFailure("renaming temp file", err)
	}
	return nil
}

// WriteJSON encodes v into path via WriteFile.
func WriteJSON(path string, v any) error {
	return WriteFile(path, func(w io.Writer) error {
		return Encode(w, v)
	})
}
