// Package tombstone maintains the append-only list of paths removed since the
// last full build. Each line is "@x <path>".
package tombstone

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

const marker = "@x"

// FileName is the tombstone file inside the data directory.
const FileName = "mir.tombstones"

// Read returns the recorded paths, deduplicated in first-seen order. A
// missing file means no tombstones.
func Read(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		p := strings.TrimSpace(strings.TrimPrefix(line, marker))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	return out, nil
}

// Append records paths. With novelOnly, paths already present in the file
// are skipped. It returns the paths actually written.
func Append(path string, paths []string, novelOnly bool) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	skip := make(map[string]struct{})
	if novelOnly {
		existing, err := Read(path)
		if err != nil {
			return nil, err
		}
		for _, p := range existing {
			skip[p] = struct{}{}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	w := bufio.NewWriter(f)
	var written []string
	for _, p := range paths {
		if _, ok := skip[p]; ok {
			continue
		}
		skip[p] = struct{}{}
		w.WriteString(marker + " " + p + "\n")
		written = append(written, p)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return nil, apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	return written, nil
}

// Reset clears the list; a full build supersedes every tombstone.
func Reset(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	return nil
}
