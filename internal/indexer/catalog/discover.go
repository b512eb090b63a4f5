package catalog

import (
	"cmp"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

// File is one candidate document as seen on disk.
type File struct {
	Path       string
	Size       int64
	ModifiedAt time.Time
}

// Lister lists files under root whose name ends in suffix. Paths are
// relative to root and slash-separated.
type Lister interface {
	List(root, suffix string) ([]File, error)
}

// WalkLister lists with filepath.WalkDir. Unreadable entries fail the listing.
type WalkLister struct{}

func (WalkLister) List(root, suffix string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, File{
			Path:       filepath.ToSlash(rel),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, root, err)
	}
	return files, nil
}

type Result struct {
	Files    []File
	Excluded []string
}

// Discover lists candidate documents, orders them by file name and then by
// full path, and removes the ones the instructions exclude.
func Discover(lister Lister, root, suffix string, ins *Instructions) (*Result, error) {
	log := slog.Default().With("component", "catalog")
	files, err := lister.List(root, suffix)
	if err != nil {
		return nil, err
	}
	SortByName(files)

	res := &Result{Files: make([]File, 0, len(files))}
	for _, f := range files {
		if rule, ok := ins.Excluded(f.Path); ok {
			log.Debug("excluded", "path", f.Path, "rule", rule.Key)
			res.Excluded = append(res.Excluded, f.Path)
			continue
		}
		res.Files = append(res.Files, f)
	}
	return res, nil
}

// SortByName orders files by their last path component.
func SortByName(files []File) {
	slices.SortStableFunc(files, func(a, b File) int {
		if c := cmp.Compare(path.Base(a.Path), path.Base(b.Path)); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
}
