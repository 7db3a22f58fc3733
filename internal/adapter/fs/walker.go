package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"tabrag/internal/domain"
)

// Walker is the corpus scanner. It lists files whose extension is in the
// allow-set and whose root-relative path matches no exclude pattern.
type Walker struct {
	formats  map[string]struct{}
	excludes []string
}

func NewWalker(formats, excludes []string) *Walker {
	allowed := make(map[string]struct{}, len(formats))
	for _, f := range formats {
		allowed[normalizeExt(f)] = struct{}{}
	}
	return &Walker{
		formats:  allowed,
		excludes: excludes,
	}
}

// Allowed reports whether a file name has an ingestible extension.
func (w *Walker) Allowed(name string) bool {
	_, ok := w.formats[normalizeExt(filepath.Ext(name))]
	return ok
}

// Scan enumerates ingestible files under root, sorted by path.
// Unreadable entries below root are skipped; an unreadable root fails with
// domain.ErrCorpusUnavailable.
func (w *Walker) Scan(root string) ([]domain.SourceFile, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorpusUnavailable, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorpusUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrCorpusUnavailable, root)
	}
	if _, err := os.ReadDir(root); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorpusUnavailable, err)
	}

	var files []domain.SourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path != root && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !w.Allowed(path) || w.shouldExclude(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		files = append(files, domain.SourceFile{
			Path:    relPath,
			AbsPath: path,
			Ext:     normalizeExt(filepath.Ext(path)),
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorpusUnavailable, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
