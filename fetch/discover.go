package fetch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Discover lists the JSON document files under dir. Hidden files and
// directories are skipped. With recursive false only the top level is
// scanned.
func Discover(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && (!recursive || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", dir, err)
	}
	return paths, nil
}

// FetchDirectory discovers and loads every JSON document under dir,
// continuing past files that fail to load or validate.
func (f *Fetcher) FetchDirectory(dir string, recursive bool) ([]Document, error) {
	paths, err := Discover(dir, recursive)
	if err != nil {
		return nil, err
	}

	var docs []Document
	for _, path := range paths {
		doc, err := f.FetchFile(path)
		if err != nil {
			f.logger.Warn("skipping document", zap.String("path", path), zap.Error(err))
			f.recordFailure(path, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
