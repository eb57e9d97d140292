// Package archive extracts signed update packages (ZIP archives) to a
// destination directory with atomic-or-clean semantics: either every entry
// lands on disk, or the destination directory is removed entirely, never
// left half-written.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extractor extracts ZIP archives.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// ExtractZip extracts every entry of archivePath into destDir. destDir is
// created if absent. On any failure, the function removes destDir (and
// everything under it) before returning the error, so callers never observe
// a partially-extracted version directory — this is the "clean" half of the
// Updater's clean-and-extract step.
func (e *Extractor) ExtractZip(archivePath, destDir string) error {
	if err := e.extractZip(archivePath, destDir); err != nil {
		os.RemoveAll(destDir)
		return err
	}
	return nil
}

func (e *Extractor) extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	cleanDest := filepath.Clean(destDir)

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) && target != cleanDest {
			return fmt.Errorf("illegal file path: %s", f.Name)
		}

		mode := f.Mode()
		switch {
		case f.FileInfo().IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case mode&os.ModeSymlink != 0:
			if err := extractSymlink(f, target, cleanDest); err != nil {
				return err
			}
		default:
			if err := extractFile(f, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, rc); err != nil {
		return fmt.Errorf("write file %s: %w", target, err)
	}
	return nil
}

func extractSymlink(f *zip.File, target, destDir string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open symlink entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	linkBytes, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read symlink target %s: %w", f.Name, err)
	}
	linkname := string(linkBytes)

	resolved := linkname
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(target), resolved)
	}
	resolved = filepath.Clean(resolved)
	if !strings.HasPrefix(resolved, destDir+string(os.PathSeparator)) && resolved != destDir {
		return fmt.Errorf("illegal symlink target: %s -> %s", f.Name, linkname)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", target, err)
	}
	return nil
}
