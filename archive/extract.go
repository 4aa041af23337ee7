// Package archive unpacks downloaded dataset archives.
package archive

import (
	"archive/tar"
	"archive/zip"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver"
	"github.com/pkg/errors"
)

type format interface {
	archiver.Walker
	archiver.Unarchiver
}

func formatFor(archivePath string) (format, error) {
	name := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(name, ".zip"):
		z := archiver.NewZip()
		z.OverwriteExisting = true
		return z, nil
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		tgz := archiver.NewTarGz()
		tgz.OverwriteExisting = true
		return tgz, nil
	case strings.HasSuffix(name, ".tar"):
		t := archiver.NewTar()
		t.OverwriteExisting = true
		return t, nil
	default:
		return nil, errors.Errorf("unsupported archive format %q", filepath.Base(archivePath))
	}
}

// Extract unpacks the archive at archivePath into destDir, which is created
// if needed. The format is chosen by file extension: .zip, .tar, .tar.gz or
// .tgz. Archives with an entry resolving outside destDir are rejected before
// anything is written.
func Extract(archivePath, destDir string) error {
	f, err := formatFor(archivePath)
	if err != nil {
		return err
	}

	if err := f.Walk(archivePath, func(file archiver.File) error {
		return checkEntry(destDir, entryName(file))
	}); err != nil {
		return errors.Wrapf(err, "extract %q", archivePath)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.Wrapf(err, "create %q", destDir)
	}

	if err := f.Unarchive(archivePath, destDir); err != nil {
		return errors.Wrapf(err, "extract %q", archivePath)
	}
	return nil
}

// entryName is the full name of an entry inside its archive.
func entryName(file archiver.File) string {
	switch h := file.Header.(type) {
	case zip.FileHeader:
		return h.Name
	case *zip.FileHeader:
		return h.Name
	case *tar.Header:
		return h.Name
	default:
		return file.Name()
	}
}

// checkEntry rejects entry names that would escape destDir.
func checkEntry(destDir, name string) error {
	target := filepath.Join(destDir, name)
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.Errorf("archive entry %q escapes destination", name)
	}
	return nil
}
