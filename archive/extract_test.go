package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func tarBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func writeTar(t *testing.T, path string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, tarBytes(t, files), 0o644))
}

func writeTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(tarBytes(t, files))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestExtract(t *testing.T) {
	files := map[string]string{
		"train2014/COCO_train2014_000000000009.jpg": "jpeg-1",
		"train2014/COCO_train2014_000000000025.jpg": "jpeg-2",
		"annotations/instances_train2014.json":      `{"images":[],"annotations":[]}`,
	}

	tests := []struct {
		name  string
		write func(t *testing.T, path string, files map[string]string)
	}{
		{"archive.zip", writeZip},
		{"archive.tar.gz", writeTarGz},
		{"archive.tgz", writeTarGz},
		{"archive.tar", writeTar},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			archivePath := filepath.Join(dir, test.name)
			test.write(t, archivePath, files)

			dest := filepath.Join(dir, "out")
			require.NoError(t, Extract(archivePath, dest))

			for name, content := range files {
				got, err := os.ReadFile(filepath.Join(dest, name))
				require.NoError(t, err)
				require.Equal(t, content, string(got))
			}
		})
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	tests := []struct {
		name  string
		write func(t *testing.T, path string, files map[string]string)
	}{
		{"evil.zip", writeZip},
		{"evil.tar.gz", writeTarGz},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			archivePath := filepath.Join(dir, test.name)
			test.write(t, archivePath, map[string]string{
				"images/ok.jpg":  "fine",
				"../outside.txt": "nope",
			})

			dest := filepath.Join(dir, "out")
			err := Extract(archivePath, dest)
			require.ErrorContains(t, err, "escapes destination")
			require.NoFileExists(t, filepath.Join(dir, "outside.txt"))
			require.NoFileExists(t, filepath.Join(dest, "images", "ok.jpg"))
		})
	}
}

func TestExtractOverwritesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "images", "0001.jpg"), []byte("partial"), 0o644))

	archivePath := filepath.Join(dir, "images_00.zip")
	writeZip(t, archivePath, map[string]string{"images/0001.jpg": "complete"})

	require.NoError(t, Extract(archivePath, dest))
	got, err := os.ReadFile(filepath.Join(dest, "images", "0001.jpg"))
	require.NoError(t, err)
	require.Equal(t, "complete", string(got))
}

func TestExtractUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "images.rar")
	require.NoError(t, os.WriteFile(path, []byte("rar"), 0o644))

	require.Error(t, Extract(path, dir))
}
