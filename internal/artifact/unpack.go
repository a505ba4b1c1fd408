package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// ErrUnsafeEntry is returned for archive entries that would land outside the
// destination directory.
var ErrUnsafeEntry = errors.New("archive entry escapes destination")

// Unpack extracts the zip-format archive at src into dest on fs. dest is
// created if missing; existing files are overwritten.
func Unpack(fs afero.Fs, src, dest string) error {
	f, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return fmt.Errorf("read archive %s: %w", src, err)
	}

	if err := fs.MkdirAll(dest, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	root := filepath.Clean(dest) + string(os.PathSeparator)

	for _, entry := range zr.File {
		target := filepath.Join(dest, filepath.FromSlash(entry.Name))
		if !strings.HasPrefix(target+string(os.PathSeparator), root) {
			return fmt.Errorf("%w: %s", ErrUnsafeEntry, entry.Name)
		}
		if entry.FileInfo().IsDir() {
			if err := fs.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			continue
		}
		if err := extractFile(fs, entry, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(fs afero.Fs, entry *zip.File, target string) error {
	if err := fs.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", entry.Name, err)
	}
	defer rc.Close() //nolint:errcheck // read-only

	out, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	return nil
}
