package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// defaultWorkDir places the work directory next to the running binary.
func defaultWorkDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "work"
	}
	return filepath.Join(filepath.Dir(exe), "work")
}

// resetWorkDir deletes dir and recreates it empty, dropping anything left by
// a previous run.
func resetWorkDir(fs afero.Fs, dir string) error {
	if err := fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove work dir %s: %w", dir, err)
	}
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create work dir %s: %w", dir, err)
	}
	return nil
}
