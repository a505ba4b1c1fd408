package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/embedded-launcher/internal/apperr"
)

// WarExtension is the extension of packaged web applications.
const WarExtension = ".war"

// ErrDirectoryUnreadable is returned when the base directory cannot be listed.
var ErrDirectoryUnreadable = errors.New("deployment directory is unreadable")

// CountMismatchError reports a base directory that does not hold exactly the
// expected number of artifacts.
type CountMismatchError struct {
	Dir       string
	Extension string
	Expected  int
	Found     int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("expected %d web application (*%s) in %s, found %d", e.Expected, e.Extension, e.Dir, e.Found)
}

// Locator searches a filesystem for deployable artifacts.
type Locator struct {
	fs afero.Fs
}

// NewLocator returns a Locator over fs. A nil fs means the OS filesystem.
func NewLocator(fs afero.Fs) *Locator {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Locator{fs: fs}
}

// Locate walks baseDir recursively and returns the absolute path of the only
// regular file whose name ends in ext.
func (l *Locator) Locate(baseDir, ext string) (string, error) {
	const op = "locate artifact"

	dir, err := filepath.Abs(baseDir)
	if err != nil {
		dir = baseDir
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	info, err := l.fs.Stat(dir)
	if err != nil {
		return "", apperr.New(apperr.KindDeployment, op, fmt.Errorf("%w: %s: %v", ErrDirectoryUnreadable, dir, err))
	}
	if !info.IsDir() {
		return "", apperr.New(apperr.KindDeployment, op, fmt.Errorf("%w: %s is not a directory", ErrDirectoryUnreadable, dir))
	}

	var matches []string
	walkErr := afero.Walk(l.fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.Mode().IsRegular() && strings.HasSuffix(fi.Name(), ext) {
			matches = append(matches, path)
		}
		return nil
	})
	if walkErr != nil {
		return "", apperr.New(apperr.KindDeployment, op, fmt.Errorf("%w: %s: %v", ErrDirectoryUnreadable, dir, walkErr))
	}

	if len(matches) != 1 {
		return "", apperr.New(apperr.KindDeployment, op, &CountMismatchError{
			Dir:       dir,
			Extension: ext,
			Expected:  1,
			Found:     len(matches),
		})
	}
	return matches[0], nil
}
