package system

import (
	"os"
	"path/filepath"

	"emperror.dev/errors"
)

// Executable returns the absolute, platform native path of the running
// executable with symbolic links resolved. The result does not depend on
// the working directory.
func Executable() (string, error) {
	p, err := os.Executable()
	if err != nil {
		return "", errors.Wrap(err, "system: failed to resolve executable path")
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	return NativePath(p)
}

// NativePath makes p absolute and converts it to the platform's separators.
func NativePath(p string) (string, error) {
	abs, err := filepath.Abs(filepath.FromSlash(p))
	if err != nil {
		return "", errors.WithDetails(errors.Wrap(err, "system: failed to make path absolute"), "path", p)
	}
	return filepath.Clean(abs), nil
}
