package process

import (
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
)

var errEmptyArgs = errors.New("empty argument list")

// lookPath resolves the executable the way a shell would. A name with a
// slash is taken relative to workDir, so it matches what the child sees
// after chdir.
func lookPath(name, workDir string) (string, error) {
	if name == "" {
		return "", errEmptyArgs
	}
	if strings.Contains(name, "/") && !filepath.IsAbs(name) && workDir != "" {
		name = filepath.Join(workDir, name)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", err
	}
	return filepath.Abs(p)
}
