package restic

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"
)

// DefaultBinary is the executable name searched for in PATH.
const DefaultBinary = "restic"

// GetBinaryPath resolves the restic executable. An explicitly configured path
// always wins, otherwise name is looked up in PATH.
func GetBinaryPath(name string, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if name == "" {
		name = DefaultBinary
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(err, "%s binary not found in PATH", name)
	}

	log.WithField("path", path).Debug("found restic binary in PATH")
	return path, nil
}

// Version runs "restic version" and returns the first line of its output,
// e.g. "restic 0.17.3 compiled with go1.23.3 on linux/amd64".
func Version(ctx context.Context, binary string) (string, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "version")
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", errors.Wrap(err, "failed to run restic version")
	}

	line, _, _ := strings.Cut(stdout.String(), "\n")
	return strings.TrimSpace(line), nil
}
