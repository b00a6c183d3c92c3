package profile

import (
	"fmt"
	"path"
	"strings"
)

// NormalizeRemotePath turns a configured remote path into a form that needs no
// shell expansion on the remote side.
//
// Absolute paths are cleaned. "~/x" and plain relative paths become the
// home-relative "x": ssh runs remote commands in the login home and rsync,
// scp and sbatch resolve relative paths against it. A bare "~", "~user"
// forms, "." and paths escaping the home directory are rejected.
func NormalizeRemotePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("remote path is empty")
	}

	if strings.HasPrefix(p, "/") {
		return path.Clean(p), nil
	}

	if strings.HasPrefix(p, "~") {
		if p != "~" && !strings.HasPrefix(p, "~/") {
			return "", fmt.Errorf("remote path %q: ~user expansion is not supported", p)
		}
		p = strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/")
	}
	if strings.HasPrefix(p, "$HOME") {
		p = strings.TrimPrefix(strings.TrimPrefix(p, "$HOME"), "/")
	}

	cleaned := path.Clean(p)
	switch {
	case p == "" || cleaned == ".":
		return "", fmt.Errorf("remote path must name a directory below the home directory, not the home directory itself")
	case cleaned == ".." || strings.HasPrefix(cleaned, "../"):
		return "", fmt.Errorf("remote path %q escapes the home directory", p)
	case strings.Contains(cleaned, "~"):
		return "", fmt.Errorf("remote path %q contains a literal tilde", p)
	}

	return cleaned, nil
}
