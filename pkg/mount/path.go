package mount

import (
	"path"
	"strings"
)

// NormalizePath returns the canonical form of p: forward slashes, a single
// leading "/", no "." or ".." segments and no trailing "/" (except for the
// root). "path", "/path/" and "\\path" all normalize to "/path".
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean("/" + p)
}

// FormatPath normalizes p and appends a trailing "/" unless p is the root.
// Mount points are always stored in this form.
func FormatPath(p string) string {
	p = NormalizePath(p)
	if len(p) > 1 {
		p += "/"
	}
	return p
}
