package storage

import (
	"crypto/md5"
	"encoding/hex"
	"path"
	"strings"
)

// MaxIDLength is the longest storage id used verbatim. Longer ids are
// replaced by their MD5 hex digest so they stay usable as cache keys.
const MaxIDLength = 64

// HashID returns id unchanged when it fits MaxIDLength, otherwise its MD5
// hex digest. Mount, Manager and the id-hash wrapper all go through here.
func HashID(id string) string {
	if len(id) <= MaxIDLength {
		return id
	}
	sum := md5.Sum([]byte(id))
	return hex.EncodeToString(sum[:])
}

// CleanPath turns a backend-internal path into its canonical form: slash
// separated, no leading or trailing slash, "" for the root. It reports
// false when the path escapes the root through "..".
func CleanPath(p string) (string, bool) {
	p = strings.ReplaceAll(p, "\\", "/")
	cleaned := path.Clean("/" + p)
	if strings.Contains(p, "..") {
		// path.Clean clamps at "/", so escapes must be detected on the raw segments
		depth := 0
		for _, seg := range strings.Split(p, "/") {
			switch seg {
			case "", ".":
			case "..":
				depth--
				if depth < 0 {
					return "", false
				}
			default:
				depth++
			}
		}
	}
	return strings.TrimPrefix(cleaned, "/"), true
}

// ParentPath returns the parent of a canonical internal path. The parent of
// a top-level entry is "" and the parent of the root is "".
func ParentPath(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// JoinPath joins canonical internal path segments.
func JoinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	if name == "" {
		return dir
	}
	return dir + "/" + name
}

// BaseName returns the last segment of a canonical internal path.
func BaseName(p string) string {
	return p[strings.LastIndex(p, "/")+1:]
}
