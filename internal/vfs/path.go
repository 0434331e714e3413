package vfs

import (
	"path"
	"strings"
)

// splitPath returns the non-empty segments of p.
func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}

// resolve joins elems right to left until one is absolute, falling back to
// the current directory, and normalises the result lexically. Empty elements
// are skipped.
func (f *FS) resolve(elems ...string) string {
	resolved := ""
	for i := len(elems) - 1; i >= 0; i-- {
		e := elems[i]
		if e == "" {
			continue
		}
		if resolved == "" {
			resolved = e
		} else {
			resolved = e + "/" + resolved
		}
		if strings.HasPrefix(e, "/") {
			return path.Clean(resolved)
		}
	}
	return path.Clean(f.cwd + "/" + resolved)
}

// relative returns the path leading from one absolute location to another:
// empty when they are equal, starting with ".." when to is not below from.
func (f *FS) relative(from, to string) string {
	fromParts := splitPath(f.resolve(from))
	toParts := splitPath(f.resolve(to))

	common := 0
	for common < len(fromParts) && common < len(toParts) && fromParts[common] == toParts[common] {
		common++
	}

	out := make([]string, 0, len(fromParts)-common+len(toParts)-common)
	for range fromParts[common:] {
		out = append(out, "..")
	}
	out = append(out, toParts[common:]...)
	return strings.Join(out, "/")
}

// baseName is the final segment of p with trailing slashes ignored; "" for
// the root.
func baseName(p string) string {
	p = strings.TrimRight(p, "/")
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// dirName is p without its final segment.
func dirName(p string) string {
	p = strings.TrimRight(p, "/")
	idx := strings.LastIndexByte(p, '/')
	switch {
	case idx < 0:
		return "."
	case idx == 0:
		return "/"
	}
	return p[:idx]
}

func joinPath(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}
