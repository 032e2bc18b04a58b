// Package pathutil holds request path checks shared by the middlewares.
package pathutil

import "strings"

// HasDotSegments reports whether any "/"-separated segment of p is "." or
// "..". Segments like "..." or ".hidden" are ordinary names.
func HasDotSegments(p string) bool {
	for p != "" {
		seg := p
		if i := strings.IndexByte(p, '/'); i >= 0 {
			seg, p = p[:i], p[i+1:]
		} else {
			p = ""
		}
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
