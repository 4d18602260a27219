package server

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// sanitizeBase normalizes a mount prefix to "/x/y" form; "" means root.
func sanitizeBase(bp string) string {
	bp = strings.TrimRight(strings.TrimSpace(bp), "/")
	if bp == "" {
		return ""
	}
	if bp[0] != '/' {
		bp = "/" + bp
	}
	return bp
}

// lastSegment returns the final element of a route path such as
// "/api/services/:id/start".
func lastSegment(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}

func nameRune(r rune) bool {
	switch {
	case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		return true
	}
	return r == '.' || r == '_' || r == '-'
}

// isSafeName accepts ids made of ASCII letters, digits and ". _ -" that
// never contain "..".
func isSafeName(s string) bool {
	if s == "" || strings.Contains(s, "..") {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool { return !nameRune(r) }) < 0
}

// isSafeAbsPath accepts "" and absolute paths that are already clean apart
// from trailing separators.
func isSafeAbsPath(p string) bool {
	if p == "" {
		return true
	}
	if !filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	if clean == p {
		return true
	}
	return clean == strings.TrimRight(p, string(filepath.Separator))
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
