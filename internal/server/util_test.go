package server

import (
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
		{"/v1/devstack//", "/v1/devstack"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestLastSegment(t *testing.T) {
	if got := lastSegment("/api/services/:id/restart"); got != "restart" {
		t.Fatalf("lastSegment = %q", got)
	}
	if got := lastSegment("start"); got != "start" {
		t.Fatalf("lastSegment = %q", got)
	}
}

func TestIsSafeName(t *testing.T) {
	valid := []string{"apache", "php-fpm", "mariadb_10.6"}
	invalid := []string{"", "..", "a..b", "a/b", `a\b`, "hello*", "unicode한글"}
	for _, s := range valid {
		if !isSafeName(s) {
			t.Fatalf("expected valid name %q", s)
		}
	}
	for _, s := range invalid {
		if isSafeName(s) {
			t.Fatalf("expected invalid name %q", s)
		}
	}
}

func TestIsSafeAbsPath(t *testing.T) {
	if !isSafeAbsPath("") {
		t.Fatalf("empty should be allowed")
	}
	abs := filepath.Join(string(filepath.Separator), "src", "app")
	if runtime.GOOS == "windows" {
		abs = `C:\src\app`
	}
	if !isSafeAbsPath(abs) {
		t.Fatalf("abs clean path should be allowed: %s", abs)
	}
	if isSafeAbsPath("src/app") {
		t.Fatalf("relative path should be rejected")
	}
	sep := string(filepath.Separator)
	bad := sep + "src" + sep + ".." + sep + "etc"
	if isSafeAbsPath(bad) {
		t.Fatalf("path with traversal should be rejected: %s", bad)
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != 201 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type: %s", ct)
	}
}

func FuzzIsSafeName(f *testing.F) {
	for _, s := range []string{"apache", "../etc", "a/b", "", "php.ini"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, s string) {
		if !isSafeName(s) {
			return
		}
		if s == "" || strings.Contains(s, "..") || strings.ContainsAny(s, `/\`) {
			t.Fatalf("unsafe name accepted: %q", s)
		}
	})
}

func FuzzSanitizeBase(f *testing.F) {
	for _, s := range []string{"", "/", "api", "/api/", " x "} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, s string) {
		got := sanitizeBase(s)
		if got == "" {
			return
		}
		if !strings.HasPrefix(got, "/") || strings.HasSuffix(got, "/") {
			t.Fatalf("sanitizeBase(%q) = %q", s, got)
		}
	})
}
