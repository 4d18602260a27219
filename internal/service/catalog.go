package service

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/devstack/internal/health"
)

// Well-known install roots probed on Windows, in priority order.
var windowsRoots = []string{`C:\devstack\bin`, `C:\xampp`, `C:\laragon\bin`}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// candidates lists executable paths for a service. Patterns may contain
// globs; versioned laragon directories are matched that way.
func candidates(id, root string) []string {
	var out []string
	if runtime.GOOS == "windows" {
		roots := windowsRoots
		if root != "" {
			roots = append([]string{root}, roots...)
		}
		for _, r := range roots {
			switch id {
			case "apache":
				out = append(out,
					filepath.Join(r, "apache", "bin", "httpd.exe"),
					filepath.Join(r, "apache", "httpd-*", "bin", "httpd.exe"))
			case "mariadb":
				out = append(out,
					filepath.Join(r, "mysql", "bin", "mysqld.exe"),
					filepath.Join(r, "mariadb", "bin", "mysqld.exe"),
					filepath.Join(r, "mysql", "mariadb-*", "bin", "mysqld.exe"))
			case "php":
				out = append(out,
					filepath.Join(r, "php", "php-cgi.exe"),
					filepath.Join(r, "php", "php-*", "php-cgi.exe"))
			}
		}
		return out
	}
	if root != "" {
		switch id {
		case "apache":
			out = append(out, filepath.Join(root, "apache", "bin", "httpd"))
		case "mariadb":
			out = append(out, filepath.Join(root, "mariadb", "bin", "mariadbd"), filepath.Join(root, "mariadb", "bin", "mysqld"))
		case "php":
			out = append(out, filepath.Join(root, "php", "bin", "php-cgi"))
		}
	}
	switch id {
	case "apache":
		out = append(out, "/usr/sbin/httpd", "/usr/sbin/apache2", "/opt/homebrew/bin/httpd", "/usr/local/bin/httpd")
	case "mariadb":
		out = append(out, "/usr/sbin/mariadbd", "/usr/sbin/mysqld", "/opt/homebrew/bin/mariadbd", "/usr/local/bin/mariadbd")
	case "php":
		out = append(out, "/usr/bin/php-cgi", "/opt/homebrew/bin/php-cgi", "/usr/local/bin/php-cgi")
	}
	return out
}

// locate returns the first existing candidate, or the first candidate when
// none exists so the service is reported as not installed with a useful path.
func locate(cands []string, exists func(string) bool) string {
	for _, c := range cands {
		if !hasMeta(c) {
			if exists(c) {
				return c
			}
			continue
		}
		matches, _ := filepath.Glob(c)
		sort.Sort(sort.Reverse(sort.StringSlice(matches)))
		for _, m := range matches {
			if exists(m) {
				return m
			}
		}
	}
	for _, c := range cands {
		if !hasMeta(c) {
			return c
		}
	}
	return ""
}

func hasMeta(p string) bool {
	for _, r := range p {
		switch r {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// WithPort returns d listening on port. Loopback "127.0.0.1:<old>"
// addresses in the health endpoint and the args move along with it.
func (d Descriptor) WithPort(port int) Descriptor {
	old := d.Port
	d.Port = port
	if old <= 0 || port <= 0 || old == port {
		return d
	}
	from, to := loopback(old), loopback(port)
	d.HealthCheck.Endpoint = rebind(d.HealthCheck.Endpoint, from, to)
	if d.Args != nil {
		args := make([]string, len(d.Args))
		for i, a := range d.Args {
			args[i] = rebind(a, from, to)
		}
		d.Args = args
	}
	return d
}

func loopback(port int) string { return "127.0.0.1:" + strconv.Itoa(port) }

// rebind replaces from with to wherever from is not followed by another
// digit, so ":80" never matches inside ":8081".
func rebind(s, from, to string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, from)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := i + len(from)
		b.WriteString(s[:i])
		if end < len(s) && s[end] >= '0' && s[end] <= '9' {
			b.WriteString(from)
		} else {
			b.WriteString(to)
		}
		s = s[end:]
	}
}

// DefaultCatalog builds the bundled services. root is the configured
// install root; exists is the file probe, Exists when nil.
func DefaultCatalog(root string, exists func(string) bool) []Descriptor {
	if exists == nil {
		exists = Exists
	}
	apache := locate(candidates("apache", root), exists)
	mariadb := locate(candidates("mariadb", root), exists)
	php := locate(candidates("php", root), exists)

	phpCLI := "php"
	if php != "" {
		name := "php"
		if runtime.GOOS == "windows" {
			name = "php.exe"
		}
		phpCLI = filepath.Join(filepath.Dir(php), name)
	}
	pmaDir := filepath.Join(root, "phpmyadmin")
	if root == "" {
		pmaDir = "phpmyadmin"
	}

	return []Descriptor{
		{
			ID: "apache", Name: "Apache HTTP Server", Type: TypeWebServer,
			Executable: apache, Args: []string{"-DFOREGROUND"},
			Port: 80, AdditionalPorts: []int{443},
			HealthCheck: health.Config{Enabled: true, Kind: health.KindHTTP, Endpoint: "http://127.0.0.1:80/", Interval: 30 * time.Second, Timeout: 5 * time.Second, Retries: 3},
			AutoStart:   true, AutoRestart: true, RestartDelay: 2 * time.Second, MaxRestarts: 3,
		},
		{
			ID: "mariadb", Name: "MariaDB", Type: TypeDatabase,
			Executable: mariadb, Args: []string{"--console"},
			Port:        3306,
			HealthCheck: health.Config{Enabled: true, Kind: health.KindTCP, Endpoint: "127.0.0.1:3306", Interval: 30 * time.Second, Timeout: 5 * time.Second, Retries: 3},
			AutoStart:   true, AutoRestart: true, RestartDelay: 2 * time.Second, MaxRestarts: 3,
		},
		{
			ID: "php", Name: "PHP FastCGI", Type: TypeRuntime,
			Executable: php, Args: []string{"-b", "127.0.0.1:9000"},
			Port:        9000,
			HealthCheck: health.Config{Enabled: true, Kind: health.KindTCP, Endpoint: "127.0.0.1:9000", Interval: 30 * time.Second, Timeout: 5 * time.Second, Retries: 3},
			AutoRestart: true, RestartDelay: time.Second, MaxRestarts: 5,
		},
		{
			ID: "phpmyadmin", Name: "phpMyAdmin", Type: TypeTool,
			Executable: phpCLI, Args: []string{"-S", "127.0.0.1:8081", "-t", pmaDir},
			Port:        8081,
			DependsOn:   []string{"php", "mariadb"},
			HealthCheck: health.Config{Enabled: true, Kind: health.KindHTTP, Endpoint: "http://127.0.0.1:8081/", Interval: 30 * time.Second, Timeout: 5 * time.Second, Retries: 2},
			RestartDelay: time.Second, MaxRestarts: 3,
		},
	}
}
