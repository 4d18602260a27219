// Package health probes a running service or project. A probe is a single
// attempt; retry policy belongs to the caller.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

type Kind string

const (
	KindHTTP    Kind = "http"
	KindTCP     Kind = "tcp"
	KindProcess Kind = "process"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultInterval = 30 * time.Second
	DefaultRetries  = 3
)

// Config selects the probe. Endpoint is a URL for http and host:port for
// tcp; it is ignored for process.
type Config struct {
	Enabled  bool          `mapstructure:"enabled" json:"enabled"`
	Kind     Kind          `mapstructure:"kind" json:"kind"`
	Endpoint string        `mapstructure:"endpoint" json:"endpoint,omitempty"`
	Interval time.Duration `mapstructure:"interval" json:"interval,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
	Retries  int           `mapstructure:"retries" json:"retries,omitempty"`
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Retries <= 0 {
		c.Retries = DefaultRetries
	}
	if c.Kind == "" {
		c.Kind = KindProcess
	}
	return c
}

type Result struct {
	Healthy    bool          `json:"healthy"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
	Err        error         `json:"-"`
}

// Message renders the failure reason, or "" when healthy.
func (r Result) Message() string {
	if r.Healthy {
		return ""
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.StatusCode != 0 {
		return fmt.Sprintf("unexpected status %d", r.StatusCode)
	}
	return "unhealthy"
}

var ErrUnknownKind = errors.New("unknown health check kind")

// Prober runs one check. The supervisor depends on this rather than on
// Checker so tests can script results.
type Prober interface {
	Check(ctx context.Context, cfg Config, pid int) Result
}

// Checker is the real Prober.
type Checker struct {
	// IsAlive answers process probes.
	IsAlive func(pid int) bool
	client  *http.Client
}

func NewChecker(isAlive func(pid int) bool) *Checker {
	return &Checker{
		IsAlive: isAlive,
		client: &http.Client{
			// some dev servers redirect on the first hit; a 3xx is a live server
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (c *Checker) Check(ctx context.Context, cfg Config, pid int) Result {
	cfg = cfg.WithDefaults()
	start := time.Now()
	var res Result
	switch cfg.Kind {
	case KindHTTP:
		res = c.checkHTTP(ctx, cfg)
	case KindTCP:
		res = checkTCP(ctx, cfg)
	case KindProcess:
		res = c.checkProcess(pid)
	default:
		res = Result{Err: fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)}
	}
	res.Latency = time.Since(start)
	return res
}

func (c *Checker) checkHTTP(ctx context.Context, cfg Config) Result {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Endpoint, nil)
	if err != nil {
		return Result{Err: fmt.Errorf("build request: %w", err)}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	_ = resp.Body.Close()
	ok := resp.StatusCode >= 200 && resp.StatusCode < 400
	return Result{Healthy: ok, StatusCode: resp.StatusCode}
}

func checkTCP(ctx context.Context, cfg Config) Result {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Endpoint)
	if err != nil {
		return Result{Err: err}
	}
	_ = conn.Close()
	return Result{Healthy: true}
}

func (c *Checker) checkProcess(pid int) Result {
	if c.IsAlive == nil {
		return Result{Err: errors.New("no liveness function configured")}
	}
	if pid <= 0 {
		return Result{Err: errors.New("no pid")}
	}
	if !c.IsAlive(pid) {
		return Result{Err: fmt.Errorf("process %d is not running", pid)}
	}
	return Result{Healthy: true}
}
