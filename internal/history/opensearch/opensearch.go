// Package opensearch indexes lifecycle events through the OpenSearch (or
// Elasticsearch) REST document API.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/devstack/internal/history"
)

type Options struct {
	// BaseURL is scheme://host:port of the cluster.
	BaseURL string
	Index   string
	// Daily appends the event date, "<index>-2006.01.02", so old days can
	// be dropped by deleting indices.
	Daily    bool
	Username string
	Password string
	Timeout  time.Duration
}

type Sink struct {
	client *http.Client
	opts   Options
}

func New(opts Options) *Sink {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Index == "" {
		opts.Index = "devstack-history"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Sink{client: &http.Client{Timeout: opts.Timeout}, opts: opts}
}

// IndexFor returns the index e is written to.
func (s *Sink) IndexFor(e history.Event) string {
	if !s.opts.Daily {
		return s.opts.Index
	}
	at := e.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	return s.opts.Index + "-" + at.UTC().Format("2006.01.02")
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/%s/_doc", s.opts.BaseURL, s.IndexFor(e))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.opts.Username != "" {
		req.SetBasicAuth(s.opts.Username, s.opts.Password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch index %s: status %d: %s", s.IndexFor(e), resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
