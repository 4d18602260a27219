package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusClasses(t *testing.T) {
	cases := []struct {
		code    int
		healthy bool
	}{
		{http.StatusOK, true},
		{http.StatusNoContent, true},
		{http.StatusFound, true},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, false},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c.code == http.StatusFound {
				http.Redirect(w, r, "/elsewhere", http.StatusFound)
				return
			}
			w.WriteHeader(c.code)
		}))
		ch := NewChecker(nil)
		res := ch.Check(context.Background(), Config{Kind: KindHTTP, Endpoint: srv.URL}, 0)
		srv.Close()
		assert.Equal(t, c.healthy, res.Healthy, "code %d", c.code)
		assert.Equal(t, c.code, res.StatusCode)
	}
}

func TestHTTPRedirectNotFollowed(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/next", http.StatusMovedPermanently)
	}))
	defer srv.Close()
	res := NewChecker(nil).Check(context.Background(), Config{Kind: KindHTTP, Endpoint: srv.URL}, 0)
	assert.True(t, res.Healthy)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	res := NewChecker(nil).Check(context.Background(), Config{Kind: KindHTTP, Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, 0)
	assert.False(t, res.Healthy)
	assert.Error(t, res.Err)
	assert.NotEmpty(t, res.Message())
}

func TestTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()
	ch := NewChecker(nil)
	res := ch.Check(context.Background(), Config{Kind: KindTCP, Endpoint: addr, Timeout: time.Second}, 0)
	assert.True(t, res.Healthy)

	require.NoError(t, ln.Close())
	res = ch.Check(context.Background(), Config{Kind: KindTCP, Endpoint: addr, Timeout: time.Second}, 0)
	assert.False(t, res.Healthy)
}

func TestProcess(t *testing.T) {
	ch := NewChecker(func(pid int) bool { return pid == 42 })
	assert.True(t, ch.Check(context.Background(), Config{Kind: KindProcess}, 42).Healthy)
	assert.False(t, ch.Check(context.Background(), Config{Kind: KindProcess}, 7).Healthy)
	assert.False(t, ch.Check(context.Background(), Config{Kind: KindProcess}, 0).Healthy)
}

func TestUnknownKind(t *testing.T) {
	res := NewChecker(nil).Check(context.Background(), Config{Kind: "grpc"}, 1)
	assert.False(t, res.Healthy)
	assert.ErrorIs(t, res.Err, ErrUnknownKind)
}

func TestDefaults(t *testing.T) {
	c := Config{}.WithDefaults()
	assert.Equal(t, DefaultTimeout, c.Timeout)
	assert.Equal(t, DefaultInterval, c.Interval)
	assert.Equal(t, DefaultRetries, c.Retries)
	assert.Equal(t, KindProcess, c.Kind)
}
