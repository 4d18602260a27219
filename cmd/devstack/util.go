package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/loykin/devstack/internal/config"
	"github.com/loykin/devstack/pkg/client"
)

// apiClient resolves the daemon URL from --api-url or the config file.
func apiClient(flags *GlobalFlags) (*client.Client, error) {
	base := flags.APIUrl
	if base == "" {
		cfg, err := config.Load(flags.ConfigPath)
		if err != nil {
			return nil, err
		}
		base = "http://" + cfg.Server.Listen + cfg.Server.BasePath
	}
	return client.New(client.Config{BaseURL: strings.TrimRight(base, "/"), Timeout: flags.APITimeout}), nil
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

// printTable writes tab separated rows aligned in columns.
func printTable(w io.Writer, header []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	_ = tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func pidText(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return fmt.Sprint(pid)
}

func since(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return time.Since(*t).Truncate(time.Second).String()
}
