package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/loykin/devstack/internal/config"
	"github.com/loykin/devstack/internal/framework"
	"github.com/loykin/devstack/pkg/client"
)

// AddFlags holds flags for project add
type AddFlags struct {
	Name    string
	Port    int
	Type    string
	Command string
	Env     []string
}

func createProjectCommand(flags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"proj"},
		Short:   "Manage project dev servers",
	}
	cmd.AddCommand(
		createProjectListCommand(flags),
		createProjectAddCommand(flags),
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Stop a project and remove it from the list",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := apiClient(flags)
				if err != nil {
					return err
				}
				if err := c.RemoveProject(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			},
		},
		projectAction(flags, "start", "Start a project's dev server"),
		projectAction(flags, "stop", "Stop a project's dev server"),
		projectAction(flags, "restart", "Restart a project's dev server"),
		createProjectLogsCommand(flags),
	)
	return cmd
}

func createProjectListCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(flags)
			if err != nil {
				return err
			}
			list, err := c.Projects(cmd.Context())
			if err != nil {
				return err
			}
			if flags.JSON {
				printJSON(cmd.OutOrStdout(), list)
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, p := range list {
				status, pid, milestone := "stopped", "-", "-"
				if p.Process != nil {
					status, pid, milestone = p.Process.Status, pidText(p.Process.PID), dash(p.Process.Milestone)
				}
				rows = append(rows, []string{p.ID, p.Name, p.Type, portText(p.Port), status, pid, milestone, p.Path})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "TYPE", "PORT", "STATUS", "PID", "MILESTONE", "PATH"}, rows)
			return nil
		},
	}
}

func createProjectAddCommand(flags *GlobalFlags) *cobra.Command {
	f := &AddFlags{}
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Add a project directory",
		Long: `Add a project directory. The framework is detected from the files in the
directory unless --type is given; the start command defaults per framework.

Examples:
  devstack project add ~/src/shop --port 3000
  devstack project add ./api --type fastapi --port 8000 --env DEBUG=1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := f.project(args[0])
			if err != nil {
				return err
			}
			c, err := apiClient(flags)
			if err != nil {
				return err
			}
			created, err := c.AddProject(cmd.Context(), p)
			if err != nil {
				return err
			}
			if flags.JSON {
				printJSON(cmd.OutOrStdout(), created)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s) as %s\n", created.Name, created.Type, created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "display name (default: directory name)")
	cmd.Flags().IntVar(&f.Port, "port", 0, "port the dev server should listen on")
	cmd.Flags().StringVar(&f.Type, "type", "", "framework, one of: "+typeNames())
	cmd.Flags().StringVar(&f.Command, "command", "", "start command (default per framework)")
	cmd.Flags().StringArrayVar(&f.Env, "env", nil, "extra environment KEY=VALUE (repeatable)")
	return cmd
}

func (f *AddFlags) project(path string) (client.Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return client.Project{}, err
	}
	if st, err := os.Stat(abs); err != nil || !st.IsDir() {
		return client.Project{}, fmt.Errorf("%s is not a directory", abs)
	}
	p := client.Project{Name: f.Name, Path: abs, Port: f.Port, StartCommand: f.Command}
	if p.Name == "" {
		p.Name = filepath.Base(abs)
	}
	if f.Type != "" {
		t := framework.ParseType(f.Type)
		if t == framework.Unknown && !strings.EqualFold(f.Type, string(framework.Unknown)) {
			return client.Project{}, fmt.Errorf("unknown project type %q", f.Type)
		}
		p.Type = string(t)
	}
	for _, kv := range f.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return client.Project{}, fmt.Errorf("invalid --env %q: want KEY=VALUE", kv)
		}
		if p.EnvVars == nil {
			p.EnvVars = map[string]string{}
		}
		p.EnvVars[k] = v
	}
	return p, nil
}

func typeNames() string {
	var names []string
	for _, t := range framework.Types() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

func projectAction(flags *GlobalFlags, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(flags)
			if err != nil {
				return err
			}
			info, err := c.ProjectAction(cmd.Context(), args[0], action)
			if err != nil {
				return err
			}
			if info == nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s stopped\n", args[0])
				return nil
			}
			if flags.JSON {
				printJSON(cmd.OutOrStdout(), info)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (pid %d): %s\n", args[0], info.Status, info.PID, info.Command)
			return nil
		},
	}
}

func createProjectLogsCommand(flags *GlobalFlags) *cobra.Command {
	var n int
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Show a project's recent output",
		Long: `Show the output lines the daemon retained for a project. With --follow
the project's rotating stdout and stderr files are tailed until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			c, err := apiClient(flags)
			if err != nil {
				return err
			}
			lines, err := c.Logs(cmd.Context(), id, n)
			if err != nil && !follow {
				return err
			}
			out := cmd.OutOrStdout()
			for _, l := range lines {
				_, _ = fmt.Fprintf(out, "%s %-5s %s\n", l.Time.Local().Format("15:04:05"), l.Level, l.Message)
			}
			if !follow {
				return nil
			}
			cfg, err := config.Load(flags.ConfigPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return followLogs(ctx, out, logPaths(cfg, id))
		},
	}
	cmd.Flags().IntVarP(&n, "lines", "n", 100, "number of retained lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new output")
	return cmd
}

// logPaths mirrors logger.Config.ProcessWriters: explicit paths win over Dir.
func logPaths(cfg *config.Config, id string) map[string]string {
	fc := cfg.Log.File
	stdout, stderr := fc.StdoutPath, fc.StderrPath
	if stdout == "" {
		stdout = filepath.Join(fc.Dir, id+".stdout.log")
	}
	if stderr == "" {
		stderr = filepath.Join(fc.Dir, id+".stderr.log")
	}
	return map[string]string{"": stdout, "err ": stderr}
}

// followLogs tails every file from its current end and prints new lines,
// stderr lines prefixed, until ctx is done.
func followLogs(ctx context.Context, out io.Writer, files map[string]string) error {
	var mu sync.Mutex
	var wg sync.WaitGroup
	var tails []*tail.Tail
	for prefix, path := range files {
		t, err := tail.TailFile(path, tail.Config{
			Follow:    true,
			ReOpen:    true,
			MustExist: false,
			Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
			Logger:    tail.DiscardingLogger,
		})
		if err != nil {
			for _, t := range tails {
				_ = t.Stop()
			}
			return fmt.Errorf("tail %s: %w", path, err)
		}
		tails = append(tails, t)
		wg.Add(1)
		go func(prefix string, t *tail.Tail) {
			defer wg.Done()
			for line := range t.Lines {
				if line.Err != nil {
					continue
				}
				mu.Lock()
				_, _ = fmt.Fprintln(out, prefix+line.Text)
				mu.Unlock()
			}
		}(prefix, t)
	}
	<-ctx.Done()
	for _, t := range tails {
		_ = t.Stop()
		t.Cleanup()
	}
	wg.Wait()
	return nil
}
