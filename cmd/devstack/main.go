package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags are shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	JSON       bool
}

// buildRoot creates the root command with every subcommand attached.
func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := createRootCommand(flags)
	root.AddCommand(
		createServeCommand(flags),
		createServiceCommand(flags),
		createProjectCommand(flags),
		createDetectCommand(flags),
		createCleanupCommand(flags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "devstack",
		Short: "Local development environment supervisor",
		Long: `devstack runs the web server, database and runtime services of a local
development stack and the dev servers of your projects.

Examples:
  devstack serve                          # start the daemon
  devstack service list
  devstack service start phpmyadmin       # starts php and mariadb first when needed
  devstack project add ~/src/shop --port 3000
  devstack project logs <id> --follow`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default from config, e.g. http://127.0.0.1:7420/api)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&flags.JSON, "json", false, "print JSON instead of tables")
	return root
}
