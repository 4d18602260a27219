package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loykin/devstack/internal/framework"
)

// createDetectCommand runs detection locally; no daemon is needed.
func createDetectCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "detect [dir]",
		Short: "Detect the framework of a project directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			t := framework.Detect(abs)
			if flags.JSON {
				printJSON(cmd.OutOrStdout(), map[string]string{"path": abs, "type": string(t), "default_command": framework.DefaultCommand(t)})
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (default command: %s)\n", abs, t, framework.DefaultCommand(t))
			return nil
		},
	}
}

func createCleanupCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Show what the daemon killed at startup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(flags)
			if err != nil {
				return err
			}
			lines, err := c.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "nothing was cleaned up")
			}
			for _, l := range lines {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
}
