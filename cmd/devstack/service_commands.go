package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func createServiceCommand(flags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "service",
		Aliases: []string{"svc"},
		Short:   "Manage stack services (apache, mariadb, php, ...)",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List services in dependency order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := apiClient(flags)
				if err != nil {
					return err
				}
				list, err := c.Services(cmd.Context())
				if err != nil {
					return err
				}
				if flags.JSON {
					printJSON(cmd.OutOrStdout(), list)
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, s := range list {
					rows = append(rows, []string{
						s.ID, s.Status, pidText(s.PID), dash(s.Ownership), portText(s.Port),
						strconv.Itoa(s.RestartCount), since(s.LastStarted), dash(s.ErrorMessage),
					})
				}
				printTable(cmd.OutOrStdout(), []string{"ID", "STATUS", "PID", "OWNER", "PORT", "RESTARTS", "UPTIME", "ERROR"}, rows)
				return nil
			},
		},
		serviceAction(flags, "start", "Start a service and its dependencies"),
		serviceAction(flags, "stop", "Stop a service"),
		serviceAction(flags, "restart", "Restart a service"),
		&cobra.Command{
			Use:   "health <id>",
			Short: "Run a health check now",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := apiClient(flags)
				if err != nil {
					return err
				}
				h, err := c.ServiceHealth(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if flags.JSON {
					printJSON(cmd.OutOrStdout(), h)
					return nil
				}
				if h.Healthy {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s healthy (%dms)\n", args[0], h.LatencyMS)
					return nil
				}
				return fmt.Errorf("%s unhealthy: %s", args[0], h.Message)
			},
		},
	)
	return cmd
}

func serviceAction(flags *GlobalFlags, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(flags)
			if err != nil {
				return err
			}
			s, err := c.ServiceAction(cmd.Context(), args[0], action)
			if err != nil {
				return err
			}
			if flags.JSON {
				printJSON(cmd.OutOrStdout(), s)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (pid %s)\n", s.ID, s.Status, pidText(s.PID))
			return nil
		},
	}
}

func portText(p int) string {
	if p <= 0 {
		return "-"
	}
	return strconv.Itoa(p)
}
