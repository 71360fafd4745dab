package client

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	serverrun "github.com/rzbill/bgq/internal/cmd/server"
	"github.com/rzbill/bgq/internal/queue"
)

func newServeCommand(g *Globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API and deliver queued tasks periodically",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := NewLogger(cfg)
			if err != nil {
				return err
			}
			if err := serverrun.Run(cmd.Context(), serverrun.Options{Config: cfg, Logger: logger, Addr: addr}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "HTTP listen address (default from server.addr)")
	return cmd
}

func newAddCommand(g *Globals) *cobra.Command {
	var (
		groupStart     string
		blockingGroups []string
	)
	cmd := &cobra.Command{
		Use:   "add <type> <json-data>",
		Short: "Persist a task without running the queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("data is not valid JSON")
			}
			payload, err := queue.ParseTask(args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			rt, err := g.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.Queue().AddTask(cmd.Context(), args[0], payload,
				queue.WithGroupStart(groupStart), queue.WithBlockingGroups(blockingGroups...))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&groupStart, "group-start", "", "Group this task opens, replacing the payload's own")
	cmd.Flags().StringSliceVar(&blockingGroups, "blocking-group", nil, "Extra group this task waits on (repeatable)")
	return cmd
}

func newRunCommand(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one queue pass and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			return printJSON(cmd.OutOrStdout(), rt.Queue().RunSync(cmd.Context()))
		},
	}
}

func newStatusCommand(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth and circuit state",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			bold := color.New(color.Bold)
			n := rt.Queue().Status(cmd.Context()).NumTasksInQueue

			bold.Fprint(out, "queue:    ")
			fmt.Fprintf(out, "%s (%s, %s)\n", rt.Config().Queue.Name, rt.Config().Storage.Backend, rt.DataDir())
			bold.Fprint(out, "tasks:    ")
			if n == 0 {
				color.New(color.FgGreen).Fprintln(out, "0")
			} else {
				color.New(color.FgYellow).Fprintln(out, n)
			}
			bold.Fprint(out, "circuit:  ")
			if cs := rt.Circuit(); cs.Paused() {
				color.New(color.FgRed).Fprintf(out, "paused until %s\n", cs.PausedUntil().Local().Format(time.RFC3339))
			} else {
				color.New(color.FgGreen).Fprintln(out, "closed")
			}
			if !rt.Config().HasCredentials() {
				color.New(color.FgRed).Fprintln(out, "warning: site_id or api_key not configured")
			}
			return nil
		},
	}
}

type inventoryRow struct {
	TaskID         string   `json:"taskId"`
	Type           string   `json:"type"`
	CreatedAt      string   `json:"createdAt"`
	GroupStart     string   `json:"groupStart,omitempty"`
	BlockingGroups []string `json:"blockingGroups,omitempty"`
}

func newInventoryCommand(g *Globals) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List queued tasks in creation order",
		Example: `  bgq inventory
  bgq inventory --filter 'type == "trackEvent" && age_ms > 60000'
  bgq inventory --filter '"identified_profile_u1" in blocking_groups'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			items, err := rt.Queue().Inventory(cmd.Context(), filter)
			if err != nil {
				return err
			}
			rows := make([]inventoryRow, 0, len(items))
			for _, it := range items {
				rows = append(rows, inventoryRow{
					TaskID:         it.TaskID,
					Type:           it.Type,
					CreatedAt:      it.CreatedAt.UTC().Format(time.RFC3339Nano),
					GroupStart:     it.GroupStart,
					BlockingGroups: it.BlockingGroups,
				})
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "CEL expression over id, type, group_start, blocking_groups, created_at_ms, age_ms")
	return cmd
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bgq version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "bgq", version)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
