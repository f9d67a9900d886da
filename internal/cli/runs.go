package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/framesched/internal/store"
	"github.com/me/framesched/pkg/model"
)

// runBackend reads stored runs, either from the local database or from a
// results server.
type runBackend interface {
	ListRuns(opts model.ListOptions) ([]*model.Run, int, error)
	GetRun(id string) (*model.Run, []model.HistoryRecord, map[string][]model.ScheduledBox, error)
	DeleteRun(id string) error
}

// localBackend serves runs from a SQLite store.
type localBackend struct {
	ctx context.Context
	st  store.Store
}

func (b localBackend) ListRuns(opts model.ListOptions) ([]*model.Run, int, error) {
	return b.st.ListRuns(b.ctx, opts)
}

func (b localBackend) GetRun(id string) (*model.Run, []model.HistoryRecord, map[string][]model.ScheduledBox, error) {
	run, err := b.st.GetRun(b.ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if run == nil {
		return nil, nil, nil, fmt.Errorf("run %s not found", id)
	}
	records, err := b.st.AllHistory(b.ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	boxes, err := b.st.ListScheduledBoxes(b.ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return run, records, boxes, nil
}

func (b localBackend) DeleteRun(id string) error {
	return b.st.DeleteRun(b.ctx, id)
}

// withBackend calls fn with the server client when --server is set, else
// with the local database.
func withBackend(ctx context.Context, fn func(runBackend) error) error {
	if client != nil {
		return fn(client)
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(localBackend{ctx: ctx, st: st})
}

func newRunsCmd() *cobra.Command {
	opts := model.DefaultListOptions()
	var status string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				st, err := model.ParseRunStatus(status)
				if err != nil {
					return err
				}
				opts.Status = st
			}
			return withBackend(cmd.Context(), func(b runBackend) error {
				runs, total, err := b.ListRuns(opts)
				if err != nil {
					return err
				}
				printRuns(cmd.OutOrStdout(), runs, total)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", opts.Limit, "Maximum number of runs to list")
	cmd.Flags().IntVar(&opts.Offset, "offset", opts.Offset, "Number of runs to skip")
	cmd.Flags().StringVar(&status, "status", "", "Only list runs with this status (COMPLETED, TRUNCATED, FAILED)")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(b runBackend) error {
				if err := b.DeleteRun(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s deleted.\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func printRuns(w io.Writer, runs []*model.Run, total int) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return
	}

	const rowFmt = "%-40s  %-24s  %-10s  %8s  %8s  %9s  %s\n"
	fmt.Fprintf(w, rowFmt, "ID", "NAME", "STATUS", "TASKS", "MISSED", "MISS RATE", "CREATED")
	fmt.Fprintf(w, rowFmt, "--", "----", "------", "-----", "------", "---------", "-------")
	for _, run := range runs {
		fmt.Fprintf(w, rowFmt,
			run.ID, truncate(run.Name, 24), run.Status,
			humanize.Comma(int64(run.Counters.CompletedTasks)),
			humanize.Comma(int64(run.Counters.MissedTasks)),
			run.Counters.MissRate(),
			humanize.Time(run.CreatedAt),
		)
	}
	if len(runs) < total {
		fmt.Fprintf(w, "\n(%d of %d shown)\n", len(runs), total)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
