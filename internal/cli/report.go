package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/framesched/internal/analysis"
	"github.com/me/framesched/internal/config"
	"github.com/me/framesched/internal/detection"
	"github.com/me/framesched/internal/history"
	"github.com/me/framesched/pkg/model"
)

type reportOptions struct {
	HistoryPath     string
	BoxesPath       string
	ConfigPath      string
	GroundTruthPath string
	Print           bool
}

func newReportCmd() *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Summarize response times per depth group and ground-truth coverage",
		Long: `Reports the average and worst response time of each depth group, the deadline
misses per group and, with --ground-truth, how much of each ground-truth box the
scheduled boxes covered.

The history comes from a stored run (by ID) or from a history JSON file written
by "framesched run --out".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				if opts.HistoryPath != "" {
					return errors.New("give either a run ID or --history, not both")
				}
				return withBackend(cmd.Context(), func(b runBackend) error {
					run, records, boxes, err := b.GetRun(args[0])
					if err != nil {
						return err
					}
					cfg, err := config.FromMap(run.Config)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "run %s (%s), %s\n\n", run.ID, run.Name, run.Status)
					return report(out, opts, cfg.Deadlines, records, boxes)
				})
			}

			if opts.HistoryPath == "" {
				return errors.New("a run ID or --history is required")
			}
			cfg := config.DefaultSimConfig()
			if opts.ConfigPath != "" {
				var err error
				if cfg, err = config.Load(opts.ConfigPath); err != nil {
					return err
				}
			}
			records, err := readHistory(opts.HistoryPath)
			if err != nil {
				return err
			}
			var boxes map[string][]model.ScheduledBox
			if opts.BoxesPath != "" {
				if boxes, err = readBoxes(opts.BoxesPath); err != nil {
					return err
				}
			}
			return report(out, opts, cfg.Deadlines, records, boxes)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.HistoryPath, "history", "", "History JSON file to report on instead of a stored run")
	f.StringVar(&opts.BoxesPath, "boxes", "", "Scheduled boxes JSON file (with --history)")
	f.StringVarP(&opts.ConfigPath, "config", "c", "", "Simulation config YAML for the deadline table (with --history)")
	f.StringVar(&opts.GroundTruthPath, "ground-truth", "", "Ground-truth detection JSON for coverage statistics")
	f.BoolVar(&opts.Print, "print", false, "Also print the full task history")

	return cmd
}

func readHistory(path string) ([]model.HistoryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()
	return history.ReadRecordsJSON(f)
}

func readBoxes(path string) (map[string][]model.ScheduledBox, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boxes: %w", err)
	}
	var boxes map[string][]model.ScheduledBox
	if err := json.Unmarshal(data, &boxes); err != nil {
		return nil, fmt.Errorf("parse boxes %s: %w", path, err)
	}
	return boxes, nil
}

func report(w io.Writer, opts reportOptions, table model.DeadlineTable, records []model.HistoryRecord, boxes map[string][]model.ScheduledBox) error {
	rate := model.MissRate{Completed: len(records)}
	for _, rec := range records {
		if rec.Missed {
			rate.Missed++
		}
	}

	if opts.Print {
		if err := history.PrintRecords(w, records, rate); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	printGroups(w, analysis.Groups(records, table))
	fmt.Fprintf(w, "\n%s tasks, %s missed, miss rate %s\n",
		humanize.Comma(int64(rate.Completed)), humanize.Comma(int64(rate.Missed)), rate)

	if opts.GroundTruthPath == "" {
		return nil
	}
	if boxes == nil {
		return errors.New("coverage needs scheduled boxes: report a stored run or pass --boxes")
	}
	truth, err := detection.LoadJSON(opts.GroundTruthPath)
	if err != nil {
		return err
	}
	gt := make(map[string][]model.RawBox, truth.Len())
	for _, name := range truth.Frames() {
		gt[name], _ = truth.Boxes(name)
	}

	stats, err := analysis.Coverage(gt, boxes)
	if errors.Is(err, model.ErrNoData) {
		fmt.Fprintln(w, "\ncoverage: no data (no image has both ground truth and scheduled boxes)")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\ncoverage:   %s%% over %s ground-truth boxes in %s images\n",
		humanize.FtoaWithDigits(stats.Coverage*100, 2),
		humanize.Comma(int64(stats.GroundTruthBoxes)), humanize.Comma(int64(stats.Images)))
	fmt.Fprintf(w, "accuracy:   %s%%\n", humanize.FtoaWithDigits(stats.Accuracy*100, 2))
	return nil
}

func printGroups(w io.Writer, groups []analysis.GroupStats) {
	const rowFmt = "%-12s  %8s  %6s  %12s  %14s  %6s\n"
	fmt.Fprintf(w, rowFmt, "DEPTH", "DEADLINE", "TASKS", "AVG RESPONSE", "WORST RESPONSE", "MISSED")
	for _, g := range groups {
		depth := fmt.Sprintf("%g+", g.DepthMin)
		if g.DepthMax != nil {
			depth = fmt.Sprintf("%g-%g", g.DepthMin, *g.DepthMax)
		}
		fmt.Fprintf(w, rowFmt, depth, humanize.Comma(int64(g.Deadline)), humanize.Comma(int64(g.Tasks)),
			humanize.FtoaWithDigits(g.AvgResponse, 3), humanize.Comma(int64(g.WorstResponse)),
			humanize.Comma(int64(g.Missed)))
	}
}
