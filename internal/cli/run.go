package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/framesched/internal/cluster"
	"github.com/me/framesched/internal/config"
	"github.com/me/framesched/internal/costmodel"
	"github.com/me/framesched/internal/detection"
	"github.com/me/framesched/internal/history"
	"github.com/me/framesched/internal/scheduler"
	"github.com/me/framesched/pkg/model"
)

// runOptions are the inputs and outputs of one simulation.
type runOptions struct {
	ConfigPath     string
	DetectionsPath string
	ImagesDir      string
	Name           string

	// Overrides applied on top of the config file when set.
	FramePeriod *int
	NumFrames   *int
	MaxSimTime  *int
	Merge       *string
	Mode        *string

	HistoryOut string
	BoxesOut   string
	YAMLOut    string
	Print      bool
	NoSave     bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	var framePeriod, numFrames, maxSimTime int
	var merge, mode string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate scheduling of a detection file",
		Long: `Replays each frame of a detection file at the configured frame period,
clusters its boxes into prioritized task batches, and runs them one at a time
until every task completes. The run is stored in the database unless --no-save
is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("frame-period") {
				opts.FramePeriod = &framePeriod
			}
			if flags.Changed("num-frames") {
				opts.NumFrames = &numFrames
			}
			if flags.Changed("max-sim-time") {
				opts.MaxSimTime = &maxSimTime
			}
			if flags.Changed("merge") {
				opts.Merge = &merge
			}
			if flags.Changed("mode") {
				opts.Mode = &mode
			}
			_, err := simulate(cmd.Context(), opts, cmd.OutOrStdout())
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.ConfigPath, "config", "c", "", "Simulation config YAML (default: built-in defaults)")
	f.StringVarP(&opts.DetectionsPath, "detections", "d", "", "Detection JSON file: image name -> [[x0,y0,x1,y1,depth,class], ...]")
	f.StringVar(&opts.ImagesDir, "images", "", "Directory of frame PNGs; frames are taken from it instead of the detection file")
	f.StringVar(&opts.Name, "name", "", "Run name (default: detection file name)")
	f.IntVar(&framePeriod, "frame-period", 0, "Ticks between frame arrivals (overrides config)")
	f.IntVar(&numFrames, "num-frames", 0, "Number of frames to replay, 0 for all (overrides config)")
	f.IntVar(&maxSimTime, "max-sim-time", 0, "Stop after this many ticks, 0 for no limit (overrides config)")
	f.StringVar(&merge, "merge", "", "Merge policy: interval, strict, none (overrides config)")
	f.StringVar(&mode, "mode", "", "Classification mode: tiered, singleton (overrides config)")
	f.StringVarP(&opts.HistoryOut, "out", "o", "", "Write the task history as JSON to this file")
	f.StringVar(&opts.BoxesOut, "boxes", "", "Write the scheduled boxes as JSON to this file")
	f.StringVar(&opts.YAMLOut, "yaml", "", "Write the task history as YAML to this file")
	f.BoolVar(&opts.Print, "print", false, "Print the task history table")
	f.BoolVar(&opts.NoSave, "no-save", false, "Do not store the run in the database")
	cmd.MarkFlagRequired("detections")

	return cmd
}

// loadSimConfig reads the config file (or defaults) and applies overrides.
func loadSimConfig(opts runOptions) (config.SimConfig, error) {
	cfg := config.DefaultSimConfig()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return cfg, err
		}
	}
	if opts.FramePeriod != nil {
		cfg.FramePeriod = *opts.FramePeriod
	}
	if opts.NumFrames != nil {
		cfg.NumFrames = *opts.NumFrames
	}
	if opts.MaxSimTime != nil {
		cfg.MaxSimTime = *opts.MaxSimTime
	}
	if opts.Merge != nil {
		cfg.Cluster.Merge = *opts.Merge
	}
	if opts.Mode != nil {
		cfg.Cluster.Mode = *opts.Mode
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// simulate runs one simulation, writes the requested outputs and stores the
// run. A truncated run is not an error; a failed run is stored and its error
// returned.
func simulate(ctx context.Context, opts runOptions, out io.Writer) (*model.Run, error) {
	cfg, err := loadSimConfig(opts)
	if err != nil {
		return nil, err
	}

	src, err := detection.LoadJSON(opts.DetectionsPath)
	if err != nil {
		return nil, err
	}
	var frames []string
	if opts.ImagesDir != "" {
		if frames, err = detection.ListFrames(opts.ImagesDir); err != nil {
			return nil, err
		}
	} else {
		frames = detection.FramesFromSource(src, "")
	}
	logger.Info("detections loaded", "path", opts.DetectionsPath, "images", src.Len(), "frames", len(frames))

	cl, err := cluster.New(cfg.Cluster, cfg.Frame, cfg.Deadlines, logger)
	if err != nil {
		return nil, err
	}
	cost, err := costmodel.FromConfig(cfg.Cost)
	if err != nil {
		return nil, err
	}
	loop, err := scheduler.NewLoop(frames, src, cl, cost, scheduler.ConfigFrom(cfg), logger)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	runErr := loop.Run(ctx)
	elapsed := time.Since(start)
	res := loop.Result()

	status := model.RunStatusCompleted
	switch {
	case errors.Is(runErr, scheduler.ErrTruncated):
		status = model.RunStatusTruncated
		logger.Warn("simulation truncated", "max_sim_time", cfg.MaxSimTime, "pending_tasks", res.Counters.PendingTasks)
		runErr = nil
	case runErr != nil:
		status = model.RunStatusFailed
	}

	if err := writeOutputs(opts, loop.History()); err != nil {
		return nil, err
	}
	if opts.Print {
		if err := loop.History().PrintTable(out); err != nil {
			return nil, err
		}
		fmt.Fprintln(out)
	}

	cfgMap, err := cfg.ToMap()
	if err != nil {
		return nil, err
	}
	run := &model.Run{
		Name:        opts.Name,
		Source:      opts.DetectionsPath,
		Status:      status,
		FramePeriod: cfg.FramePeriod,
		Frames:      len(detection.Limit(frames, cfg.NumFrames)),
		SimTime:     res.SimTime,
		Counters:    res.Counters,
		Config:      cfgMap,
		CreatedAt:   start.UTC(),
		Duration:    elapsed,
	}
	if run.Name == "" {
		run.Name = filepath.Base(opts.DetectionsPath)
	}
	if v, ok := res.MissRate.Value(); ok {
		run.MissRate = &v
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	if !opts.NoSave {
		st, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		if err := st.CreateRun(ctx, run, res.History, res.ScheduledBoxes); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}

	printSummary(out, run, elapsed)
	return run, runErr
}

func writeOutputs(opts runOptions, rec *history.Recorder) error {
	outputs := []struct {
		path  string
		write func(io.Writer) error
	}{
		{opts.HistoryOut, rec.WriteJSON},
		{opts.BoxesOut, rec.WriteBoxesJSON},
		{opts.YAMLOut, rec.WriteYAML},
	}
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		if err := writeFile(o.path, o.write); err != nil {
			return err
		}
		logger.Info("output written", "path", o.path)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func printSummary(w io.Writer, run *model.Run, elapsed time.Duration) {
	c := run.Counters
	if run.ID != "" {
		fmt.Fprintf(w, "run:        %s (%s)\n", run.ID, run.Name)
	} else {
		fmt.Fprintf(w, "run:        %s\n", run.Name)
	}
	fmt.Fprintf(w, "status:     %s", run.Status)
	if run.Error != "" {
		fmt.Fprintf(w, ": %s", run.Error)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "frames:     %s every %s ticks\n", humanize.Comma(int64(run.Frames)), humanize.Comma(int64(run.FramePeriod)))
	fmt.Fprintf(w, "sim time:   %s ticks (%s wall)\n", humanize.Comma(int64(run.SimTime)), elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "tasks:      %s enqueued in %s batches, %s completed, %s pending\n",
		humanize.Comma(int64(c.EnqueuedTasks)), humanize.Comma(int64(c.EnqueuedBatches)),
		humanize.Comma(int64(c.CompletedTasks)), humanize.Comma(int64(c.PendingTasks)))
	fmt.Fprintf(w, "missed:     %s\n", humanize.Comma(int64(c.MissedTasks)))
	fmt.Fprintf(w, "miss rate:  %s\n", c.MissRate())
}
