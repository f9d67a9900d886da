package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/framesched/internal/config"
	"github.com/me/framesched/internal/logging"
	"github.com/me/framesched/internal/store"
	"github.com/me/framesched/internal/version"
)

var (
	flagServer    string
	flagDB        string
	flagDebug     bool
	flagQuiet     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the results server URL from FRAMESCHED_SERVER. Empty
// means commands read the local database.
func defaultServer() string {
	return os.Getenv("FRAMESCHED_SERVER")
}

// NewRootCmd creates the root cobra command for the framesched CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "framesched",
		Short: "framesched simulates deadline scheduling of detection-box tasks",
		Long: `framesched replays per-frame object detections through a box clusterer and a
priority run queue, and reports which tasks met their depth-based deadlines.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLoggerWithWriter(
				logging.ResolveLevel(flagLogLevel, flagDebug, flagQuiet), flagLogFormat, cmd.ErrOrStderr())
			client = nil
			if flagServer != "" {
				client = NewClient(flagServer, logger)
			}
		},
		SilenceUsage: true,
		Version:      version.String(),
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Results server URL for runs/report (or FRAMESCHED_SERVER env)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "Database path (default ~/.framesched/runs.db)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Only log errors")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newRunsCmd(),
		newReportCmd(),
		newServeCmd(),
		newVersionCmd(),
	)

	return root
}

// openStore opens and migrates the run database named by --db.
func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	dbPath, err := config.ResolveDBPath(flagDB)
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Debug("database ready", "path", dbPath)
	return st, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the framesched version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "framesched %s\n", version.String())
		},
	}
}
