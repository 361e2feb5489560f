// Package cmd wires the seld command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/seld-go/internal/buildinfo"
	"github.com/tphakala/seld-go/internal/conf"
	"github.com/tphakala/seld-go/internal/cpuspec"
	"github.com/tphakala/seld-go/internal/datastore"
	"github.com/tphakala/seld-go/internal/logger"
	"github.com/tphakala/seld-go/internal/observability"
	"github.com/tphakala/seld-go/internal/training"
)

const usageBanner = `
-------------------------------------------------------------------------------------------------------
The command expected two optional inputs
	>> seld <task-id> <job-id>
		<task-id> chooses the parameter set (%s)
Using default inputs for now
		<job-id> is a unique identifier used in output filenames (models, results, plots).
		You can use any number or string for this.
-------------------------------------------------------------------------------------------------------

`

// flags holds the persistent command line flags.
type flags struct {
	configFile string
	debug      bool
}

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:   "seld [task-id] [job-id]",
		Short: "Train and evaluate a sound event localization and detection model",
		Long: `seld trains an ACCDOA model on precomputed features for every split of the
configured DCASE dataset, keeps the checkpoint with the best validation SELD
score and reports its scores on the test folds.`,
		Version:       buildinfo.Current().String(),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, jobID := parseArgs(args, cmd.OutOrStdout())
			return run(cmd.Context(), f, taskID, jobID)
		},
	}

	rootCmd.PersistentFlags().StringVar(&f.configFile, "config", "", "YAML file overriding the parameter set")
	rootCmd.PersistentFlags().BoolVarP(&f.debug, "debug", "d", false, "Enable debug output")

	return rootCmd
}

// parseArgs resolves the task and job ids. Any count other than two prints
// the usage banner and falls back to defaults.
func parseArgs(args []string, out io.Writer) (taskID, jobID string) {
	if len(args) != 2 {
		fmt.Fprintf(out, usageBanner, strings.Join(conf.TaskIDs(), ", "))
	}

	taskID, jobID = conf.DefaultTaskID, conf.DefaultJobID
	if len(args) >= 1 {
		taskID = args[0]
	}
	if len(args) >= 2 {
		jobID = args[len(args)-1]
	}
	return taskID, jobID
}

func run(ctx context.Context, f *flags, taskID, jobID string) error {
	settings, err := conf.Load(conf.LoadOptions{ConfigFile: f.configFile, TaskID: taskID, JobID: jobID})
	if err != nil {
		return err
	}
	if f.debug {
		settings.Debug = true
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	defer central.Close()

	log := central.Module("main")
	log.Info("starting",
		logger.String("version", buildinfo.Current().GetVersion()),
		logger.String("task_id", settings.TaskID),
		logger.String("job_id", settings.JobID),
		logger.String("dataset_dir", settings.Dataset.DatasetDir),
		logger.String("dataset", settings.Dataset.Dataset),
		logger.String("mode", settings.Dataset.Mode),
		logger.Bool("quick_test", settings.Main.QuickTest))
	log.Info("device", cpuspec.GetDevice().Fields()...)

	var opts []training.Option
	var endpoint *observability.Endpoint

	if settings.Output.Metrics || settings.Output.MetricsListen != "" {
		m, err := observability.NewMetrics()
		if err != nil {
			return err
		}
		opts = append(opts, training.WithMetrics(m))

		if settings.Output.MetricsListen != "" {
			if endpoint, err = observability.ListenEndpoint(settings.Output.MetricsListen, m); err != nil {
				return err
			}
		}
	}

	if settings.Output.SQLite.Enabled {
		store, err := datastore.OpenSQLite(settings.Output.SQLite.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, training.WithStore(store))
	}

	runner := training.NewRunner(settings, opts...)
	log.Info("run started", logger.String("run_id", runner.RunID()))

	summaries, err := superviseRun(ctx, runner, endpoint)
	if err != nil {
		log.Error("run failed", logger.Error(err))
		return err
	}

	for _, s := range summaries {
		log.Info("split result",
			logger.String("split", s.UniqueName),
			logger.Int("best_val_epoch", s.Best.Epoch),
			logger.String("val_scores", s.Best.Scores.String()),
			logger.String("test_scores", s.Test.String()))
	}
	return nil
}

// superviseRun runs the splits next to the optional metrics endpoint. The
// endpoint stops once the run returns; an endpoint failure cancels the run
// at the next epoch boundary.
func superviseRun(ctx context.Context, runner *training.Runner, endpoint *observability.Endpoint) ([]training.SplitSummary, error) {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	if endpoint != nil {
		g.Go(func() error { return endpoint.Serve(runCtx) })
	}

	var summaries []training.SplitSummary
	g.Go(func() error {
		defer stopServing()
		var err error
		summaries, err = runner.Run(runCtx)
		return err
	})

	err := g.Wait()
	return summaries, err
}
