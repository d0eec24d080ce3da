// disksync is the crash-safe directory replication tool: it reconciles
// destination trees with their sources under clone, sync, or safety_net
// mode, journaling every mutation for reversal and checkpointing for
// resume.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/app"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/config"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/journal"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/logging"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/utils"
)

var (
	flagConfig    string
	flagStateRoot string
	flagJob       string
	flagResume    bool
	flagDryRun    bool
	flagNoLogs    bool
	flagLogDir    string
	flagPruneDays int
)

func main() {
	root := &cobra.Command{
		Use:           "disksync",
		Short:         "Crash-safe directory replication with journaled rollback and resume",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config.yaml (default <exe dir>/config/config.yaml)")
	root.PersistentFlags().StringVar(&flagStateRoot, "state-root", "", "override the state directory root")
	root.PersistentFlags().StringVar(&flagJob, "job", "", "restrict to a single job by name")
	root.PersistentFlags().BoolVar(&flagNoLogs, "no-logs", false, "log to stderr only, write no log files")
	root.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "log file directory (default <exe dir>/logs)")

	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Run the configured reconciliation jobs",
		RunE:  runBackup,
	}
	backupCmd.Flags().BoolVar(&flagResume, "resume", false, "resume from the last checkpoint")
	backupCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "plan and log actions without mutating anything")
	backupCmd.Flags().IntVar(&flagPruneDays, "prune-days", 0, "delete state artifacts older than this many days after the run (0 disables)")

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Replay a job's most recent journal in reverse",
		RunE:  runRollback,
	}

	journalsCmd := &cobra.Command{
		Use:   "journals",
		Short: "List recorded journals",
		RunE:  runJournals,
	}

	snapshotsCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List recorded snapshots",
		RunE:  runSnapshots,
	}

	root.AddCommand(backupCmd, rollbackCmd, journalsCmd, snapshotsCmd)

	if err := root.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// appRoot anchors default paths next to the executable so scheduled runs
// behave the same regardless of working directory.
func appRoot() string {
	root, err := utils.ExeDir()
	if err != nil {
		root, _ = os.Getwd()
	}
	return root
}

func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = filepath.Join(appRoot(), "config", "config.yaml")
	}
	if !config.Exists(path) && flagConfig == "" {
		if err := config.WriteDefault(path); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no config found; a starter config was written to %s — edit it and rerun", path)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.StateRoot == "" {
		cfg.StateRoot = filepath.Join(appRoot(), "state")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	dir := flagLogDir
	if dir == "" {
		dir = filepath.Join(appRoot(), "logs")
	}
	return logging.New(logging.Settings{
		NoFile: flagNoLogs,
		Dir:    dir,
		Level:  cfg.LogLevel,
	})
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	// The cancel flag is one process-wide atomic; SIGINT/SIGTERM request
	// an orderly, resumable stop rather than killing mid-copy.
	var cancelled atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("cancel requested; finishing in-flight files and saving state")
		cancelled.Store(true)
	}()

	var bar *progressbar.ProgressBar
	progress := func(percent int, processed, total int64) {
		if bar == nil {
			bar = progressbar.NewOptions64(total,
				progressbar.OptionSetDescription("Reconciling"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set64(processed)
	}

	outcomes, err := app.Run(cfg, app.Options{
		StateRoot:       flagStateRoot,
		Resume:          flagResume,
		DryRun:          flagDryRun,
		JobFilter:       flagJob,
		Progress:        progress,
		CancelRequested: cancelled.Load,
	}, log)
	if err != nil {
		return err
	}

	if flagPruneDays > 0 && !flagDryRun {
		paths := app.StatePaths(cfg, flagStateRoot)
		jobs := make([]string, 0, len(cfg.Jobs))
		for _, j := range cfg.Jobs {
			jobs = append(jobs, j.Name)
		}
		if err := app.PruneStateArtifacts(paths, jobs, flagPruneDays, log); err != nil {
			log.Warnf("state pruning failed: %v", err)
		}
	}

	return printOutcomes(outcomes)
}

func printOutcomes(outcomes []app.Outcome) error {
	var failed int
	for _, o := range outcomes {
		if o.Result == nil {
			color.New(color.FgRed).Printf("%-20s skipped: %v\n", o.Job.Name, o.Err)
			failed++
			continue
		}
		s := o.Result.Stats
		line := fmt.Sprintf("%-20s %-15s created=%d replaced=%d deleted=%d safetynet=%d same=%d excluded=%d failed=%d",
			o.Job.Name, o.Result.Status, s.CreatedFiles, s.ReplacedFiles, s.DeletedFiles,
			s.SafetyNetFiles, s.SkippedSame, s.SkippedExcluded, s.CopyFailed)
		switch o.Result.Status {
		case journal.StatusSuccess:
			color.New(color.FgGreen).Println(line)
		case journal.StatusCancelled:
			color.New(color.FgYellow).Println(line + "  (resumable with --resume)")
		default:
			color.New(color.FgRed).Println(line)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d job(s) did not succeed", failed)
	}
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	if flagJob == "" {
		return fmt.Errorf("rollback requires --job")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	res, err := app.Rollback(app.StatePaths(cfg, flagStateRoot), flagJob, "", log)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Printf("rollback complete: %d restored, %d skipped\n", res.Restored, res.Skipped)
	return nil
}

func runJournals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	infos, err := app.ListJournals(app.StatePaths(cfg, flagStateRoot), flagJob)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no journals recorded")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%-20s %-17s %-16s ops=%d\n", info.Job, info.Timestamp, info.Status, info.Ops)
	}
	return nil
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths := app.StatePaths(cfg, flagStateRoot)

	jobs := []string{flagJob}
	if flagJob == "" {
		var err error
		jobs, err = app.Jobs(paths)
		if err != nil {
			return err
		}
	}
	if len(jobs) == 0 {
		fmt.Println("no snapshots recorded")
		return nil
	}
	for _, job := range jobs {
		entries, err := app.ListSnapshots(paths, job)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%-20s %-17s files=%d size=%d\n", job, e.Timestamp, e.FileCount, e.TotalSize)
		}
	}
	return nil
}
