// Package main provides the CLI entrypoint for hitstat.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"hitstat/internal/analyzer"
	"hitstat/internal/config"
	"hitstat/internal/history"
	"hitstat/internal/index"
	"hitstat/internal/timeline"
)

var (
	flagDB          string
	flagSongs       string
	flagReplays     string
	flagCalibration float64
	flagEpsilon     float64
	flagRate        float64
	flagCacheSize   int
	flagNoHistory   bool

	historyLast  int
	historyChart string
)

var logger = log.New(os.Stderr, "", log.LstdFlags)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "hitstat",
		Short:         "Replay timing analyzer",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDB, "db", "", "path to the osu!.db chart index")
	pf.StringVar(&flagSongs, "songs", "", "path to the Songs directory")
	pf.Float64Var(&flagCalibration, "calibration", config.DefaultCalibrationMs, "calibration offset in milliseconds")
	pf.Float64Var(&flagEpsilon, "epsilon", 0, "mean-offset band still reported as on time, in milliseconds")
	pf.Float64Var(&flagRate, "rate", 0, "force a playback rate instead of deriving it from mods")
	pf.IntVar(&flagCacheSize, "cache-size", 0, "timeline cache capacity (0 for default)")
	pf.BoolVar(&flagNoHistory, "no-history", false, "do not record results in the history database")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newHistoryCmd())

	return rootCmd
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <replay.osr> [more.osr...]",
		Short: "Analyze replay files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyzeCmd,
	}
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	for _, path := range args {
		res, err := env.analyzer.AnalyzeFile(path)
		if err != nil {
			return fmt.Errorf("analyze %s: %w", path, err)
		}
		printResult(path, res)
		env.record(cmd.Context(), path, res)
	}
	return nil
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the replays directory and analyze new replays",
		Args:  cobra.NoArgs,
		RunE:  runWatchCmd,
	}
	cmd.Flags().StringVar(&flagReplays, "replays", "", "path to the Replays directory")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded analyses",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLast, "last", 10, "number of recent analyses to show")
	cmd.Flags().StringVar(&historyChart, "chart", "", "show all analyses for one beatmap hash instead")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	st, err := history.Open(settings.HistoryDB)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer st.Close()

	var recs []history.Record
	if historyChart != "" {
		recs, err = st.ForChart(cmd.Context(), historyChart)
	} else {
		recs, err = st.Recent(cmd.Context(), historyLast)
	}
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no recorded analyses")
		return nil
	}
	for _, r := range recs {
		fmt.Printf("%s  %-28s  %6.2fms mean  %7.2f UR  %s\n",
			r.AnalyzedAt.Format("2006-01-02 15:04"), r.ChartTitle, r.MeanOffset, r.UnstableRate, r.Tendency)
	}
	return nil
}

// env bundles the long-lived pieces a command needs.
type env struct {
	settings config.Settings
	analyzer *analyzer.Analyzer
	history  *history.Store
}

func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.Settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	settings := config.Resolve(fileCfg)
	if cmd.Flags().Changed("db") || settings.DBPath == "" {
		settings.DBPath = flagDB
	}
	if cmd.Flags().Changed("songs") || settings.SongsDir == "" {
		settings.SongsDir = flagSongs
	}
	if cmd.Flags().Changed("replays") || settings.ReplaysDir == "" {
		settings.ReplaysDir = flagReplays
	}
	if cmd.Flags().Changed("calibration") {
		settings.CalibrationMs = flagCalibration
	}
	if cmd.Flags().Changed("epsilon") {
		settings.EpsilonMs = flagEpsilon
	}
	if cmd.Flags().Changed("cache-size") {
		settings.CacheSize = flagCacheSize
	}
	return settings, nil
}

func setup(cmd *cobra.Command) (*env, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	if settings.DBPath == "" {
		return nil, fmt.Errorf("no chart index: set --db or the config file's game.db")
	}
	if settings.SongsDir == "" {
		settings.SongsDir = filepath.Join(filepath.Dir(settings.DBPath), "Songs")
	}

	tbl, err := index.New(settings.DBPath, settings.SongsDir, logger)
	if err != nil {
		return nil, fmt.Errorf("load chart index: %w", err)
	}
	logger.Printf("indexed %d charts from %s", tbl.Len(), settings.DBPath)

	cache, err := timeline.NewCache(settings.CacheSize)
	if err != nil {
		return nil, err
	}

	e := &env{settings: settings}
	e.analyzer = analyzer.New(analyzer.Config{
		Source:       tbl,
		Cache:        cache,
		Calibration:  settings.CalibrationMs,
		Epsilon:      settings.EpsilonMs,
		RateOverride: flagRate,
		Log:          logger,
	})
	if !flagNoHistory {
		st, err := history.Open(settings.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		e.history = st
	}
	return e, nil
}

func (e *env) close() {
	if e.history != nil {
		if cerr := e.history.Close(); cerr != nil {
			logger.Printf("failed to close history: %v", cerr)
		}
	}
}

func (e *env) record(ctx context.Context, path string, res *analyzer.Result) {
	if e.history == nil {
		return
	}
	title := ""
	if res.Entry != nil {
		title = fmt.Sprintf("%s - %s [%s]", res.Entry.Artist, res.Entry.Title, res.Entry.Difficulty)
	}
	rec := history.Record{
		AnalyzedAt:   time.Now(),
		ReplayPath:   path,
		Player:       res.Replay.Player,
		BeatmapHash:  res.Replay.BeatmapHash,
		ChartTitle:   title,
		Mods:         int64(res.Replay.Mods),
		Rate:         res.Rate,
		HitCount:     int64(res.Summary.Count),
		MissedInputs: int64(res.UnmatchedTransitions),
		MissedEvents: int64(res.UnmatchedEvents),
		MeanOffset:   res.Summary.MeanOffset,
		UnstableRate: res.Summary.UnstableRate,
		Tendency:     res.Summary.Tendency.String(),
	}
	if _, err := e.history.Insert(ctx, rec); err != nil {
		logger.Printf("failed to record analysis: %v", err)
	}
}

func printResult(path string, res *analyzer.Result) {
	fmt.Printf("%s\n", filepath.Base(path))
	if res.Entry != nil {
		fmt.Printf("  chart:    %s - %s [%s]\n", res.Entry.Artist, res.Entry.Title, res.Entry.Difficulty)
	}
	fmt.Printf("  player:   %s\n", res.Replay.Player)
	if res.Rate != 1.0 {
		fmt.Printf("  rate:     %.2fx\n", res.Rate)
	}
	if res.Summary.Count == 0 {
		fmt.Printf("  no matched hits (%d inputs, %d objects unmatched)\n",
			res.UnmatchedTransitions, res.UnmatchedEvents)
		return
	}
	fmt.Printf("  hits:     %d matched, %d inputs unmatched, %d objects unmatched\n",
		res.Summary.Count, res.UnmatchedTransitions, res.UnmatchedEvents)
	fmt.Printf("  mean:     %+.2fms (%s)\n", res.Summary.MeanOffset, res.Summary.Tendency)
	fmt.Printf("  unstable: %.2f\n", res.Summary.UnstableRate)
}
