package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"oncorisk/internal/dataset"
	"oncorisk/internal/ml"
	"oncorisk/internal/storage"
)

func main() {
	var (
		dataPath = flag.String("data", "", "Path to labeled dataset (.csv or .json)")
		dbPath   = flag.String("db", "", "BoltDB directory for persisting the trained model (optional)")
		roster   = flag.String("candidates", "", "Comma-separated candidate IDs (default: full roster)")
		seed     = flag.Int64("seed", ml.DefaultSeed, "Random seed for splits and candidates")
		folds    = flag.Int("folds", ml.DefaultCVFolds, "Cross-validation fold count")
		timeout  = flag.Duration("candidate-timeout", 2*time.Minute, "Per-candidate training timeout")
		workers  = flag.Int("workers", 0, "Training worker count (0 = number of CPUs)")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *dataPath == "" {
		flag.Usage()
		log.Fatal().Msg("-data is required")
	}

	records, labels, err := dataset.Load(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load dataset")
	}
	log.Info().Int("records", len(records)).Msg("dataset loaded")

	var store *storage.Store
	if *dbPath != "" {
		store, err = storage.New(*dbPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open store")
		}
		defer store.Close()
	}

	ec := ml.EngineConfig{
		Roster: parseRoster(*roster),
		Train: ml.TrainOptions{
			Seed:             *seed,
			CVFolds:          *folds,
			CandidateTimeout: *timeout,
			Workers:          *workers,
		},
	}
	var as ml.ArtifactStore
	if store != nil {
		as = store
	}
	engine := ml.NewEngine(ec, as, nil)

	// Ctrl-C stops the run between candidates; completed reports still print.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := engine.Retrain(ctx, records, labels)
	if err != nil {
		log.Error().Err(err).Msg("training run did not select a model")
	}
	printSummary(summary)
	if err != nil {
		os.Exit(1)
	}

	if store != nil {
		log.Info().Str("db", *dbPath).Msg("model and reports persisted")
	}
}

func parseRoster(s string) []string {
	if s == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(s, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func printSummary(summary ml.TrainingSummary) {
	fmt.Printf("\nRun %s (%.2fs)\n\n", summary.RunID, summary.Duration.Seconds())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CANDIDATE\tACC\tPREC\tREC\tF1\tAUC\tCV F1\tTIME\tSTATUS")
	for _, r := range summary.Reports {
		if r.Failed {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t-\t%s\tfailed: %s\n",
				r.CandidateID, r.TrainTime.Round(time.Millisecond), r.Error)
			continue
		}
		status := ""
		if r.CandidateID == summary.SelectedCandidate {
			status = "selected"
		}
		fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f±%.3f\t%s\t%s\n",
			r.CandidateID, r.Accuracy, r.Precision, r.Recall, r.F1, r.ROCAUC,
			r.CVMean, r.CVStd, r.TrainTime.Round(time.Millisecond), status)
	}
	w.Flush()
	fmt.Println()
}
