package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/GestIAdev/selene-evolution/evolution"
	"github.com/GestIAdev/selene-evolution/metrics"
	"github.com/GestIAdev/selene-evolution/store"
)

func newRunCmd() *cobra.Command {
	var contextPath, candidatesPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one evolution cycle from file inputs and print the suggestions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			pipe, err := evolution.NewPipeline(cfg, st,
				&fileContextSource{path: contextPath},
				&fileGenerator{path: candidatesPath},
				newLogger(),
				evolution.Options{Metrics: metrics.Nop()},
			)
			if err != nil {
				return err
			}

			suggestions, err := pipe.RunCycle(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(suggestions)
		},
	}
	cmd.Flags().StringVar(&contextPath, "context", "", "YAML file with the system snapshot")
	cmd.Flags().StringVar(&candidatesPath, "candidates", "", "YAML file with the candidate batch")
	return cmd
}

func newFeedbackCmd() *cobra.Command {
	var (
		typeID  string
		rating  float64
		comment string
		applied bool
		impact  float64
	)

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record a human rating for a decision type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if typeID == "" {
				return fmt.Errorf("--type is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			fs := evolution.NewFeedbackStore(st, cfg, newLogger())
			err = fs.RecordFeedback(cmd.Context(), evolution.FeedbackEntry{
				DecisionTypeID:      typeID,
				HumanRating:         rating,
				HumanFeedback:       comment,
				AppliedSuccessfully: applied,
				PerformanceImpact:   impact,
				Timestamp:           time.Now(),
			})
			if err != nil {
				return err
			}
			return printJSON(fs.Weights(cmd.Context()))
		},
	}
	cmd.Flags().StringVar(&typeID, "type", "", "decision type id")
	cmd.Flags().Float64Var(&rating, "rating", 5, "human rating, 0-10 (5 is neutral)")
	cmd.Flags().StringVar(&comment, "comment", "", "free-form feedback")
	cmd.Flags().BoolVar(&applied, "applied", false, "whether the suggestion was applied successfully")
	cmd.Flags().Float64Var(&impact, "impact", 0, "observed performance impact")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var anomalyCount int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print persisted pipeline state: weights, baseline, recent anomalies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			log := newLogger()
			baseline := evolution.NewBaselineStore(st, cfg, log)
			detector := evolution.NewAnomalyDetector(baseline, st, cfg, log)
			fs := evolution.NewFeedbackStore(st, cfg, log)

			anomalies, err := detector.RecentAnomalies(cmd.Context(), anomalyCount)
			if err != nil {
				return err
			}
			historyLen, err := st.ListLen(cmd.Context(), store.KeyHistory)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"weights":          fs.Weights(cmd.Context()),
				"baseline":         baseline.Load(cmd.Context()),
				"recent_anomalies": anomalies,
				"archived_history": historyLen,
			})
		},
	}
	cmd.Flags().IntVar(&anomalyCount, "anomalies", 20, "number of recent anomalies to show")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
