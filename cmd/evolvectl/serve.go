package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/GestIAdev/selene-evolution/evolution"
	"github.com/GestIAdev/selene-evolution/metrics"
)

func newServeCmd() *cobra.Command {
	var (
		addr           string
		contextPath    string
		candidatesPath string
		interval       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run cycles on an interval and serve stats and Prometheus metrics",
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
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())

			pipe, err := evolution.NewPipeline(cfg, st,
				&fileContextSource{path: contextPath},
				&fileGenerator{path: candidatesPath},
				log,
				evolution.Options{Metrics: metrics.New(reg)},
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go runLoop(ctx, pipe, interval, log)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(pipe.Stats())
			})
			mux.HandleFunc("/history", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(pipe.History())
			})
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok\n"))
			})

			srv := &http.Server{
				Addr:         addr,
				Handler:      handlers.CompressHandler(mux),
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 30 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("http server listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			log.Info("http server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8477", "listen address")
	cmd.Flags().StringVar(&contextPath, "context", "", "YAML file with the system snapshot, re-read each cycle")
	cmd.Flags().StringVar(&candidatesPath, "candidates", "", "YAML file with the candidate batch, re-read each cycle")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "time between cycle starts")
	return cmd
}

// runLoop starts a cycle every interval until ctx is cancelled. Overlap is
// handled by the pipeline's single-flight guard, not here.
func runLoop(ctx context.Context, pipe *evolution.Pipeline, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := pipe.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("cycle failed", "error", err)
			}
		}
	}
}
