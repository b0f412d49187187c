// Command newsglobe runs the event aggregation service. Each subcommand runs
// one component (intake queue, supervisor, pipeline, engine, gazetteer, API);
// "all" runs the whole thing in one process.
//
// The base logger is built here and handed down through component Configs;
// nothing sets a global logger.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mihasm/news-globe/internal/logging"
)

var version = "dev"

func main() {
	// The text handler passes everything; per-component level decisions live
	// in the filter wrapping it.
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := &cobra.Command{
		Use:   "newsglobe",
		Short: "Multi-source event aggregation service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			pprofAddr, _ := cmd.Flags().GetString("pprof")
			if pprofAddr != "" {
				go func() {
					logger.Info("pprof server listening", "addr", pprofAddr)
					if err := http.ListenAndServe(pprofAddr, nil); err != nil {
						logger.Error("pprof server error", "error", err)
					}
				}()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("pprof", "", "pprof HTTP server address (e.g. localhost:6060). WARNING: exposes CPU/memory profiles and goroutine dumps, bind to loopback only")
	rootCmd.PersistentFlags().String("db", envOr("DATABASE_URL", "data/newsglobe.db"), "SQLite database path")
	rootCmd.PersistentFlags().String("intake-url", envOr("MEMORY_STORE_URL", "http://localhost:6379"), "intake queue base URL")

	intakeCmd := &cobra.Command{
		Use:   "intake",
		Short: "Run the intake queue server",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			return runIntake(signalContext(), logger, addr)
		},
	}
	intakeCmd.Flags().String("addr", envOr("MEMORY_STORE_ADDRESS", ":6379"), "listen address (host:port)")

	supervisorCmd := &cobra.Command{
		Use:   "supervisor",
		Short: "Run the connector supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			intakeURL, _ := cmd.Flags().GetString("intake-url")
			configPath, _ := cmd.Flags().GetString("config")
			statePath, _ := cmd.Flags().GetString("state")
			return runSupervisor(signalContext(), logger, intakeURL, configPath, statePath)
		},
	}
	supervisorCmd.Flags().String("config", "supervisor_config.json", "schedule override file")
	supervisorCmd.Flags().String("state", "supervisor_state.json", "state snapshot file")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the ingestion pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			intakeURL, _ := cmd.Flags().GetString("intake-url")
			gazetteerURL, _ := cmd.Flags().GetString("gazetteer-url")
			return runIngest(signalContext(), logger, dbPath, intakeURL, gazetteerURL)
		},
	}
	ingestCmd.Flags().String("gazetteer-url", envOr("LOCATION_SERVICE_URL", "http://localhost:8787"), "gazetteer service base URL")

	clusterCmd := &cobra.Command{
		Use:   "cluster",
		Short: "Run the clustering engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			retention, _ := cmd.Flags().GetDuration("retention")
			archiveURL, _ := cmd.Flags().GetString("archive")
			return runCluster(signalContext(), logger, dbPath, retention, archiveURL)
		},
	}
	clusterCmd.Flags().Duration("retention", 0, "idle cluster retention before cleanup (default 30 days)")
	clusterCmd.Flags().String("archive", "", "archive sink URL for retired clusters (dir, file://, s3://, gs://, azblob://)")

	gazetteerCmd := &cobra.Command{
		Use:   "gazetteer",
		Short: "Run the gazetteer resolver service",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			dbPath, _ := cmd.Flags().GetString("gazetteer-db")
			return runGazetteer(signalContext(), logger, addr, dbPath)
		},
	}
	gazetteerCmd.Flags().String("addr", ":8787", "listen address (host:port)")
	gazetteerCmd.Flags().String("gazetteer-db", "data/gazetteer.db", "gazetteer SQLite database path")

	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Run the public read API",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			dbPath, _ := cmd.Flags().GetString("db")
			return runAPI(signalContext(), logger, addr, dbPath)
		},
	}
	apiCmd.Flags().String("addr", envOr("API_ADDRESS", ":8080"), "listen address (host:port)")

	allCmd := &cobra.Command{
		Use:   "all",
		Short: "Run every component in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			intakeAddr, _ := cmd.Flags().GetString("intake-addr")
			apiAddr, _ := cmd.Flags().GetString("api-addr")
			gazetteerDB, _ := cmd.Flags().GetString("gazetteer-db")
			archiveURL, _ := cmd.Flags().GetString("archive")
			return runAll(signalContext(), logger, allConfig{
				DBPath:      dbPath,
				IntakeAddr:  intakeAddr,
				APIAddr:     apiAddr,
				GazetteerDB: gazetteerDB,
				ArchiveURL:  archiveURL,
			})
		},
	}
	allCmd.Flags().String("intake-addr", "127.0.0.1:6379", "intake queue listen address")
	allCmd.Flags().String("api-addr", envOr("API_ADDRESS", ":8080"), "API listen address")
	allCmd.Flags().String("gazetteer-db", "", "gazetteer SQLite database path (empty: no location enrichment)")
	allCmd.Flags().String("archive", "", "archive sink URL for retired clusters")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(intakeCmd, supervisorCmd, ingestCmd, clusterCmd, gazetteerCmd, apiCmd, allCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt)
	return ctx
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
