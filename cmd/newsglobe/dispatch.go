package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mihasm/news-globe/internal/api"
	"github.com/mihasm/news-globe/internal/archive"
	"github.com/mihasm/news-globe/internal/cluster"
	"github.com/mihasm/news-globe/internal/connector"
	"github.com/mihasm/news-globe/internal/connector/adsb"
	"github.com/mihasm/news-globe/internal/connector/ais"
	"github.com/mihasm/news-globe/internal/connector/gdacs"
	"github.com/mihasm/news-globe/internal/connector/gdelt"
	"github.com/mihasm/news-globe/internal/connector/jsonfeed"
	"github.com/mihasm/news-globe/internal/connector/kafka"
	"github.com/mihasm/news-globe/internal/connector/mastodon"
	"github.com/mihasm/news-globe/internal/connector/mqtt"
	"github.com/mihasm/news-globe/internal/connector/rss"
	"github.com/mihasm/news-globe/internal/connector/synthetic"
	"github.com/mihasm/news-globe/internal/connector/telegram"
	"github.com/mihasm/news-globe/internal/connector/usgs"
	"github.com/mihasm/news-globe/internal/gazetteer"
	"github.com/mihasm/news-globe/internal/intake"
	"github.com/mihasm/news-globe/internal/ner"
	"github.com/mihasm/news-globe/internal/pipeline"
	"github.com/mihasm/news-globe/internal/schedule"
	"github.com/mihasm/news-globe/internal/store"
	"github.com/mihasm/news-globe/internal/supervisor"
	"github.com/mihasm/news-globe/internal/web"
)

// connectorFactories maps every connector name the supervisor can schedule
// to its factory.
func connectorFactories() map[string]connector.Factory {
	return map[string]connector.Factory{
		"adsb":      adsb.NewFactory(),
		"ais":       ais.NewFactory(),
		"gdacs":     gdacs.NewFactory(),
		"gdelt":     gdelt.NewFactory(),
		"jsonfeed":  jsonfeed.NewFactory(),
		"kafka":     kafka.NewFactory(),
		"mastodon":  mastodon.NewFactory(),
		"mqtt":      mqtt.NewFactory(),
		"rss":       rss.NewFactory(),
		"synthetic": synthetic.NewFactory(),
		"telegram":  telegram.NewFactory(),
		"usgs":      usgs.NewFactory(),
	}
}

// ignoreCancel maps context cancellation to a clean exit.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newGeoIP loads the optional GeoIP database named by GEOIP_DB and keeps it
// hot-reloaded. Returns nil when unset.
func newGeoIP(logger *slog.Logger) *web.GeoIP {
	path := os.Getenv("GEOIP_DB")
	if path == "" {
		return nil
	}
	g := web.NewGeoIP()
	if err := g.WatchFile(path); err != nil {
		logger.Warn("geoip database unavailable", "path", path, "error", err)
		g.Close()
		return nil
	}
	return g
}

func runIntake(ctx context.Context, logger *slog.Logger, addr string) error {
	q := intake.NewQueue()
	s := intake.NewServer(q, intake.ServerConfig{
		Addr:   addr,
		GeoIP:  newGeoIP(logger),
		Logger: logger,
	})
	return s.Run(ctx)
}

func runSupervisor(ctx context.Context, logger *slog.Logger, intakeURL, configPath, statePath string) error {
	sup, err := supervisor.New(supervisor.Config{
		ConfigPath: configPath,
		StatePath:  statePath,
		Intake:     intake.NewClient(intakeURL),
		Factories:  connectorFactories(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	return ignoreCancel(sup.Start(ctx))
}

func runIngest(ctx context.Context, logger *slog.Logger, dbPath, intakeURL, gazetteerURL string) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	extractor, err := ner.New(ner.Config{Logger: logger})
	if err != nil {
		return err
	}

	var resolver gazetteer.Resolver
	if gazetteerURL != "" {
		resolver = gazetteer.NewClient(gazetteerURL, logger)
	}

	p, err := pipeline.New(pipeline.Config{
		Intake:    intake.NewClient(intakeURL),
		Store:     st,
		Extractor: extractor,
		Resolver:  resolver,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	return ignoreCancel(p.Run(ctx))
}

func runCluster(ctx context.Context, logger *slog.Logger, dbPath string, retention time.Duration, archiveURL string) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	extractor, err := ner.New(ner.Config{Logger: logger})
	if err != nil {
		return err
	}

	var sink cluster.ArchiveSink
	if archiveURL != "" {
		sink, err = archive.Open(ctx, archiveURL)
		if err != nil {
			return err
		}
	}

	engine, err := cluster.New(cluster.Config{
		Store:     st,
		Extractor: extractor,
		Archive:   sink,
		Retention: retention,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := engine.RefreshIndex(ctx); err != nil {
		return fmt.Errorf("prime cluster index: %w", err)
	}

	sched, err := schedule.New(logger, 0)
	if err != nil {
		return err
	}
	if err := engine.Register(sched); err != nil {
		return err
	}
	sched.Start()
	<-ctx.Done()
	return sched.Stop()
}

func runGazetteer(ctx context.Context, logger *slog.Logger, addr, dbPath string) error {
	db, err := gazetteer.OpenDB(gazetteer.DBConfig{Path: dbPath, Logger: logger})
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := gazetteer.NewServer(gazetteer.ServerConfig{
		Addr:   addr,
		DB:     db,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

func runAPI(ctx context.Context, logger *slog.Logger, addr, dbPath string) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	limiter := web.NewRateLimiter(1, 5)
	var wg sync.WaitGroup
	limiter.StartCleanup(ctx, &wg, 10*time.Minute, time.Hour)
	defer wg.Wait()

	s := api.NewServer(api.Config{
		Addr:    addr,
		Store:   st,
		Limiter: limiter,
		GeoIP:   newGeoIP(logger),
		Logger:  logger,
	})
	return s.Run(ctx)
}

// allConfig configures single-process mode.
type allConfig struct {
	DBPath      string
	IntakeAddr  string
	APIAddr     string
	GazetteerDB string
	ArchiveURL  string
}

// runAll runs the intake queue, supervisor, pipeline, clustering engine, and
// API in one process. Components still talk to the queue over its HTTP
// surface so the wiring matches the split deployment.
func runAll(ctx context.Context, logger *slog.Logger, cfg allConfig) error {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	extractor, err := ner.New(ner.Config{Logger: logger})
	if err != nil {
		return err
	}

	var resolver gazetteer.Resolver
	if cfg.GazetteerDB != "" {
		db, err := gazetteer.OpenDB(gazetteer.DBConfig{Path: cfg.GazetteerDB, Logger: logger})
		if err != nil {
			return err
		}
		defer db.Close()
		resolver = db
	}

	var sink cluster.ArchiveSink
	if cfg.ArchiveURL != "" {
		sink, err = archive.Open(ctx, cfg.ArchiveURL)
		if err != nil {
			return err
		}
	}

	queue := intake.NewQueue()
	intakeServer := intake.NewServer(queue, intake.ServerConfig{
		Addr:   cfg.IntakeAddr,
		Logger: logger,
	})

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCancel(intakeServer.Run(runCtx)) })

	// Wait for the queue to listen so the clients get a concrete address.
	deadline := time.Now().Add(5 * time.Second)
	for intakeServer.Addr() == nil {
		if time.Now().After(deadline) {
			return errors.New("intake server did not start")
		}
		select {
		case <-runCtx.Done():
			return g.Wait()
		case <-time.After(10 * time.Millisecond):
		}
	}
	client := intake.NewClient("http://" + intakeServer.Addr().String())

	sup, err := supervisor.New(supervisor.Config{
		Intake:    client,
		Factories: connectorFactories(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Config{
		Intake:    client,
		Store:     st,
		Extractor: extractor,
		Resolver:  resolver,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	engine, err := cluster.New(cluster.Config{
		Store:     st,
		Extractor: extractor,
		Archive:   sink,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := engine.RefreshIndex(runCtx); err != nil {
		return fmt.Errorf("prime cluster index: %w", err)
	}

	apiServer := api.NewServer(api.Config{
		Addr:   cfg.APIAddr,
		Store:  st,
		Logger: logger,
	})
	g.Go(func() error { return ignoreCancel(apiServer.Run(runCtx)) })

	sched, err := schedule.New(logger, 0)
	if err != nil {
		return err
	}
	if err := sup.Register(runCtx, sched); err != nil {
		return err
	}
	if err := p.Register(sched); err != nil {
		return err
	}
	if err := engine.Register(sched); err != nil {
		return err
	}
	sched.Start()

	<-runCtx.Done()
	sup.Stop()
	if err := sched.Stop(); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}
	return g.Wait()
}
