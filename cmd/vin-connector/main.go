// Command vin-connector decodes a configured list of BMW VINs through the
// NHTSA vPIC API and syncs vehicle and recall rows to a destination: a JSON
// stream on stdout, NATS, Neo4j or Postgres. With -serve it also exposes the
// connector's orchestrator surface over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/vinsync/engine/connector"
	"github.com/WessleyAI/vinsync/engine/sink"
	"github.com/WessleyAI/vinsync/engine/vpic"
	"github.com/WessleyAI/vinsync/pkg/metrics"
	"github.com/WessleyAI/vinsync/pkg/repo"
)

const connectorName = "vinsync"

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "vin-connector:", err)
		os.Exit(2)
	}
	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error("connector exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger, stdout io.Writer) error {
	met := metrics.New()
	if cfg.MetricsPort > 0 {
		met.ServeAsync(cfg.MetricsPort, logger)
	}

	client := vpic.New(cfg.vpicConfig(), logger)
	conn := connector.New(client, client, connector.Options{
		VINs:    cfg.VINs,
		Tables:  cfg.Tables,
		Metrics: met,
		Logger:  logger,
	})

	// The orchestrator owns delivery in serve mode, so no sink is opened.
	if cfg.Serve != "" {
		if cfg.Sink != sinkStdout {
			logger.Warn("sink is ignored in serve mode", "sink", cfg.Sink)
		}
		return serve(ctx, cfg.Serve, newServer(conn, met, logger), logger)
	}

	out, closeSink, err := openSink(ctx, cfg, conn, stdout, logger)
	if err != nil {
		return err
	}
	defer closeSink()
	return poll(ctx, cfg.Interval, conn, out, logger)
}

// poll runs one sync, then one per interval until ctx ends. A failed run
// is logged and the loop keeps going; in one-shot mode it is returned.
func poll(ctx context.Context, interval time.Duration, conn *connector.Connector, out sink.Sink, logger *slog.Logger) error {
	runOnce := func() error {
		start := time.Now()
		err := conn.Update(ctx, connector.State{}, sink.Emitter(out))
		if err != nil {
			logger.Error("sync failed", "err", err, "duration", time.Since(start))
			return err
		}
		logger.Info("sync finished", "duration", time.Since(start))
		return nil
	}

	if interval == 0 {
		return runOnce()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_ = runOnce()
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

func openSink(ctx context.Context, cfg Config, conn *connector.Connector, stdout io.Writer, logger *slog.Logger) (sink.Sink, func(), error) {
	switch cfg.Sink {
	case sinkNATS:
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(connectorName))
		if err != nil {
			return nil, nil, fmt.Errorf("nats connect: %w", err)
		}
		logger.Info("publishing to nats", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
		return sink.NewNATSSink(nc, cfg.NATS.Subject), func() { nc.Drain() }, nil

	case sinkNeo4j:
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
		if err != nil {
			return nil, nil, fmt.Errorf("neo4j driver: %w", err)
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			driver.Close(ctx)
			return nil, nil, fmt.Errorf("neo4j connect: %w", err)
		}
		store := repo.NewNeo4jRepo(driver, repo.WithDatabase(cfg.Neo4j.Database))
		logger.Info("writing to neo4j", "url", cfg.Neo4j.URL)
		return sink.NewGraphSink(store, connectorName), func() { driver.Close(context.Background()) }, nil

	case sinkPostgres:
		db, err := sink.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		pg := sink.NewPostgresSink(db, connectorName)
		if err := pg.EnsureTables(ctx, conn.Tables()); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("writing to postgres")
		return pg, func() { db.Close() }, nil

	default:
		return sink.NewJSONSink(stdout), func() {}, nil
	}
}

func serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http surface starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
