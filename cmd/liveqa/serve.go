package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/liveqa/internal/config"
	"github.com/alfredjeanlab/liveqa/internal/fanout"
	"github.com/alfredjeanlab/liveqa/internal/server"
	"github.com/alfredjeanlab/liveqa/internal/store"
	"github.com/alfredjeanlab/liveqa/internal/store/memory"
	"github.com/alfredjeanlab/liveqa/internal/store/postgres"
	"github.com/alfredjeanlab/liveqa/internal/store/s3store"
	"github.com/alfredjeanlab/liveqa/internal/sweep"
	"github.com/alfredjeanlab/liveqa/internal/viewers"
)

// backend is a store that can also evict expired records.
type backend interface {
	store.Store
	PurgeExpired(ctx context.Context) (int64, error)
	Close() error
}

// counterBackend bundles a viewer counter with its cleanup and, when it
// needs one, a sweep task.
type counterBackend struct {
	counter viewers.Counter
	sweep   sweep.Task
	close   func()
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the liveqa HTTP and gRPC servers",
	GroupID: "system",
	// No client connection for the server itself.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)
		ctx := context.Background()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		logger.Info("store ready", "backend", cfg.Store)

		cb, err := openCounter(ctx, cfg, logger)
		if err != nil {
			st.Close()
			return err
		}
		logger.Info("viewer counter ready", "backend", cfg.Viewers)

		// The NATS bus reports status from its own goroutine; hold reports
		// until the server exists.
		var qa *server.QAServer
		qaReady := make(chan struct{})
		var bus fanout.Bus
		if cfg.NATSURL != "" {
			bus = fanout.NewNATSBus(cfg.NATSURL, fanout.NATSOptions{
				Prefix:  cfg.BusPrefix,
				Backoff: cfg.BusBackoff,
				Logger:  logger,
				OnStatus: func(connected bool) {
					<-qaReady
					qa.SetFanoutStatus(connected)
				},
			})
			logger.Info("fanout via NATS", "nats_url", cfg.NATSURL, "prefix", cfg.BusPrefix)
		} else {
			bus = fanout.NewLocalBus()
			logger.Info("fanout in-process (LIVEQA_NATS_URL not set)")
		}

		qa = server.NewQAServer(server.Options{
			Store:   st,
			Bus:     bus,
			Counter: cb.counter,
			Logger:  logger,
		})
		if cfg.NATSURL != "" {
			qa.SetFanoutStatus(false)
		}
		close(qaReady)

		grpcServer := server.NewGRPCServer(qa)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			qa.Close()
			cb.close()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           qa.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		var scheduler *sweep.Scheduler
		if cfg.SweepInterval > 0 {
			tasks := []sweep.Task{sweep.Func("store", st.PurgeExpired)}
			if cb.sweep != nil {
				tasks = append(tasks, cb.sweep)
			}
			scheduler = sweep.NewScheduler(tasks, cfg.SweepInterval, logger)
			scheduler.Start()
			logger.Info("sweep scheduler started", "interval", cfg.SweepInterval)
		}

		logger.Info("liveqa server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sweep scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := qa.Close(); err != nil {
			logger.Error("error closing fanout bus", "err", err)
		}
		cb.close()
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func openStore(ctx context.Context, cfg *config.Config) (backend, error) {
	switch cfg.Store {
	case config.BackendPostgres:
		s, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendS3:
		s, err := s3store.New(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
}

func openCounter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*counterBackend, error) {
	switch cfg.Viewers {
	case config.BackendNATS:
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("liveqa-viewers"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.NATSURL, err)
		}
		kv, err := viewers.NewKV(ctx, nc, cfg.ViewersBucket, logger)
		if err != nil {
			nc.Close()
			return nil, err
		}
		// Bucket TTL expires idle counters, no sweep needed.
		return &counterBackend{counter: kv, close: nc.Close}, nil

	case config.BackendPostgres:
		p, err := viewers.NewPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := p.EnsureSchema(ctx); err != nil {
			p.Close()
			return nil, err
		}
		return &counterBackend{
			counter: p,
			sweep:   sweep.Func("viewers", p.PurgeExpired),
			close:   p.Close,
		}, nil

	case config.BackendMemory:
		m := viewers.NewMemory()
		if cfg.SweepInterval > 0 {
			m.StartSweeper(&viewers.SweeperConfig{SweepInterval: cfg.SweepInterval})
		}
		return &counterBackend{counter: m, close: m.Stop}, nil
	}
	return nil, fmt.Errorf("unknown viewers backend %q", cfg.Viewers)
}
