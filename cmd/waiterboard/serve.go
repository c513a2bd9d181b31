package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"waiterboard/api/grpcserver"
	"waiterboard/api/httpserver"
	"waiterboard/infra/kafka"
	"waiterboard/infra/metrics"
	"waiterboard/infra/outbox"
	"waiterboard/jobs/broadcaster"
	"waiterboard/service"
	"waiterboard/snapshot"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs with the background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("http-addr", ":8080", "HTTP listen address")
	cmd.Flags().String("grpc-addr", ":9090", "gRPC listen address")
	_ = a.v.BindPFlag("http.addr", cmd.Flags().Lookup("http-addr"))
	_ = a.v.BindPFlag("grpc.addr", cmd.Flags().Lookup("grpc-addr"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	// ---------------- Store ----------------

	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	// ---------------- Outbox ----------------

	ob, err := outbox.Open(outbox.Config{Dir: cfg.Outbox.Dir})
	if err != nil {
		return err
	}
	defer ob.Close()

	// ---------------- Broker ----------------

	pub, err := kafka.New(cfg.Broker.Driver, cfg.Broker.Brokers, cfg.Broker.Topic, a.log)
	if err != nil {
		return err
	}

	// ---------------- Service ----------------

	m := metrics.PrometheusMetrics()
	hub := httpserver.NewHub(a.log)
	svc := service.NewWaiterService(st,
		service.WithLogger(a.log),
		service.WithMetrics(m),
		service.WithNotifier(ob, hub),
	)

	// ---------------- Background Jobs ----------------

	bc := broadcaster.New(ob, pub, a.log,
		broadcaster.WithInterval(cfg.Broadcast.Interval),
		broadcaster.WithMaxRetries(cfg.Broadcast.MaxRetries),
		broadcaster.WithMetrics(m),
	)
	defer bc.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bc.Run(ctx) })
	g.Go(func() error { return svc.RunCleanupJob(ctx, cfg.Jobs.CleanupInterval) })
	if cfg.Jobs.SnapshotInterval > 0 {
		g.Go(func() error {
			return svc.RunSnapshotJob(ctx, service.SnapshotJob{
				Writer:    &snapshot.Writer{Dir: cfg.Snapshot.Dir},
				Interval:  cfg.Jobs.SnapshotInterval,
				Purger:    ob,
				Retention: cfg.Jobs.OutboxRetention,
			})
		})
	}

	// ---------------- HTTP ----------------

	httpSrv := httpserver.New(svc, hub, a.log, httpserver.Config{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Metrics:        m,
	})
	g.Go(func() error { return httpSrv.Run(ctx, cfg.HTTP.Addr) })

	// ---------------- gRPC ----------------

	grpcSrv := grpcserver.NewServer(svc, a.log)
	g.Go(func() error { return grpcSrv.Run(ctx, cfg.GRPC.Addr) })

	a.log.Info("waiterboard running",
		zap.String("http", cfg.HTTP.Addr),
		zap.String("grpc", cfg.GRPC.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.String("broker", cfg.Broker.Driver),
	)
	return g.Wait()
}
