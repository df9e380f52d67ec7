// README: serve command; loads config, wires modules, runs HTTP, scanner and queue consumer until signalled.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"shopd/internal/config"
	"shopd/internal/events"
	httptransport "shopd/internal/http"
	"shopd/internal/infra"
	"shopd/internal/maps"
	"shopd/internal/metrics"
	"shopd/internal/modules/cluster"
	"shopd/internal/modules/connection"
	"shopd/internal/modules/dispatch"
	"shopd/internal/modules/location"
	"shopd/internal/modules/matching"
	"shopd/internal/modules/notification"
	"shopd/internal/modules/order"
	"shopd/internal/modules/scanner"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := infra.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	var (
		verifier infra.TokenVerifier
		push     notification.PushSender
		mirror   location.Mirror
	)
	if cfg.PushEnabled() {
		fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
		if err != nil {
			return err
		}
		verifier = fb.Verifier
		push = notification.NewFCMSender(fb.Messaging)
		if fb.Database != nil {
			mirror = location.NewRTDBMirror(fb.Database)
		}
	} else {
		logger.Warn("firebase not configured; push delivery and auth disabled")
	}

	collector := metrics.NewCollector(prometheus.NewRegistry())
	registry := connection.NewRegistry(logger)
	clusters := cluster.NewIndex(cfg.Dispatch.WorkerClusterKm, nil)
	orders := order.NewStore(dbPool)

	selectorOpts := []matching.SelectorOption{matching.WithLogger(logger)}
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		selectorOpts = append(selectorOpts, matching.WithTravelEstimator(routes, cfg.Dispatch.RouteCandidates))
	}

	gateway := notification.NewGateway(notification.GatewayDeps{
		Connections:   registry,
		Clusters:      clusters,
		Tokens:        notification.NewStore(dbPool),
		Push:          push,
		PushPerSecond: cfg.Push.RatePerSec,
		Observer:      collector,
		Logger:        logger,
	})
	defer gateway.Wait()

	var sink dispatch.EventSink
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sink = publisher
	}

	coord := dispatch.NewCoordinator(dispatch.Deps{
		Store:       orders,
		Conns:       registry,
		Ranker:      matching.NewSelector(cfg.MatchingParams(), selectorOpts...),
		Notifier:    gateway,
		Journal:     matching.NewStore(redisClient),
		Events:      sink,
		Observer:    collector,
		Logger:      logger,
		OfferTTL:    cfg.Dispatch.OfferTTL,
		RetryAfter:  cfg.Dispatch.RetryAfter,
		BaseContext: ctx,
	})

	scan := scanner.New(scanner.Deps{
		Orders:      orders,
		Dispatcher:  coord,
		Registry:    registry,
		Clusters:    clusters,
		Broadcaster: gateway,
		Observer:    collector,
		Logger:      logger,
	}, cfg.ScannerParams())
	trigger := &dispatch.Trigger{Orders: orders, Coordinator: coord, Scanner: scan}

	locationStore := location.NewStore(dbPool, redisClient)
	locationSvc := location.NewService(registry, location.Options{
		Geo:       locationStore,
		Snapshots: locationStore,
		Mirror:    mirror,
		Logger:    logger,
	})

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Registry:      registry,
		Clusters:      clusters,
		Coordinator:   coord,
		Trigger:       trigger,
		Location:      locationSvc,
		Nearby:        locationStore,
		Notifications: gateway,
		Gauges:        collector,
		Metrics:       collector.Handler(),
		Verifier:      verifier,
		Logger:        logger,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes(), ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scan.Run(gctx)
		return nil
	})
	if cfg.AMQP.URL != "" {
		conn, err := infra.NewAMQP(cfg.AMQP.URL)
		if err != nil {
			return err
		}
		defer conn.Close()
		consumer := events.NewTriggerConsumer(conn, cfg.AMQP.Queue, trigger, logger)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		// hijacked websocket connections are not tracked by Shutdown
		for _, c := range registry.AllConnected() {
			_ = c.Transport.Close()
		}
		return err
	})

	err = g.Wait()
	logger.Info("shutdown complete", "err", err)
	return err
}
