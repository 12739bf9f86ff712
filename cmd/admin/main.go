package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"foodadmin/internal/api"
	"foodadmin/internal/audit"
	"foodadmin/internal/cli"
	"foodadmin/internal/config"
	"foodadmin/internal/counts"
	"foodadmin/internal/feed"
	"foodadmin/internal/logger"
	"foodadmin/internal/notify"
	"foodadmin/internal/session"
	"foodadmin/internal/stream"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	log := logger.New(os.Getenv("DEBUG") != "")
	defer log.Sync()

	client, err := api.New(cfg.APIBaseURL, cfg.RequestTimeout, log)
	if err != nil {
		log.Fatal("failed to build API client", zap.Error(err))
	}

	conn := stream.New(cfg.StreamURL, log)
	conn.Connect(ctx)
	defer conn.Close()

	var producer audit.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = audit.NewKafkaProducer(cfg.KafkaBrokers, cfg.AuditTopic)
	} else {
		producer = audit.NewConsoleProducer()
	}
	auditor := audit.NewManager(producer, cfg.AuditWorkers, cfg.AuditBatchSize, cfg.AuditFlushInterval)
	auditor.Start(ctx)

	sess := session.New(client, log, func(route session.Route) {
		log.Debug("navigate", zap.String("route", string(route)))
	})
	sess.Resolve(ctx)

	dashboard := feed.New(ctx, client, conn, log)
	tracker := counts.New(ctx, client, conn, log)
	unread := notify.New(conn, log)
	defer dashboard.Close()
	defer tracker.Close()
	defer unread.Close()

	if sess.State() == session.StateAuthenticated {
		if err := dashboard.Start(); err != nil {
			log.Warn("initial order snapshot failed", zap.Error(err))
		}
		if err := tracker.Start(); err != nil {
			log.Warn("initial count snapshot failed", zap.Error(err))
		}
		unread.Start()
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		console := cli.New(sess, client, dashboard, tracker, unread, auditor, log, os.Stdout)
		console.Run(gctx, os.Stdin)
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auditor.Shutdown(shutdownCtx)

	log.Info("admin console stopped")
}
