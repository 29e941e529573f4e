// Command server runs the carbon credit registry and marketplace API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"canopy/internal/certificate"
	certhandler "canopy/internal/certificate/handler"
	certmetrics "canopy/internal/certificate/metrics"
	"canopy/internal/credit"
	credithandler "canopy/internal/credit/handler"
	creditmetrics "canopy/internal/credit/metrics"
	"canopy/internal/events"
	"canopy/internal/funds"
	"canopy/internal/identity"
	identityhandler "canopy/internal/identity/handler"
	"canopy/internal/market"
	markethandler "canopy/internal/market/handler"
	marketmetrics "canopy/internal/market/metrics"
	"canopy/internal/platform/config"
	"canopy/internal/platform/httpserver"
	"canopy/internal/platform/logger"
	platformredis "canopy/internal/platform/redis"
	"canopy/internal/platform/token"
	"canopy/internal/reputation"
	rephandler "canopy/internal/reputation/handler"
	repmetrics "canopy/internal/reputation/metrics"
	httptransport "canopy/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event log: memory by default, Postgres when configured. The Postgres
	// store sits behind a breaker so a database outage degrades the event
	// trail instead of failing requests.
	var eventStore events.Store = events.NewInMemoryStore()
	if cfg.Postgres.URL != "" {
		pg, err := events.OpenPostgres(cfg.Postgres.URL)
		if err != nil {
			log.Error("postgres event store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		eventStore = events.NewFailoverStore(pg, events.NewInMemoryStore(), log)
		log.Info("domain events persisted to postgres")
	}

	var sinks []events.Sink
	kafkaSink, err := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	if err != nil {
		log.Error("kafka sink", "error", err)
		os.Exit(1)
	}
	if kafkaSink != nil {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := kafkaSink.Close(flushCtx); err != nil {
				log.Warn("kafka flush on shutdown", "error", err)
			}
		}()
		sinks = append(sinks, kafkaSink)
		log.Info("domain events fanned out to kafka", "topic", cfg.Kafka.Topic)
	}
	publisher := events.NewPublisher(eventStore, sinks...)

	// Market stats: memory by default, Redis when configured.
	var statsStore market.StatsStore = market.NewInMemoryStatsStore()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis client", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		statsStore = market.NewRedisStatsStore(redisClient)
		log.Info("market stats persisted to redis")
	}

	roles := identity.NewRegistry(cfg.AdminAccounts, cfg.IssuerAccounts)
	ledger := funds.NewLedger()

	certSvc := certificate.NewService(
		certificate.NewInMemoryStore(),
		certificate.NewSigner(cfg.CertSigningSecret),
		roles,
		certificate.WithLogger(log),
		certificate.WithEventPublisher(publisher),
		certificate.WithMetrics(certmetrics.New()),
	)

	creditSvc := credit.NewService(
		credit.NewInMemoryStore(),
		roles,
		credit.WithLogger(log),
		credit.WithEventPublisher(publisher),
		credit.WithMetrics(creditmetrics.New()),
		credit.WithCertificateIssuer(certSvc),
	)

	repSvc := reputation.NewService(
		reputation.NewInMemoryStore(),
		roles,
		reputation.WithLogger(log),
		reputation.WithEventPublisher(publisher),
		reputation.WithMetrics(repmetrics.New()),
	)

	marketSvc := market.NewService(
		market.NewInMemoryStore(),
		statsStore,
		creditSvc,
		ledger,
		cfg.FeeBps,
		market.WithLogger(log),
		market.WithEventPublisher(publisher),
		market.WithMetrics(marketmetrics.New()),
		market.WithCertificateIssuer(certSvc),
		market.WithReputation(repSvc),
	)

	tokens := token.NewService(cfg.JWTSigningKey, "canopy")

	router := httptransport.NewRouter(log,
		credithandler.New(creditSvc, log, tokens),
		markethandler.New(marketSvc, log, tokens),
		certhandler.New(certSvc, log, tokens),
		rephandler.New(repSvc, log, tokens),
		identityhandler.New(roles, ledger, eventStore, log, tokens),
	)
	server := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
