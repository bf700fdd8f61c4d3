package main

import (
	"context"
	"errors"
	"flag"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatcher/internal/config"
	"github.com/unclebandit/campaign-dispatcher/internal/controller"
	"github.com/unclebandit/campaign-dispatcher/internal/db"
	"github.com/unclebandit/campaign-dispatcher/internal/handler"
	"github.com/unclebandit/campaign-dispatcher/internal/logger"
	"github.com/unclebandit/campaign-dispatcher/internal/queue"
	"github.com/unclebandit/campaign-dispatcher/internal/repository"
	"github.com/unclebandit/campaign-dispatcher/internal/segment"
	"github.com/unclebandit/campaign-dispatcher/internal/service"
	"github.com/unclebandit/campaign-dispatcher/internal/stats"
	"github.com/unclebandit/campaign-dispatcher/internal/worker"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logger.New("info")
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.NewFromConfig(cfg.Logging)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		return err
	}

	userRepo := &repository.UserRepository{DB: database}
	campaignRepo := &repository.CampaignRepository{DB: database}
	messageRepo := &repository.MessageRepository{DB: database}

	if cfg.Seed.OnStart {
		n, err := userRepo.SeedIfEmpty(ctx, cfg.Seed.Users, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info().Int("users", n).Msg("seeded demo users")
		}
	}

	broker, err := queue.NewBroker(ctx, cfg.Queue, log)
	if err != nil {
		return err
	}
	defer broker.Close()

	// The in-memory queue lives in this process, so its workers must too.
	if cfg.Queue.Type == "memory" {
		pool := worker.NewPoolFromConfig(broker, messageRepo, cfg.Worker, log)
		if err := pool.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := pool.Stop(context.Background()); err != nil {
				log.Warn().Err(err).Msg("worker pool stop")
			}
		}()
	}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		MessageRepo:  messageRepo,
		Resolver:     segment.NewResolver(userRepo),
		Queue:        broker,
		Stats:        stats.NewAggregator(messageRepo),
		Log:          log,
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		Log:             log,
	}

	srv := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      handler.NewRouter(campaignController, cfg.API, log),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.API.Addr).Str("queue", cfg.Queue.Type).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
