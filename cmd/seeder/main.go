package main

import (
	"context"
	"flag"
	"math/rand/v2"
	"time"

	"github.com/unclebandit/campaign-dispatcher/internal/config"
	"github.com/unclebandit/campaign-dispatcher/internal/db"
	"github.com/unclebandit/campaign-dispatcher/internal/logger"
	"github.com/unclebandit/campaign-dispatcher/internal/repository"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	users := flag.Int("users", 0, "number of demo users (default from config)")
	seed := flag.Uint64("seed", 0, "random seed for tag assignment (default: time based)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logger.New("info")
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.NewFromConfig(cfg.Logging)

	n := cfg.Seed.Users
	if *users > 0 {
		n = *users
	}
	s := *seed
	if s == 0 {
		s = uint64(time.Now().UnixNano())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	repo := &repository.UserRepository{DB: database}
	inserted, err := repo.SeedIfEmpty(ctx, n, rand.New(rand.NewPCG(s, 0)))
	if err != nil {
		log.Fatal().Err(err).Int("inserted", inserted).Msg("seeding failed")
	}
	if inserted == 0 {
		log.Info().Msg("users table already populated, nothing to do")
		return
	}
	log.Info().Int("users", inserted).Msg("database seeding completed")
}
