package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"perparb/internal/application/usecase/monitor"
	"perparb/internal/infrastructure/config"
	"perparb/internal/infrastructure/logger"
	"perparb/internal/infrastructure/svc"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger.Setup(*debug)

	// 私钥等敏感项从 .env 进环境变量，文件不存在不算错
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg(".env load failed")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service context initialization failed")
	}
	defer sc.Close()

	service := monitor.NewService(sc.BuildMonitorServiceDeps())

	log.Info().
		Str("config", *configPath).
		Int("symbols", len(cfg.Symbols.List)).
		Int("cycle_every_sec", cfg.App.CycleEverySec).
		Int("print_every_min", cfg.App.PrintEveryMin).
		Msg("perparb started")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("monitor service exited")
	}
}
