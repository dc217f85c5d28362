package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/soocke/pixel-watch-go/app"
	"github.com/soocke/pixel-watch-go/cmd"
	"github.com/soocke/pixel-watch-go/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.Execute(ctx, run)
}

func run(ctx context.Context, cfg *config.System, configDir string) error {
	logger, closer := NewLogger(cfg.Log)
	defer closer.Close()

	c, err := app.BuildContainer(cfg, configDir, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer c.Close()

	logger.Info("pixel-watch starting", "version", cmd.Version, "config_dir", configDir)
	return app.New(c).Run(ctx)
}
