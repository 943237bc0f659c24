package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/relay/internal/logx"
	"github.com/Tyrowin/relay/internal/server"
)

func main() {
	boot := logx.NewConsole("info")

	if err := server.LoadDotEnv(); err != nil {
		boot.Warn("ignoring .env file", logx.Err(err))
	}

	cfg, err := server.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logx.New(logx.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info("starting relay server", logx.String("port", cfg.Port), logx.String("upload_dir", cfg.UploadDir))

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Error("create server", logx.Err(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Error("server stopped with error", logx.Err(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}
