package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"marketplace/internal/bootstrap"
	"marketplace/internal/config"
	"marketplace/internal/pkg/logging"
	"marketplace/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	//.envは無くてもよい（本番は環境変数）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := logging.InitLogger(!cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続・マイグレーション・usecase生成
	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Error("bootstrap", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	e := server.New(cfg, app, log)

	addr := cfg.Port
	if addr != "" && addr[0] != ':' {
		addr = ":" + addr
	}

	if err := server.Start(ctx, e, addr, log); err != nil {
		log.Error("server", "error", err)
		os.Exit(1)
	}
}
