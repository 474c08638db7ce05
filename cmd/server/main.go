package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/tglinker/internal/logging"
	"github.com/dmitrijs2005/tglinker/internal/server"
	"github.com/dmitrijs2005/tglinker/internal/server/config"
	"github.com/dmitrijs2005/tglinker/internal/server/telegram"
)

func main() {

	// Missing .env is fine, config falls back to real env and defaults.
	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	app, err := server.NewApp(cfg, telegram.NewDisabledDialer(), logger)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
