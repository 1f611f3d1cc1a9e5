package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"netsync/internal/app"
	"netsync/internal/config"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}

	flag.StringVar(&settings.Bot.ServerURL, "server", settings.Bot.ServerURL, "base URL of the server to join")
	flag.DurationVar(&settings.Bot.Duration, "duration", settings.Bot.Duration, "leave after this long (0 runs until interrupted)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunBot(ctx, app.BotConfig{Settings: settings}); err != nil {
		log.Fatalf("%v", err)
	}
}
