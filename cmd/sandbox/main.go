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

	flag.IntVar(&settings.Network.SandboxClients, "clients", settings.Network.SandboxClients, "number of clients to join")
	flag.DurationVar(&settings.Network.SandboxRun, "duration", settings.Network.SandboxRun, "how long to run")
	flag.DurationVar(&settings.Network.PacketDelay, "delay", settings.Network.PacketDelay, "one-way packet delay")
	flag.Float64Var(&settings.Network.DropRate, "drop", settings.Network.DropRate, "fraction of packets dropped")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunSandbox(ctx, app.Config{Settings: settings}); err != nil {
		log.Fatalf("%v", err)
	}
}
