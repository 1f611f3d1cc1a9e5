package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"netsync/internal/config"
	"netsync/internal/telemetry"
	"netsync/logging"
	loggingSinks "netsync/logging/sinks"
)

// routerBundle owns the structured logging router and any files its sinks
// opened.
type routerBundle struct {
	router *logging.Router
	memory *loggingSinks.MemorySink
	files  []io.Closer
}

func standardLogger(logger telemetry.Logger) *log.Logger {
	fallback := log.Default()
	if provider, ok := logger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallback = candidate
		}
	}
	return fallback
}

func newRouter(settings config.Config, logger telemetry.Logger, clock logging.Clock) (*routerBundle, error) {
	logConfig := settings.LoggingRouterConfig()
	bundle := &routerBundle{}
	sinks := make(map[string]logging.Sink)
	for _, name := range logConfig.EnabledSinks {
		switch name {
		case "console":
			sinks[name] = loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console)
		case "json":
			file, err := os.OpenFile(logConfig.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				bundle.closeFiles()
				return nil, fmt.Errorf("open json log %s: %w", logConfig.JSON.FilePath, err)
			}
			bundle.files = append(bundle.files, file)
			sinks[name] = loggingSinks.NewJSON(file, logConfig.JSON)
		case "memory":
			bundle.memory = loggingSinks.NewBoundedMemorySink(logConfig.Memory.Capacity)
			sinks[name] = bundle.memory
		}
	}

	router, err := logging.NewRouter(logConfig, clock, standardLogger(logger), sinks)
	if err != nil {
		bundle.closeFiles()
		return nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	bundle.router = router
	return bundle, nil
}

// recent returns the warnings retained for /diagnostics, if the memory sink
// is enabled.
func (b *routerBundle) recent(limit int) []logging.Event {
	if b == nil || b.memory == nil {
		return nil
	}
	return b.memory.Recent(limit)
}

func (b *routerBundle) close(ctx context.Context, logger telemetry.Logger) {
	if b == nil {
		return
	}
	if b.router != nil {
		if err := b.router.Close(ctx); err != nil {
			logger.Printf("failed to close logging router: %v", err)
		}
	}
	b.closeFiles()
}

func (b *routerBundle) closeFiles() {
	for _, file := range b.files {
		file.Close()
	}
	b.files = nil
}
