// Command queryfrontd runs the query front door service: it loads
// configuration, wires the cache/routing/dispatcher stack via internal/core,
// and serves the HTTP surface described in spec.md §6. Graceful shutdown
// follows the teacher's cmd/webui pattern: signal.Notify, then
// http.Server.Shutdown with a bounded grace period.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intelligencedev/queryfrontd/internal/config"
	"github.com/intelligencedev/queryfrontd/internal/core"
	"github.com/intelligencedev/queryfrontd/internal/httpapi"
	"github.com/intelligencedev/queryfrontd/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults baked in if omitted)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			// Logger isn't initialized yet; this is the one place the
			// process reports to stderr directly.
			println("failed to load config:", err.Error())
			os.Exit(1)
		}
		cfg = loaded
	}

	observability.InitLogger(cfg.Observability.LogPath, cfg.Observability.LogLevel)

	services, err := core.Init(context.Background(), cfg, devProvider{}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize core services")
	}

	server := httpapi.NewServer(services.Dispatcher, services.Aggregator, services.Store)
	srv := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: server}

	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("queryfrontd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown error")
	}
	if err := services.Close(); err != nil {
		log.Warn().Err(err).Msg("core services close error")
	}
	log.Info().Msg("queryfrontd stopped")
}
