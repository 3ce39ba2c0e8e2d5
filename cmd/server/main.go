package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/npezzotti/go-roomchat/internal/api"
	"github.com/npezzotti/go-roomchat/internal/config"
	"github.com/npezzotti/go-roomchat/internal/server"
	"github.com/npezzotti/go-roomchat/internal/stats"
)

const shutdownTimeout = 10 * time.Second

var (
	addr           string
	allowedOrigins string
	maxUploadBytes int64
	rateLimit      float64
	rateBurst      int
)

func main() {
	logger := log.New(os.Stderr, "[go-roomchat] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Fatal("load .env:", err)
	}

	flag.StringVar(&addr, "addr", config.AddrFromEnv(), "server address")
	flag.StringVar(&allowedOrigins, "allowed-origins", config.EnvString("ALLOWED_ORIGINS", "*"), "comma-separated list of allowed origins for CORS")
	flag.Int64Var(&maxUploadBytes, "max-upload-bytes", config.EnvInt64("MAX_UPLOAD_BYTES", config.DefaultMaxUploadBytes), "maximum size of a single websocket frame")
	flag.Float64Var(&rateLimit, "rate-limit", config.EnvFloat("RATE_LIMIT", config.DefaultRateLimit), "inbound events per second allowed per connection")
	flag.IntVar(&rateBurst, "rate-burst", config.EnvInt("RATE_LIMIT_BURST", config.DefaultRateBurst), "inbound event burst allowed per connection")
	flag.Parse()

	cfg, err := config.NewConfig(addr, config.ParseOrigins(allowedOrigins), maxUploadBytes, rateLimit, rateBurst)
	if err != nil {
		logger.Fatal("config:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux, logger)

	chatServer, err := server.NewChatServer(logger, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewGoChatApp(mux, logger, chatServer, cfg)

	statsUpdater.Run()
	go chatServer.Run()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalln("server:", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat": func(ctx context.Context) error {
				if err := srv.Shutdown(ctx); err != nil {
					return err
				}

				logger.Println("shutting down chat server...")
				if err := chatServer.Shutdown(ctx); err != nil {
					return err
				}

				statsUpdater.Stop()
				logger.Println("shutdown complete")
				return nil
			},
		},
	)

	os.Exit(<-wait)
}
