package main

import (
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chat-relay/internal/chat"
	"chat-relay/internal/server"
	"chat-relay/internal/upload"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("loading .env file")
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	server.SetConfig(cfg)

	uploads, err := upload.NewStore(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Msg("preparing upload directory")
	}

	engine := chat.NewEngine(uploads)
	hub := server.NewHub(engine)
	go hub.Run()

	srv := server.CreateServer(cfg.Port, server.NewRouter(hub, cfg.UploadDir))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(srv)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	if err := server.ShutdownServer(srv, 10*time.Second); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := hub.Shutdown(10 * time.Second); err != nil {
		log.Warn().Err(err).Msg("hub shutdown incomplete")
	}
}
