package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/VideoRoom/internal/adapters/http"
	"github.com/dkeye/VideoRoom/internal/adapters/janus"
	"github.com/dkeye/VideoRoom/internal/adapters/rtc"
	"github.com/dkeye/VideoRoom/internal/app/orch"
	"github.com/dkeye/VideoRoom/internal/config"
	"github.com/dkeye/VideoRoom/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("bad flags")
	}
	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	gw := janus.NewGateway(janus.Options{Keepalive: cfg.Keepalive, ICEServers: cfg.ICEServers})
	room := orch.NewRoom(gw, rtc.Init, orch.Options{
		Servers:         cfg.Servers,
		Room:            domain.RoomID(cfg.Room),
		Display:         cfg.Display,
		Pin:             cfg.Pin,
		RemovalDebounce: cfg.RemovalDebounce,
		RequestTimeout:  cfg.RequestTimeout,
	})

	if err := join(ctx, room, cfg); err != nil {
		log.Error().Err(err).Msg("join failed")
		destroy(room, nil)
		os.Exit(1)
	}

	var viewer *orch.Streaming
	if cfg.Streaming.Enabled() {
		viewer = orch.NewStreaming(gw, rtc.Init, cfg.Servers, cfg.RequestTimeout)
		if err := viewer.Watch(ctx, domain.MountpointID(cfg.Streaming.Mountpoint), cfg.Streaming.Pin); err != nil {
			log.Error().Err(err).Str("mountpoint", cfg.Streaming.Mountpoint).Msg("watch failed")
		}
	}

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router.SetupRouter(cfg, room),
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("room", cfg.Room).Msg("videoroom client started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	destroy(room, viewer)
	log.Info().Msg("Client exited gracefully")
}

func join(ctx context.Context, room *orch.Room, cfg *config.Config) error {
	if err := room.Init(ctx); err != nil {
		return err
	}
	me, err := room.JoinAsPublisher(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("id", string(me.ID)).Str("display", me.Display).Msg("joined")

	if cfg.Publish.Camera || cfg.Publish.Microphone {
		if err := room.PublishMe(ctx, cfg.Publish.Camera, cfg.Publish.Microphone); err != nil {
			return err
		}
	}
	return nil
}

func destroy(room *orch.Room, viewer *orch.Streaming) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := room.Leave(ctx); err != nil {
		log.Warn().Err(err).Msg("leave")
	}
	if err := room.Destroy(ctx); err != nil {
		log.Warn().Err(err).Msg("destroy room")
	}
	if viewer != nil {
		if err := viewer.Destroy(ctx); err != nil {
			log.Warn().Err(err).Msg("destroy streaming")
		}
	}
}
