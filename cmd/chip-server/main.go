package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apprecords "chip-ledger/internal/app/records"
	approoms "chip-ledger/internal/app/rooms"
	"chip-ledger/internal/config"
	"chip-ledger/internal/live"
	"chip-ledger/internal/logging"
	"chip-ledger/internal/realtime"
	"chip-ledger/internal/registry"
	"chip-ledger/internal/settlement"
	"chip-ledger/internal/store"
	httptransport "chip-ledger/internal/transport/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := logging.Init(cfg.Log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logging.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.Server); err != nil {
		log.Error().Err(err).Msg("server stopped")
		stop()
		_ = logging.Close()
		os.Exit(1)
	}
}

// buildHandler wires the core: arena and registry first, then the hub that
// reads both, then the engine that writes through all three.
func buildHandler(cfg config.ServerConfig, st store.Store) (http.Handler, *realtime.Hub) {
	arena := live.NewArena(cfg.DefaultChipsPerHand, nil)
	reg := registry.New(st, cfg.RoomIDAttempts)
	hub := realtime.NewHub(reg, arena)
	arena.SetPublisher(hub)
	engine := settlement.NewEngine(reg, arena, st, hub)

	router := httptransport.NewRouter(cfg, httptransport.Deps{
		Store:   st,
		Rooms:   approoms.NewService(reg, arena, engine, hub),
		Records: apprecords.NewService(st, reg),
		Hub:     hub,
		Live:    arena,
	})
	httptransport.LogRoutes(router)
	return router, hub
}

func run(ctx context.Context, cfg config.ServerConfig) error {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}
	defer st.Close()
	log.Info().Str("driver", cfg.StoreDriver).Msg("store ready")

	handler, hub := buildHandler(cfg, st)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// Shutdown waits for handlers; event streams only end when their subscriber closes.
	server.RegisterOnShutdown(hub.CloseAll)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("chip server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
