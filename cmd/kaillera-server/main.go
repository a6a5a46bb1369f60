// Command kaillera-server runs the Game Data/Game Cache frame
// synchronization core (spec.md) over a UDP listener. The bootstrap
// handshake, chat, and game-list broadcasts spec.md places out of
// core scope are not implemented; see lobby.go for the minimal
// stand-in that lets this binary demonstrate a room end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kaillera-relay/server/internal/metrics"
	"github.com/kaillera-relay/server/internal/registry"
	"github.com/kaillera-relay/server/internal/room"
	"github.com/kaillera-relay/server/internal/udpserver"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("kaillera-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	reg := registry.New()
	srv := udpserver.NewServer(
		udpserver.WithListenAddr(cfg.listenAddr),
		udpserver.WithRegistry(reg),
		udpserver.WithLogger(l),
		udpserver.WithReadBufferSize(cfg.readBufferSize),
	)

	roomOpts := room.Options{
		MaxPlayers:  cfg.maxPlayers,
		FloodCap:    cfg.floodCap,
		IdleTimeout: cfg.idleTimeout,
		WindowDepth: cfg.windowDepth,
		Logger:      l,
	}
	lb := newLobby(reg, srv, roomOpts, cfg.maxPlayers, cfg.gameTitle, cfg.emuName, cfg.serverKey, l)
	srv.SetUnknownSenderHandler(lb.onUnknownSender)

	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("udp_server_error", "error", err)
			cancel()
		}
	}()
	select {
	case <-srv.Ready():
	case <-ctx.Done():
	}

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("udp_shutdown_error", "error", err)
	}
	wg.Wait()
}
