package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collision-server/internal/actor"
	"collision-server/internal/auth"
	"collision-server/internal/collision"
	"collision-server/internal/config"
	"collision-server/internal/database"
	"collision-server/internal/ecs"
	"collision-server/internal/logger"
	"collision-server/internal/netsync"
	"collision-server/internal/preset"
	"collision-server/internal/sim"
	"collision-server/internal/spatial"
	"collision-server/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults when empty)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	demo := flag.Bool("demo", false, "Spawn the firing range scenario")
	registerPeer := flag.String("register-peer", "", "Create a peer account as name:secret and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.L().Error("load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}

	logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logger.L()

	db, err := database.OpenDB(cfg.Database)
	if err != nil {
		log.Error("open database", "path", cfg.Database, "err", err)
		os.Exit(1)
	}

	peerAuth := auth.NewAuth(db)
	if *registerPeer != "" {
		code := runRegister(peerAuth, *registerPeer)
		db.Close()
		os.Exit(code)
	}
	defer db.Close()

	journal := database.NewJournal(db)
	defer journal.Stop()

	presets := preset.NewLibrary(cfg.PresetsDir)
	if err := presets.LoadAll(); err != nil {
		log.Error("load presets", "dir", cfg.PresetsDir, "err", err)
		os.Exit(1)
	}
	log.Info("presets loaded", "dir", cfg.PresetsDir, "count", len(presets.Names()))

	store := ecs.NewStore()
	world := spatial.NewWorld(store, cfg.GridCellSize)
	dir := actor.NewDirectory(store, world)

	inbox := netsync.NewInbox(cfg.Peer.InboxCapacity)
	outbox := &netsync.Outbox{}
	driver := collision.New(dir, collision.Options{
		BufferCapacity: cfg.BufferCapacity,
		Inbox:          inbox,
		Reporter:       outbox,
		Recorder:       journal,
		Logger:         log.With("component", "collision"),
	})

	hub := transport.NewHub(transport.Options{
		Inbox:     inbox,
		Auth:      peerAuth,
		MaxPerIP:  cfg.Peer.MaxPerIP,
		MaxTotal:  cfg.Peer.MaxPeers,
		RateLimit: cfg.Peer.RateLimit,
		Logger:    log.With("component", "transport"),
	})

	effects := sim.NewEffects(dir, sim.DefaultEffectLifetime)
	var rng *firingRange
	loop := sim.NewLoop(driver, sim.Options{
		Store:       store,
		Outbox:      outbox,
		Broadcaster: hub,
		Effects:     effects,
		TickRate:    cfg.TickRate,
		Logger:      log.With("component", "sim"),
		OnTick: func(s collision.TickStats) {
			if rng != nil {
				rng.step(s.Tick)
			}
		},
	})

	if *demo {
		loop.Submit(func() {
			r, err := newFiringRange(dir, driver, presets, effects)
			if err != nil {
				log.Error("demo scenario", "err", err)
				return
			}
			rng = r
			log.Info("firing range spawned", "actors", dir.Len(), "emitters", len(driver.Emitters()))
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx)
	go func() {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("simulation loop", "err", err)
		}
	}()

	if w, err := preset.NewWatcher(cfg.PresetsDir); err != nil {
		log.Warn("preset hot reload disabled", "dir", cfg.PresetsDir, "err", err)
	} else {
		defer w.Close()
		go preset.Follow(ctx, w, presets, log.With("component", "preset"), nil)
	}

	mux := transport.SetupRoutes(hub, func() map[string]any {
		stats, destroyed := loop.LastStats()
		counts, _ := journal.CountsByKind()
		return map[string]any{
			"tick":      stats.Tick,
			"emitters":  stats.Emitters,
			"destroyed": destroyed,
			"journal":   counts,
			"presets":   presets.Names(),
		}
	})
	server := &http.Server{Addr: cfg.Listen, Handler: mux}

	go func() {
		log.Info("server starting", "addr", cfg.Listen, "tick_rate", cfg.TickRate)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("ListenAndServe", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}
