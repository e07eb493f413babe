// Package sim runs the fixed-rate simulation loop around the collision
// driver.
package sim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"collision-server/internal/collision"
	"collision-server/internal/ecs"
	"collision-server/internal/netsync"
)

const (
	DefaultTickRate = 60
	commandQueue    = 256
	// statsEvery is how many ticks pass between debug summaries.
	statsEvery = 600
)

// Broadcaster delivers locally decided collisions to remote peers.
type Broadcaster interface {
	Broadcast(tick uint64, events []netsync.CollisionEvent)
}

// Options configures a Loop.
type Options struct {
	Store       *ecs.Store
	Outbox      *netsync.Outbox
	Broadcaster Broadcaster
	Effects     *Effects
	TickRate    int
	Logger      *slog.Logger
	// OnTick, when set, is called on the loop goroutine after every tick.
	OnTick func(collision.TickStats)
}

// Loop owns the tick goroutine. Everything that touches actors, the
// physics world or emitters must run on it, through Submit.
type Loop struct {
	driver   *collision.Driver
	store    *ecs.Store
	outbox   *netsync.Outbox
	out      Broadcaster
	effects  *Effects
	interval time.Duration
	log      *slog.Logger
	onTick   func(collision.TickStats)

	cmds   chan func()
	events []netsync.CollisionEvent

	mu        sync.Mutex
	last      collision.TickStats
	destroyed int
}

func NewLoop(driver *collision.Driver, opts Options) *Loop {
	rate := opts.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		driver:   driver,
		store:    opts.Store,
		outbox:   opts.Outbox,
		out:      opts.Broadcaster,
		effects:  opts.Effects,
		interval: time.Second / time.Duration(rate),
		log:      log,
		onTick:   opts.OnTick,
		cmds:     make(chan func(), commandQueue),
	}
}

// Submit queues fn to run on the loop goroutine before the next tick. It
// returns false when the queue is full.
func (l *Loop) Submit(fn func()) bool {
	select {
	case l.cmds <- fn:
		return true
	default:
		return false
	}
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.log.Info("simulation loop started", "interval", l.interval)
	for {
		select {
		case <-ticker.C:
			l.Step()
		case <-ctx.Done():
			l.log.Info("simulation loop stopped", "ticks", l.driver.TickCount())
			return ctx.Err()
		}
	}
}

// Step runs queued commands, one collision tick, effect expiry, the
// deferred destroy flush and the outbound broadcast.
func (l *Loop) Step() collision.TickStats {
	l.drainCommands()

	stats := l.driver.Tick()
	if l.effects != nil {
		l.effects.Step()
	}

	destroyed := 0
	if l.store != nil {
		destroyed = l.store.Flush()
	}

	l.events = l.outbox.Take(l.events[:0])
	if len(l.events) > 0 && l.out != nil {
		l.out.Broadcast(stats.Tick, l.events)
	}

	l.mu.Lock()
	l.last = stats
	l.destroyed += destroyed
	l.mu.Unlock()

	if stats.Tick%statsEvery == 0 {
		l.log.Debug("tick",
			"tick", stats.Tick,
			"emitters", stats.Emitters,
			"dispatches", stats.Dispatches,
			"network_events", stats.NetworkEvents,
			"destroyed", destroyed,
		)
	}
	if l.onTick != nil {
		l.onTick(stats)
	}
	return stats
}

func (l *Loop) drainCommands() {
	for {
		select {
		case fn := <-l.cmds:
			fn()
		default:
			return
		}
	}
}

// LastStats returns the most recent tick summary and the total number of
// entities destroyed so far. Safe from any goroutine.
func (l *Loop) LastStats() (collision.TickStats, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.destroyed
}
