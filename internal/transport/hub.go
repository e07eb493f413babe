// Package transport carries collision reports between this server and
// remote authorities over websockets.
package transport

import (
	"context"
	"log/slog"
	"sync"

	"collision-server/internal/netsync"
)

const (
	defaultMaxPerIP = 5
	defaultMaxTotal = 64
	defaultRate     = 50
)

// PeerAuth authenticates remote authorities.
type PeerAuth interface {
	ValidateToken(token string) (int64, string, error)
	Login(name, secret, ip string) (int64, string, error)
}

// Options configures a Hub. Zero limits fall back to defaults.
type Options struct {
	Inbox     *netsync.Inbox
	Auth      PeerAuth
	MaxPerIP  int
	MaxTotal  int
	RateLimit int // frames per second per peer
	Logger    *slog.Logger
}

// Hub tracks connected peers, feeds their reports into the inbox and
// broadcasts locally decided collisions back to them.
type Hub struct {
	mu         sync.RWMutex
	peers      map[*Peer]bool
	register   chan *Peer
	unregister chan *Peer
	done       chan struct{} // closed when Run returns

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int

	inbox     *netsync.Inbox
	auth      PeerAuth
	maxPerIP  int
	maxTotal  int
	rateLimit int
	log       *slog.Logger

	statsMu  sync.Mutex
	received int
	rejected int
}

// NewHub creates a Hub.
func NewHub(opts Options) *Hub {
	h := &Hub{
		peers:      make(map[*Peer]bool),
		register:   make(chan *Peer, 64),
		unregister: make(chan *Peer, 64),
		done:       make(chan struct{}),
		ipConns:    make(map[string]int),
		inbox:      opts.Inbox,
		auth:       opts.Auth,
		maxPerIP:   opts.MaxPerIP,
		maxTotal:   opts.MaxTotal,
		rateLimit:  opts.RateLimit,
		log:        opts.Logger,
	}
	if h.maxPerIP <= 0 {
		h.maxPerIP = defaultMaxPerIP
	}
	if h.maxTotal <= 0 {
		h.maxTotal = defaultMaxTotal
	}
	if h.rateLimit <= 0 {
		h.rateLimit = defaultRate
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	return h
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= h.maxTotal {
		return false
	}
	return h.ipConns[ip] < h.maxPerIP
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events until ctx is done, then closes
// every peer's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case p := <-h.register:
			h.mu.Lock()
			h.peers[p] = true
			h.mu.Unlock()
			h.log.Info("peer connected", "peer", p.name, "addr", p.remoteAddr)

		case p := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.peers[p]; ok {
				delete(h.peers, p)
				close(p.send)
			}
			h.mu.Unlock()
			h.log.Info("peer disconnected", "peer", p.name, "addr", p.remoteAddr)

		case <-ctx.Done():
			h.mu.Lock()
			for p := range h.peers {
				delete(h.peers, p)
				close(p.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// registerPeer hands p to Run. It reports false once Run has returned.
func (h *Hub) registerPeer(p *Peer) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.register <- p:
		return true
	case <-h.done:
		return false
	}
}

// unregisterPeer hands p to Run, or drops it once Run has returned.
func (h *Hub) unregisterPeer(p *Peer) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

// Broadcast sends the collisions decided during tick to every peer.
func (h *Hub) Broadcast(tick uint64, events []netsync.CollisionEvent) {
	if len(events) == 0 {
		return
	}
	for start := 0; start < len(events); start += netsync.MaxEventsPerFrame {
		end := min(start+netsync.MaxEventsPerFrame, len(events))
		data, err := netsync.EncodeFrame(netsync.Frame{T: netsync.MsgCollisions, Tick: tick, Events: events[start:end]})
		if err != nil {
			h.log.Error("broadcast encode failed", "tick", tick, "err", err)
			return
		}
		h.mu.RLock()
		for p := range h.peers {
			p.Send(data)
		}
		h.mu.RUnlock()
	}
}

// deliver hands a peer's reports to the tick loop.
func (h *Hub) deliver(events []netsync.CollisionEvent) {
	h.statsMu.Lock()
	h.received += len(events)
	h.statsMu.Unlock()
	if h.inbox != nil {
		h.inbox.Push(events...)
	}
}

func (h *Hub) reject() {
	h.statsMu.Lock()
	h.rejected++
	h.statsMu.Unlock()
}

// PeerCount returns the number of registered peers
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}

// Received returns the number of events accepted from peers.
func (h *Hub) Received() int {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.received
}
