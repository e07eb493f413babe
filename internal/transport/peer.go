package transport

import (
	"time"

	"github.com/gorilla/websocket"

	"collision-server/internal/netsync"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufSize    = 256
)

// Peer is one authenticated remote authority connection.
type Peer struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	id         int64
	name       string
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
}

func newPeer(hub *Hub, conn *websocket.Conn, id int64, name, remoteAddr string) *Peer {
	return &Peer{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		id:         id,
		name:       name,
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads frames from the connection until it fails or the peer
// exceeds its frame rate.
func (p *Peer) ReadPump() {
	defer func() {
		p.hub.TrackDisconnect(p.remoteAddr)
		p.hub.unregisterPeer(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.hub.log.Warn("peer read error", "peer", p.name, "err", err)
			}
			break
		}

		now := time.Now()
		if now.After(p.msgResetAt) {
			p.msgCount = 0
			p.msgResetAt = now.Add(time.Second)
		}
		p.msgCount++
		if p.msgCount > p.hub.rateLimit {
			p.hub.log.Warn("peer rate limit exceeded, disconnecting", "peer", p.name, "addr", p.remoteAddr)
			break
		}

		if msgType != websocket.BinaryMessage {
			p.hub.reject()
			p.sendError("binary msgpack frames only")
			continue
		}
		p.handleFrame(message)
	}
}

// WritePump writes queued frames and keepalive pings.
func (p *Peer) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues an encoded frame. Slow peers lose frames.
func (p *Peer) Send(data []byte) {
	defer func() { recover() }() // send may already be closed
	select {
	case p.send <- data:
	default:
	}
}

func (p *Peer) sendFrame(f netsync.Frame) {
	data, err := netsync.EncodeFrame(f)
	if err != nil {
		p.hub.log.Error("peer encode failed", "peer", p.name, "err", err)
		return
	}
	p.Send(data)
}

func (p *Peer) sendError(msg string) {
	p.sendFrame(netsync.Frame{T: netsync.MsgError, Err: msg})
}

func (p *Peer) handleFrame(raw []byte) {
	f, err := netsync.DecodeFrame(raw)
	if err != nil {
		p.hub.reject()
		p.sendError(err.Error())
		return
	}
	switch f.T {
	case netsync.MsgCollisions:
		p.hub.deliver(f.Events)
	default:
		p.hub.reject()
		p.sendError("unknown frame type " + f.T)
	}
}
