package netsync

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Peer -> server and server -> peer frame types
const (
	MsgCollisions = "collisions"
	MsgWelcome    = "welcome"
	MsgError      = "error"
)

// MaxEventsPerFrame caps the events accepted in one frame.
const MaxEventsPerFrame = 512

var ErrBadFrame = errors.New("netsync: bad frame")

// Frame is the msgpack envelope exchanged with peers.
type Frame struct {
	T      string           `msgpack:"t"`
	Tick   uint64           `msgpack:"k,omitempty"`
	Peer   string           `msgpack:"p,omitempty"`
	Events []CollisionEvent `msgpack:"e,omitempty"`
	Err    string           `msgpack:"err,omitempty"`
}

// EncodeFrame marshals f for a binary websocket message.
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := msgpack.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("netsync: encode %s frame: %w", f.T, err)
	}
	return data, nil
}

// DecodeFrame unmarshals and sanity-checks a peer frame.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if f.T == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrBadFrame)
	}
	if len(f.Events) > MaxEventsPerFrame {
		return Frame{}, fmt.Errorf("%w: %d events exceeds %d", ErrBadFrame, len(f.Events), MaxEventsPerFrame)
	}
	return f, nil
}

// Outbox collects collisions decided locally by authoritative actors
// during a tick. It is owned by the tick goroutine.
type Outbox struct {
	events []CollisionEvent
}

// Report records that source hit target.
func (o *Outbox) Report(source, target int32) {
	if o == nil || source == 0 || target == 0 {
		return
	}
	o.events = append(o.events, CollisionEvent{ActorStateID: source, HitStateID: target})
}

// Take appends the recorded events to dst and resets the outbox.
func (o *Outbox) Take(dst []CollisionEvent) []CollisionEvent {
	if o == nil {
		return dst
	}
	dst = append(dst, o.events...)
	o.events = o.events[:0]
	return dst
}

// Len returns the number of recorded events.
func (o *Outbox) Len() int {
	if o == nil {
		return 0
	}
	return len(o.events)
}
