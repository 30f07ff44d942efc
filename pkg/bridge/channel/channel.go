// Package channel delivers text messages to a leg's realtime session.
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/callbridge/pkg/bridge/fault"
)

// Message is the wire shape sent to a leg. Last marks the final chunk
// before the channel is expected to be torn down.
type Message struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Last  bool   `json:"last"`
}

// Text builds a text message.
func Text(token string, last bool) Message {
	return Message{Type: "text", Token: token, Last: last}
}

// Sender delivers messages to one leg.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Registry maps connection identifiers to their live senders. The
// disconnect cascade and the translation relay look the opposite leg's
// sender up here.
type Registry struct {
	mu      sync.Mutex
	senders map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// Register binds a sender to a connection identifier and returns its
// unregister func.
func (r *Registry) Register(connectionID string, s Sender) (unregister func()) {
	r.mu.Lock()
	r.senders[connectionID] = s
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		if r.senders[connectionID] == s {
			delete(r.senders, connectionID)
		}
		r.mu.Unlock()
	}
}

// Lookup returns the sender for a connection, or a not_found fault when
// the leg has no live channel in this process.
func (r *Registry) Lookup(connectionID string) (Sender, error) {
	r.mu.Lock()
	s, ok := r.senders[connectionID]
	r.mu.Unlock()
	if !ok {
		return nil, fault.New(fault.KindNotFound, "channel.lookup", fmt.Sprintf("no live channel for %s", connectionID))
	}
	return s, nil
}

// Send delivers a message to a connection in one step.
func (r *Registry) Send(ctx context.Context, connectionID string, msg Message) error {
	s, err := r.Lookup(connectionID)
	if err != nil {
		return err
	}
	return s.Send(ctx, msg)
}

type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v any) error
}

// WSSender writes messages to a websocket connection. Writes are
// serialized; gorilla connections allow one concurrent writer.
type WSSender struct {
	mu           sync.Mutex
	conn         wsConn
	writeTimeout time.Duration
}

func NewWSSender(conn *websocket.Conn, writeTimeout time.Duration) *WSSender {
	return &WSSender{conn: conn, writeTimeout: writeTimeout}
}

func (s *WSSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeout := s.writeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fault.Wrap(fault.KindUnavailable, "channel.send", err)
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fault.Wrap(fault.KindUnavailable, "channel.send", err)
	}
	return nil
}
