package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hostpulse/hostpulse/telemetry"
)

// defaultWriteTimeout bounds a single consumer write so one unresponsive
// connection cannot stall the publishing side.
const defaultWriteTimeout = 5 * time.Second

// SocketPublisher pushes each published snapshot to every connected
// websocket consumer. The protocol is push-on-publish with no handshake
// beyond the connection accept: a consumer connects to /ws, immediately
// receives the most recent payload if one exists, and then one message per
// publish. GET /snapshot serves the latest payload for plain HTTP pollers.
type SocketPublisher struct {
	logger       *slog.Logger
	srv          *http.Server
	ln           net.Listener
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	// mu serializes every write to every consumer connection: the
	// websocket protocol allows only one concurrent writer per conn.
	mu          sync.Mutex
	subscribers map[*websocket.Conn]bool
	last        []byte
}

// NewSocketPublisher starts listening on addr (e.g. "127.0.0.1:9167") and
// begins serving consumers. Close must be called to release the listener.
func NewSocketPublisher(addr string, logger *slog.Logger) (*SocketPublisher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("publish: listen %s: %w", addr, err)
	}

	p := &SocketPublisher{
		logger:       logger,
		ln:           ln,
		writeTimeout: defaultWriteTimeout,
		subscribers:  make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", p.handleWebSocket)
	mux.HandleFunc("/snapshot", p.handleSnapshot)
	p.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := p.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("publish: socket server", "error", err)
		}
	}()

	return p, nil
}

// Addr returns the bound listen address.
func (p *SocketPublisher) Addr() string { return p.ln.Addr().String() }

// Publish broadcasts the snapshot to all connected consumers. A consumer
// whose connection fails is dropped; the publish itself only fails if the
// payload cannot be encoded.
func (p *SocketPublisher) Publish(_ context.Context, snap telemetry.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("publish: marshal snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = payload
	for conn := range p.subscribers {
		if err := p.writeConn(conn, payload); err != nil {
			p.logger.Debug("publish: dropping consumer", "remote", conn.RemoteAddr(), "error", err)
			_ = conn.Close()
			delete(p.subscribers, conn)
		}
	}
	return nil
}

// writeConn sends one payload with a bounded deadline. The caller must hold
// p.mu.
func (p *SocketPublisher) writeConn(conn *websocket.Conn, payload []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Close shuts down the server and disconnects all consumers.
func (p *SocketPublisher) Close() error {
	p.mu.Lock()
	for conn := range p.subscribers {
		_ = conn.Close()
		delete(p.subscribers, conn)
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.srv.Shutdown(ctx)
}

func (p *SocketPublisher) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warn("publish: websocket upgrade", "error", err)
		return
	}

	// New consumers get the current state right away rather than waiting
	// for the next publish. The catch-up write happens under p.mu, before
	// the conn is registered, so it can never interleave with a broadcast
	// write to the same conn.
	p.mu.Lock()
	if p.last != nil {
		if err := p.writeConn(conn, p.last); err != nil {
			p.mu.Unlock()
			_ = conn.Close()
			return
		}
	}
	p.subscribers[conn] = true
	p.mu.Unlock()

	// Consumers never send data; the read loop only notices disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				p.removeSubscriber(conn)
				return
			}
		}
	}()
}

func (p *SocketPublisher) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()

	if last == nil {
		http.Error(w, `{"error":"no snapshot published yet"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(last)
}

func (p *SocketPublisher) removeSubscriber(conn *websocket.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subscribers[conn] {
		_ = conn.Close()
		delete(p.subscribers, conn)
	}
}

// Compile-time interface compliance check.
var _ Publisher = (*SocketPublisher)(nil)
