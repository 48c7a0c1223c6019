package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hostpulse/hostpulse/telemetry"
)

func newTestSocket(t *testing.T) *SocketPublisher {
	t.Helper()
	p, err := NewSocketPublisher("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewSocketPublisher: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func dialWS(t *testing.T, p *SocketPublisher) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+p.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readSnapshotMessage(t *testing.T, conn *websocket.Conn) telemetry.Snapshot {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var snap telemetry.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("parse pushed snapshot: %v", err)
	}
	return snap
}

func TestSocketPushOnPublish(t *testing.T) {
	p := newTestSocket(t)
	conn := dialWS(t, p)

	want := testSnapshot()
	if err := p.Publish(context.Background(), want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := readSnapshotMessage(t, conn)
	if got.Host != want.Host {
		t.Errorf("Host = %+v, want %+v", got.Host, want.Host)
	}
	if len(got.Samples) != len(want.Samples) {
		t.Errorf("Samples length = %d, want %d", len(got.Samples), len(want.Samples))
	}
}

// A consumer connecting after a publish receives the latest payload
// immediately instead of waiting a full cadence.
func TestSocketNewConsumerGetsCurrentState(t *testing.T) {
	p := newTestSocket(t)

	want := testSnapshot()
	if err := p.Publish(context.Background(), want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	conn := dialWS(t, p)
	got := readSnapshotMessage(t, conn)
	if got.Host.Hostname != want.Host.Hostname {
		t.Errorf("Hostname = %q, want %q", got.Host.Hostname, want.Host.Hostname)
	}
}

func TestSocketHTTPSnapshotEndpoint(t *testing.T) {
	p := newTestSocket(t)

	// Before any publish: the missing payload is reported, not a crash.
	resp, err := http.Get("http://" + p.Addr() + "/snapshot")
	if err != nil {
		t.Fatalf("GET /snapshot: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d before publish, want 404", resp.StatusCode)
	}

	if err := p.Publish(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	resp, err = http.Get("http://" + p.Addr() + "/snapshot")
	if err != nil {
		t.Fatalf("GET /snapshot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d after publish, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var snap telemetry.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("parse body: %v", err)
	}
	if snap.Host.Hostname != "node-1" {
		t.Errorf("Hostname = %q, want node-1", snap.Host.Hostname)
	}
}

// Consumers connecting while broadcasts are in flight must not interleave
// writes on a connection: the catch-up write and the broadcast writes are
// all serialized under the publisher's lock.
func TestSocketConcurrentSubscribeAndPublish(t *testing.T) {
	p := newTestSocket(t)
	snap := testSnapshot()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if err := p.Publish(context.Background(), snap); err != nil {
				t.Errorf("Publish: %v", err)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial("ws://"+p.Addr()+"/ws", nil)
			if err != nil {
				t.Errorf("dial websocket: %v", err)
				return
			}
			defer conn.Close()
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				t.Errorf("read message: %v", err)
			}
		}()
	}
	wg.Wait()
	<-done
}

// One open-but-unresponsive consumer must not stall the broadcast: each
// write carries a deadline and the dead consumer is dropped when it expires.
func TestSocketSlowConsumerIsPruned(t *testing.T) {
	p := newTestSocket(t)
	p.writeTimeout = 50 * time.Millisecond

	// Connected but never reads, so the connection's buffers fill up.
	dialWS(t, p)

	snap := testSnapshot()
	big := make([]telemetry.Sample, 20000)
	for i := range big {
		big[i] = snap.Samples[0]
	}
	snap.Samples = big

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if err := p.Publish(context.Background(), snap); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		p.mu.Lock()
		remaining := len(p.subscribers)
		p.mu.Unlock()
		if remaining == 0 {
			return
		}
	}
	t.Fatal("unresponsive consumer was never dropped")
}

// A consumer that disconnects must not fail subsequent publishes.
func TestSocketDroppedConsumer(t *testing.T) {
	p := newTestSocket(t)
	conn := dialWS(t, p)

	if err := p.Publish(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	readSnapshotMessage(t, conn)
	_ = conn.Close()

	// Publishes after the disconnect keep succeeding; the dead consumer
	// is pruned on write failure.
	for i := 0; i < 3; i++ {
		if err := p.Publish(context.Background(), testSnapshot()); err != nil {
			t.Fatalf("Publish after disconnect: %v", err)
		}
	}
}
