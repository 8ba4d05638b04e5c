package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/callpulse/messages"
)

// fakeServer accepts client sessions and records every frame they send
type fakeServer struct {
	t      *testing.T
	srv    *httptest.Server
	frames chan *messages.Frame
	paths  chan string

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		t:      t,
		frames: make(chan *messages.Frame, 64),
		paths:  make(chan string, 8),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.paths <- r.URL.Path
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f, err := messages.Decode(data)
			if err != nil {
				continue
			}
			fs.frames <- f
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

// push sends a frame to the most recent session
func (fs *fakeServer) push(f *messages.Frame) {
	fs.t.Helper()
	fs.mu.Lock()
	conn := fs.conns[len(fs.conns)-1]
	fs.mu.Unlock()
	data, err := messages.Encode(f)
	if err != nil {
		fs.t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		fs.t.Fatalf("push: %v", err)
	}
}

// dropAll closes every server-side connection
func (fs *fakeServer) dropAll() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, c := range fs.conns {
		c.Close()
	}
}

func (fs *fakeServer) nextFrame(t *testing.T) *messages.Frame {
	t.Helper()
	select {
	case f := <-fs.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// newOfflineClient builds a client that is never dialed, for router tests
func newOfflineClient(t *testing.T, view View) *Client {
	t.Helper()
	c, err := New(Config{ServerURL: "ws://127.0.0.1:1", View: view})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}
