package marker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	msgSnapshot = "snapshot"
	msgUpsert   = "upsert"
	msgRemove   = "remove"

	peerBuffer   = 64
	writeTimeout = 5 * time.Second
)

type message struct {
	Type    string   `json:"type"`
	Marker  *Marker  `json:"marker,omitempty"`
	Markers []Marker `json:"markers,omitempty"`
	ID      int64    `json:"id,omitempty"`
}

// Relay is a Channel that mirrors markers to websocket peers, so other
// servers in a cluster can show the same markers. New peers receive a
// snapshot followed by live updates.
type Relay struct {
	state    *Memory
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	peers  map[*peer]struct{}
	closed bool
}

type peer struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (p *peer) stop() {
	p.once.Do(func() { close(p.send) })
}

func NewRelay(logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		state: NewMemory(),
		log:   logger.Named("marker_relay"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		peers: map[*peer]struct{}{},
	}
}

func (r *Relay) Upsert(m Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Upsert(m)
	r.broadcastLocked(message{Type: msgUpsert, Marker: &m})
}

func (r *Relay) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.state.Get(id); !ok {
		return
	}
	r.state.Remove(id)
	r.broadcastLocked(message{Type: msgRemove, ID: id})
}

// Markers returns the relay's current view.
func (r *Relay) Markers() []Marker { return r.state.All() }

func (r *Relay) Peers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	p := &peer{conn: conn, send: make(chan []byte, peerBuffer)}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.Close()
		return
	}
	snap, err := json.Marshal(message{Type: msgSnapshot, Markers: r.state.All()})
	if err != nil {
		r.mu.Unlock()
		r.log.Error("marshal snapshot", zap.Error(err))
		_ = conn.Close()
		return
	}
	p.send <- snap
	r.peers[p] = struct{}{}
	r.mu.Unlock()

	r.log.Info("peer connected", zap.String("remote", req.RemoteAddr))
	go r.writePump(p)

	// Peers only listen; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	r.drop(p)
	r.log.Info("peer disconnected", zap.String("remote", req.RemoteAddr))
}

// Close disconnects every peer and refuses new ones.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for p := range r.peers {
		delete(r.peers, p)
		p.stop()
	}
}

func (r *Relay) writePump(p *peer) {
	defer p.conn.Close()
	for data := range p.send {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			r.drop(p)
			return
		}
	}
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

func (r *Relay) drop(p *peer) {
	r.mu.Lock()
	delete(r.peers, p)
	r.mu.Unlock()
	p.stop()
}

func (r *Relay) broadcastLocked(msg message) {
	if len(r.peers) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal marker message", zap.Error(err))
		return
	}
	for p := range r.peers {
		select {
		case p.send <- data:
		default:
			r.log.Warn("peer too slow; disconnecting")
			delete(r.peers, p)
			p.stop()
		}
	}
}

// Follower mirrors a remote Relay into a local Channel, reconnecting until
// its context ends.
type Follower struct {
	URL     string
	Dst     Channel
	Backoff time.Duration
	Dialer  *websocket.Dialer
	Log     *zap.Logger

	known map[int64]struct{}
}

func (f *Follower) Run(ctx context.Context) error {
	if f.Log == nil {
		f.Log = zap.NewNop()
	}
	backoff := f.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	for {
		err := f.follow(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.Log.Warn("marker feed lost", zap.String("url", f.URL), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (f *Follower) follow(ctx context.Context) error {
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, f.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.URL, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	f.Log.Info("following marker feed", zap.String("url", f.URL))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("feed closed by peer")
			}
			return err
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			f.Log.Warn("discarding malformed marker message", zap.Error(err))
			continue
		}
		f.apply(msg)
	}
}

func (f *Follower) apply(msg message) {
	if f.known == nil {
		f.known = map[int64]struct{}{}
	}
	switch msg.Type {
	case msgSnapshot:
		fresh := make(map[int64]struct{}, len(msg.Markers))
		for _, m := range msg.Markers {
			fresh[m.ID] = struct{}{}
			f.Dst.Upsert(m)
		}
		for id := range f.known {
			if _, ok := fresh[id]; !ok {
				f.Dst.Remove(id)
			}
		}
		f.known = fresh
	case msgUpsert:
		if msg.Marker != nil {
			f.known[msg.Marker.ID] = struct{}{}
			f.Dst.Upsert(*msg.Marker)
		}
	case msgRemove:
		delete(f.known, msg.ID)
		f.Dst.Remove(msg.ID)
	default:
		f.Log.Debug("unknown marker message", zap.String("type", msg.Type))
	}
}
