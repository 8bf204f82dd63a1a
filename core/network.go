package core

// Transport fans out newly produced blocks to connected collaborators.
// Grounded on the teacher's explorer/server.go websocket-upgrade handler
// (gorilla, one writer goroutine per connection, a broadcast channel
// feeding all of them) — generalized from a single explorer feed into a
// named capability interface so the node can run with either backend named
// in spec.md's network module: "star" (a real hub-and-spoke broadcaster)
// or "mesh" (present as an explicit stub, since the spec's single-node,
// single-producer model has no peer set for a mesh to gossip across).

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Transport is the capability surface the engine needs from whichever
// network backend is configured (see Engine.SetTransport).
type Transport interface {
	BroadcastBlock(b *Block)
	PeerCount() int
	BrowserCount() int
}

//---------------------------------------------------------------------
// star: websocket hub-and-spoke broadcaster
//---------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StarTransport broadcasts every produced block to all currently connected
// websocket subscribers ("browsers", in spec.md's terminology).
type StarTransport struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]chan *Block
	log   *logrus.Entry
}

// NewStarTransport constructs an empty hub.
func NewStarTransport() *StarTransport {
	return &StarTransport{
		conns: make(map[*websocket.Conn]chan *Block),
		log:   logrus.WithField("component", "star_transport"),
	}
}

// ServeWS upgrades r to a websocket and registers it as a block subscriber
// until the connection closes.
func (s *StarTransport) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	ch := make(chan *Block, 16)
	s.mu.Lock()
	s.conns[conn] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for b := range ch {
		if err := conn.WriteJSON(b); err != nil {
			return
		}
	}
}

// BroadcastBlock fans b out to every subscriber, dropping it for any whose
// buffer is full rather than blocking the producer loop.
func (s *StarTransport) BroadcastBlock(b *Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.conns {
		select {
		case ch <- b:
		default:
			s.log.WithField("remote", conn.RemoteAddr()).Warn("subscriber lagging, dropping block")
		}
	}
}

// PeerCount is always 0: a star transport has no node-to-node peer set,
// only browser subscribers.
func (s *StarTransport) PeerCount() int { return 0 }

// BrowserCount reports the number of currently connected subscribers.
func (s *StarTransport) BrowserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

//---------------------------------------------------------------------
// mesh: explicit stub
//---------------------------------------------------------------------

// MeshTransport is an explicit no-op stand-in for a future gossip-mesh peer
// network. The single-producer, single-node model this chain implements
// has no second node to gossip with yet, so wiring libp2p here would add a
// dependency with nothing to exercise it; BroadcastBlock is a deliberate
// no-op rather than an error so callers can select "mesh" in config without
// the node refusing to start.
type MeshTransport struct{}

// NewMeshTransport constructs the stub transport.
func NewMeshTransport() *MeshTransport { return &MeshTransport{} }

func (MeshTransport) BroadcastBlock(*Block) {}
func (MeshTransport) PeerCount() int        { return 0 }
func (MeshTransport) BrowserCount() int     { return 0 }
