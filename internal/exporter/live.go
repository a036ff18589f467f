package exporter

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/m-lab/go/warnonerror"
	"github.com/robertodauria/speedmatrix/pkg/probe/spec"
	"go.uber.org/zap"
)

const (
	// Messages queued for a slow client beyond this are dropped.
	clientQueue  = 64
	writeTimeout = 5 * time.Second
)

type liveMessage struct {
	Kind     string  `json:"kind"`
	Endpoint int     `json:"endpoint"`
	Name     string  `json:"name"`
	Slot     int     `json:"slot"`
	Rate     float64 `json:"rate"`
	Bytes    int64   `json:"bytes"`
	Time     string  `json:"time"`
}

type liveClient struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *liveClient) close() {
	c.once.Do(func() { close(c.done) })
}

type hub struct {
	mu      sync.Mutex
	clients map[*liveClient]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*liveClient]struct{})}
}

func (h *hub) add(c *liveClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *liveClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
	}
}

// broadcast never blocks: a client whose queue is full misses the message.
func (h *hub) broadcast(m liveMessage) {
	data, err := json.Marshal(m)
	if err != nil {
		zap.L().Sugar().Warnw("Cannot marshal live message", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// upgrade upgrades the HTTP connection to WebSockets. The client must ask
// for spec.LiveProtocol.
func upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	if r.Header.Get("Sec-WebSocket-Protocol") != spec.LiveProtocol {
		w.WriteHeader(http.StatusBadRequest)
		return nil, errors.New("missing Sec-WebSocket-Protocol header")
	}
	h := http.Header{}
	h.Add("Sec-WebSocket-Protocol", spec.LiveProtocol)
	u := websocket.Upgrader{
		// Allow cross-origin resource sharing.
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return u.Upgrade(w, r, h)
}

func (s *Server) handleLive(c *gin.Context) {
	conn, err := upgrade(c.Writer, c.Request)
	if err != nil {
		zap.L().Sugar().Debugw("Live feed upgrade failed", "client", c.Request.RemoteAddr, "err", err)
		return
	}
	defer warnonerror.Close(conn, "live: ignoring conn.Close error")

	client := &liveClient{
		send: make(chan []byte, clientQueue),
		done: make(chan struct{}),
	}
	s.hub.add(client)
	defer s.hub.remove(client)

	// The feed is one-way; reading only detects the close.
	errch := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				errch <- err
				return
			}
		}
	}()

	for {
		select {
		case <-client.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			return
		case <-errch:
			return
		case data := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
