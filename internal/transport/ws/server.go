// Package ws streams generated rows to websocket clients. Server implements
// world.Renderer, so it can be plugged straight into the generator.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"procgen2d.ai/internal/gen/mathx"
	"procgen2d.ai/internal/gen/pipeline"
	"procgen2d.ai/internal/world"
)

type Server struct {
	settings world.Settings
	focus    chan<- mathx.Coord
	log      *log.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]chan []byte
	nextID  atomic.Uint64
	dropped atomic.Uint64
}

// NewServer creates a row stream. FOCUS messages from clients are forwarded
// to focus when it is non-nil.
func NewServer(s world.Settings, focus chan<- mathx.Coord, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		settings: s,
		focus:    focus,
		log:      logger,
		clients:  map[string]chan []byte{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped counts messages skipped because a client queue was full.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out := s.handshake(conn)
		if id == "" {
			return
		}
		defer s.remove(id)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			base, err := DecodeBase(msg)
			if err != nil || base.Type != TypeFocus || s.focus == nil {
				continue
			}
			var f FocusMsg
			if err := json.Unmarshal(msg, &f); err != nil {
				continue
			}
			select {
			case s.focus <- mathx.Coord{X: f.X, Y: f.Y}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (string, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}
	base, err := DecodeBase(msg)
	if err != nil || base.Type != TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}
	var hello HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	name := strings.TrimSpace(hello.Name)
	if name == "" {
		name = "viewer"
	}
	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 256
	}
	if maxQ > 4096 {
		maxQ = 4096
	}

	id := fmt.Sprintf("%s_%d", name, s.nextID.Add(1))
	welcome := WelcomeMsg{
		Type:            TypeWelcome,
		ProtocolVersion: Version,
		ClientID:        id,
		Seed:            s.settings.Seed,
		ChunkSize:       [2]int{s.settings.ChunkW, s.settings.ChunkH},
		Outputs:         s.settings.Outputs,
	}
	// Register first so no row generated after WELCOME is missed.
	out := make(chan []byte, maxQ)
	s.mu.Lock()
	s.clients[id] = out
	s.mu.Unlock()
	if err := writeJSON(conn, welcome); err != nil {
		s.remove(id)
		return "", nil
	}
	s.log.Printf("client %s connected", id)
	return id, out
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
	s.log.Printf("client %s disconnected", id)
}

// broadcast never blocks the caller; slow clients lose messages.
func (s *Server) broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("encode: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, out := range s.clients {
		select {
		case out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) SetRow(chunk mathx.Coord, output string, y int, row []pipeline.Change) {
	tiles := make([]string, len(row))
	for i, ch := range row {
		tiles[i] = ch.Tile
	}
	s.broadcast(RowMsg{Type: TypeRow, ProtocolVersion: Version, CX: chunk.X, CY: chunk.Y, Output: output, Y: y, Tiles: tiles})
}

func (s *Server) ClearRow(chunk mathx.Coord, output string, y int) {
	s.broadcast(RowMsg{Type: TypeClear, ProtocolVersion: Version, CX: chunk.X, CY: chunk.Y, Output: output, Y: y})
}

func (s *Server) Refresh(chunk mathx.Coord, output string, cells []mathx.Coord) {
	cs := make([][2]int, len(cells))
	for i, c := range cells {
		cs[i] = [2]int{c.X, c.Y}
	}
	s.broadcast(RowMsg{Type: TypeRefresh, ProtocolVersion: Version, CX: chunk.X, CY: chunk.Y, Output: output, Y: -1, Cells: cs})
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
