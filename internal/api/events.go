package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/interview-recorder/internal/models"
	"github.com/terra-clan/interview-recorder/internal/session"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsCommandQueue = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventMessage is exchanged over the session event stream.
// Server → client: snapshot, result, error, closed. Client → server: command.
type EventMessage struct {
	Type     string           `json:"type"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
	Action   string           `json:"action,omitempty"`
	Code     string           `json:"code,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// eventConn serialises writes; gorilla connections allow one concurrent writer
type eventConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *eventConn) send(msg EventMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal event message", "error", err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := e.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send event message", "error", err)
		return err
	}
	return nil
}

func (e *eventConn) ping() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// handleSessionEvents streams a snapshot after every state change, including countdown ticks.
// The client may also drive the session by sending {"type":"command","action":"start"}.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	c := SessionFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("event stream connected", "session_id", c.ID())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ec := &eventConn{conn: conn}

	pongWait := s.pongWait
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	snapshots, err := c.Subscribe(ctx)
	if err != nil {
		ec.send(EventMessage{Type: "closed", Message: err.Error()})
		return
	}

	var wg sync.WaitGroup

	// Session -> WebSocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		ping := time.NewTicker(s.pingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snapshots:
				if !ok {
					ec.send(EventMessage{Type: "closed", Message: "session closed"})
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
						time.Now().Add(wsWriteTimeout))
					return
				}
				if err := ec.send(EventMessage{Type: "snapshot", Snapshot: &snap}); err != nil {
					return
				}
			case <-ping.C:
				if err := ec.ping(); err != nil {
					return
				}
			}
		}
	}()

	// Commands run one at a time off the reader, so a long submit never starves pong handling
	commands := make(chan string, wsCommandQueue)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case name := <-commands:
				s.runCommand(ctx, ec, c, name)
			}
		}
	}()

	// WebSocket -> session
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(pongWait))

			var msg EventMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				slog.Debug("invalid message format", "error", err)
				continue
			}
			if msg.Type != "command" {
				continue
			}

			select {
			case commands <- msg.Action:
			default:
				ec.send(EventMessage{Type: "error", Action: msg.Action, Code: "busy", Message: "too many pending commands"})
			}
		}
	}()

	// The reader only notices a closed session once the writer closes the socket
	<-ctx.Done()
	conn.Close()
	wg.Wait()
	slog.Info("event stream disconnected", "session_id", c.ID())
}

func (s *Server) runCommand(ctx context.Context, ec *eventConn, c *session.Controller, name string) {
	a, ok := actionsByName[name]
	if !ok {
		ec.send(EventMessage{Type: "error", Action: name, Code: "unknown_action", Message: "unknown action: " + name})
		return
	}

	if err := a.run(c, ctx); err != nil {
		_, code := classifyError(err)
		ec.send(EventMessage{Type: "error", Action: name, Code: code, Message: err.Error()})
		return
	}

	snap := c.Snapshot()
	ec.send(EventMessage{Type: "result", Action: name, Snapshot: &snap})
}
