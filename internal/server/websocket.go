package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/michaelbrown/runbox/internal/executor"
	"github.com/michaelbrown/runbox/internal/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	TimeoutMS int    `json:"timeout_ms"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type    string           `json:"type"`
	ID      string           `json:"id,omitempty"`
	Content string           `json:"content,omitempty"`
	Result  *executor.Result `json:"result,omitempty"`
}

// wsConn serializes writes to a websocket connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	s    *Server
}

func (c *wsConn) send(v wsOutgoing) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		c.s.log.Error().Err(err).Msg("websocket marshal")
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.s.log.Debug().Err(err).Msg("websocket write")
	}
}

// handleWebSocket accepts execute requests over a single connection. One
// execution runs at a time; a "cancel" message stops it, and closing the
// connection cancels anything still running.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	c := &wsConn{conn: conn, s: s}

	connCtx, cancelConn := context.WithCancel(context.Background())
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running context.CancelFunc
	)
	defer func() {
		cancelConn()
		wg.Wait()
	}()

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("websocket read")
			}
			return
		}

		switch msg.Type {
		case "execute":
			mu.Lock()
			if running != nil {
				mu.Unlock()
				c.send(wsOutgoing{Type: "error", Content: "execution already in progress"})
				continue
			}
			runCtx, cancel := context.WithCancel(connCtx)
			running = cancel
			mu.Unlock()

			wg.Add(1)
			go func(code string, timeoutMS int) {
				defer wg.Done()
				defer func() {
					mu.Lock()
					running = nil
					mu.Unlock()
					cancel()
				}()
				s.runWebSocketExecution(runCtx, c, code, timeoutMS)
			}(msg.Code, msg.TimeoutMS)

		case "cancel":
			mu.Lock()
			if running != nil {
				running()
			}
			mu.Unlock()

		default:
			c.send(wsOutgoing{Type: "error", Content: "invalid message"})
		}
	}
}

func (s *Server) runWebSocketExecution(ctx context.Context, c *wsConn, code string, timeoutMS int) {
	if timeoutMS < 0 {
		c.send(wsOutgoing{Type: "error", Content: "timeout_ms must be >= 0"})
		return
	}

	res, id, err := s.execute(ctx, storage.SourceWS, code, msToDuration(timeoutMS))
	if err != nil {
		if errors.Is(err, ErrBusy) {
			c.send(wsOutgoing{Type: "error", Content: err.Error()})
		} else {
			s.log.Error().Err(err).Msg("websocket execution")
			c.send(wsOutgoing{Type: "error", Content: "execution failed to start"})
		}
		return
	}

	c.send(wsOutgoing{Type: "result", ID: id, Result: &res})
}
