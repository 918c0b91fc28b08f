package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheEntropyCollective/asyncdemo/pkg/demo"
)

const wsWriteWait = 5 * time.Second

type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// upgrade switches the request to a websocket and returns a context that
// ends when the peer disconnects
func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, context.Context, context.CancelFunc, bool) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("websocket upgrade failed")
		return nil, nil, nil, false
	}

	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return conn, ctx, cancel, true
}

func writeMessage(conn *websocket.Conn, msg wsMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func closeSocket(conn *websocket.Conn, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, text),
		time.Now().Add(wsWriteWait))
	conn.Close()
}

// handleStreamSocket pushes every stream item as its own message
func (s *Server) handleStreamSocket(w http.ResponseWriter, r *http.Request) {
	conn, ctx, cancel, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer cancel()

	err := s.service.Stream(ctx, func(item demo.StreamItem) error {
		return writeMessage(conn, wsMessage{Type: "item", Data: item})
	})
	if err != nil {
		s.logger.WithError(err).Debug("stream socket ended early")
		conn.Close()
		return
	}
	_ = writeMessage(conn, wsMessage{Type: "done"})
	closeSocket(conn, "stream complete")
}

// handlePoolSocket pushes a pool snapshot every telemetry interval until the
// peer disconnects
func (s *Server) handlePoolSocket(w http.ResponseWriter, r *http.Request) {
	conn, ctx, cancel, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer cancel()
	defer conn.Close()

	ticker := time.NewTicker(s.config.TelemetryInterval)
	defer ticker.Stop()

	for {
		if err := writeMessage(conn, wsMessage{Type: "pool", Data: s.service.PoolSnapshot()}); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
