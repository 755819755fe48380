package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ericlevine/qrdecode/internal/message"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// newUpgrader accepts browser origins listed in allowed. With no list, only
// same-host origins and clients that send no Origin header are accepted.
func newUpgrader(allowed []string) *websocket.Upgrader {
	u := &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(allowed) > 0 {
		u.CheckOrigin = func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), allowed)
		}
	}
	return u
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// frame is an outbound websocket message.
type frame struct {
	Type  string `json:"type"` // reply or error
	ID    string `json:"id,omitempty"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleMessages runs the chat feed: every inbound text frame is a message,
// answered with a reply frame when its first image holds a QR code.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	log := s.log.With(zap.String("request_id", RequestIDFrom(r.Context())))
	log.Info("websocket connected", zap.String("remote_addr", r.RemoteAddr))

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		websocketMessagesTotal.WithLabelValues("in", "message").Inc()

		var msg message.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.send(conn, log, frame{Type: "error", Error: "malformed message: " + err.Error()})
			continue
		}

		reply, ok, err := s.adapter.Handle(r.Context(), msg)
		if err != nil {
			// Load failures stay server side.
			log.Error("message scan failed", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		if ok {
			s.send(conn, log, frame{Type: "reply", ID: msg.ID, Text: reply})
		}
	}
}

func (s *Server) send(conn *websocket.Conn, log *zap.Logger, f frame) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(f); err != nil {
		log.Warn("websocket write failed", zap.Error(err))
		return
	}
	websocketMessagesTotal.WithLabelValues("out", f.Type).Inc()
}
