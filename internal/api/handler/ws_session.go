package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"meetgogo/backend/internal/client"
	"meetgogo/backend/internal/matchmaker"
	"meetgogo/backend/internal/models"
	"meetgogo/backend/internal/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// wsCommand is one client-to-server frame.
type wsCommand struct {
	Type   string      `json:"type"` // search|cancel|message|typing|end|swap
	Mode   models.Mode `json:"mode,omitempty"`
	Body   string      `json:"body,omitempty"`
	Typing bool        `json:"typing,omitempty"`
}

// wsEvent is one server-to-client frame.
type wsEvent struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
	Partner   *models.Profile        `json:"partner,omitempty"`
	Role      matchmaker.Role        `json:"role,omitempty"`
	Mode      models.Mode            `json:"mode,omitempty"`
	Message   *models.ChatMessage    `json:"message,omitempty"`
	Typing    *bool                  `json:"typing,omitempty"`
	Track     *signaling.RemoteTrack `json:"track,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// wsSession pumps one WebSocket connection against one session client.
type wsSession struct {
	conn   *websocket.Conn
	client *client.Client
}

func (s *wsSession) run() {
	go s.writePump()
	go s.readPump()
}

// readPump decodes command frames and drives the facade. Closing the
// connection (or any read error) tears the whole client down.
func (s *wsSession) readPump() {
	defer func() {
		s.client.Close()
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error reading message: %v", err)
			}
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			log.Printf("Error decoding command: %v", err)
			continue
		}
		s.dispatch(cmd)
	}
}

func (s *wsSession) dispatch(cmd wsCommand) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch cmd.Type {
	case "search":
		mode := cmd.Mode
		if !mode.Valid() {
			mode = models.ModeText
		}
		err = s.client.StartSearch(mode)
	case "cancel":
		s.client.CancelSearch()
	case "message":
		err = s.client.SendMessage(ctx, cmd.Body)
	case "typing":
		err = s.client.SetTyping(ctx, cmd.Typing)
	case "end":
		err = s.client.EndSession(ctx)
	case "swap":
		err = s.client.SwapPartner(ctx)
	default:
		log.Printf("Unknown command type %q", cmd.Type)
		return
	}

	if err != nil && !errors.Is(err, client.ErrNoActiveSession) {
		s.sendError(err)
	}
}

// writePump forwards facade events to the socket and keeps the connection
// alive with pings.
func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.client.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case ev := <-s.client.Events():
			if err := s.write(toWire(ev)); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *wsSession) write(ev wsEvent) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	raw, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error encoding event: %v", err)
		return nil
	}
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

func (s *wsSession) sendError(err error) {
	if werr := s.write(wsEvent{Type: "error", Error: err.Error()}); werr != nil {
		log.Printf("Error sending error frame: %v", werr)
	}
}

func toWire(ev client.Event) wsEvent {
	out := wsEvent{
		Type:      string(ev.Type),
		SessionID: ev.SessionID,
		Partner:   ev.Partner,
		Role:      ev.Role,
		Mode:      ev.Mode,
		Message:   ev.Message,
		Typing:    ev.Typing,
		Track:     ev.Track,
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	return out
}
