package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

// WSHandler upgrades connections and speaks the room protocol: inbound
// command frames, outbound event/snapshot frames.
type WSHandler struct {
	service  *app.RoomService
	upgrader websocket.Upgrader

	// One live socket per (room, identity); a newer connection for the
	// same identity supersedes and closes the previous one.
	mu      sync.Mutex
	current map[connKey]*clientConn
}

type connKey struct {
	roomID   string
	identity string
}

type clientConn struct {
	conn *websocket.Conn
	send chan outboundMessage[any]

	// Closed when the writer goroutine exits; senders select on it so a
	// dead writer with a full buffer can never block the read loop.
	writerDone chan struct{}
}

func (cc *clientConn) trySend(msg outboundMessage[any]) {
	select {
	case cc.send <- msg:
	case <-cc.writerDone:
	}
}

func NewWSHandler(service *app.RoomService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		current: make(map[connKey]*clientConn),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type commandPayload struct {
	QuestionIndex  int    `json:"questionIndex"`
	OptionID       string `json:"optionId"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
	TargetIdentity string `json:"targetIdentity"`
	Reason         string `json:"reason"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type welcomePayload struct {
	Identity string          `json:"identity"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type kickedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ServeWS wires one socket into its room: join (or reconnect), stream
// committed events, accept commands, serve resyncs.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	identity := r.URL.Query().Get("identity")
	displayName := r.URL.Query().Get("name")
	accessCode := r.URL.Query().Get("accessCode")
	if roomID == "" || displayName == "" {
		http.Error(w, "missing roomId or name", http.StatusBadRequest)
		return
	}
	// Anonymous joiners get a server-assigned identity; the welcome
	// frame hands it back so the client can reconnect with it.
	if identity == "" {
		identity = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	cc := &clientConn{
		conn:       conn,
		send:       make(chan outboundMessage[any], 32),
		writerDone: make(chan struct{}),
	}
	key := connKey{roomID: roomID, identity: identity}

	go func() {
		defer close(cc.writerDone)
		for msg := range cc.send {
			if err := cc.conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("room_id", roomID).Str("identity", identity).Msg("ws write error")
				return
			}
		}
		_ = cc.conn.WriteMessage(websocket.CloseMessage, []byte{})
	}()

	ctx := r.Context()
	_, err = h.service.Apply(ctx, roomID, domain.Command{
		Type:        domain.CommandJoin,
		Issuer:      identity,
		DisplayName: displayName,
		AccessCode:  accessCode,
	})
	if err != nil {
		h.sendError(cc, err)
		close(cc.send)
		<-cc.writerDone
		return
	}

	// Take over as the identity's live socket before snapshotting, so a
	// raced older socket can no longer report a disconnect for us.
	if prev := h.takeover(key, cc); prev != nil {
		prev.conn.Close()
	}
	defer func() {
		if h.release(key, cc) {
			h.service.MarkDisconnected(roomID, identity)
		}
	}()

	events, cancel, err := h.service.Subscribe(ctx, roomID)
	if err != nil {
		h.sendError(cc, err)
		close(cc.send)
		<-cc.writerDone
		return
	}
	defer cancel()

	// Snapshot is taken after subscribing: events at or below its seq
	// are duplicates the client skips, so nothing can be missed.
	snap, err := h.service.Resync(ctx, roomID)
	if err != nil {
		h.sendError(cc, err)
		close(cc.send)
		<-cc.writerDone
		return
	}
	cc.trySend(outboundMessage[any]{Type: "welcome", Payload: welcomePayload{Identity: identity, Snapshot: snap}})

	pumpDone := make(chan struct{})
	stopPump := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if h.isKickOf(ev, identity) {
					var p domain.ParticipantKickedPayload
					_ = json.Unmarshal(ev.Payload, &p)
					select {
					case cc.send <- outboundMessage[any]{Type: "kicked", Payload: kickedPayload{Reason: p.Reason}}:
					case <-stopPump:
					}
					cc.conn.Close()
					return
				}
				select {
				case cc.send <- outboundMessage[any]{Type: "event", Payload: ev}:
				case <-stopPump:
					return
				}
			case <-stopPump:
				return
			}
		}
	}()

	h.readLoop(ctx, cc, roomID, identity)

	close(stopPump)
	<-pumpDone
	close(cc.send)
	<-cc.writerDone
}

func (h *WSHandler) readLoop(ctx context.Context, cc *clientConn, roomID, identity string) {
	for {
		var inbound inboundMessage
		if err := cc.conn.ReadJSON(&inbound); err != nil {
			return
		}

		if inbound.Type == "resync" {
			snap, err := h.service.Resync(ctx, roomID)
			if err != nil {
				h.sendError(cc, err)
				continue
			}
			cc.trySend(outboundMessage[any]{Type: "snapshot", Payload: snap})
			continue
		}

		cmdType := domain.CommandType(inbound.Type)
		if !cmdType.Known() || cmdType == domain.CommandJoin {
			h.sendError(cc, errors.New("unsupported message type"))
			continue
		}

		var payload commandPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.sendError(cc, errors.New("invalid command payload"))
				continue
			}
		}

		_, err := h.service.Apply(ctx, roomID, domain.Command{
			Type:           cmdType,
			Issuer:         identity,
			QuestionIndex:  payload.QuestionIndex,
			OptionID:       payload.OptionID,
			ResponseTimeMs: payload.ResponseTimeMs,
			TargetIdentity: payload.TargetIdentity,
			Reason:         payload.Reason,
		})
		if err != nil {
			h.sendError(cc, err)
			continue
		}
		if cmdType == domain.CommandLeave {
			return
		}
	}
}

func (h *WSHandler) isKickOf(ev domain.Event, identity string) bool {
	if ev.Type != domain.EventParticipantKicked {
		return false
	}
	var p domain.ParticipantKickedPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return false
	}
	return p.Identity == identity
}

func (h *WSHandler) sendError(cc *clientConn, err error) {
	select {
	case cc.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{
		Code:    domain.ErrorCode(err),
		Message: err.Error(),
	}}:
	default:
	}
}

// takeover installs cc as the identity's live socket, returning the
// superseded one, if any.
func (h *WSHandler) takeover(key connKey, cc *clientConn) *clientConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.current[key]
	h.current[key] = cc
	return prev
}

// release drops cc if it is still the live socket for key. Reports
// whether it was, i.e. whether this close is a real disconnect rather
// than a superseded socket going away.
func (h *WSHandler) release(key connKey, cc *clientConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current[key] != cc {
		return false
	}
	delete(h.current, key)
	return true
}
