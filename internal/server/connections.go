package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fourkind-server/internal/fourkind"
)

const (
	writeTimeout = 5 * time.Second
	sendQueue    = 16
)

type PlayerConnection struct {
	ID       string
	RoomCode string
	Player   fourkind.Player
	conn     *websocket.Conn

	send chan outbound
	done chan struct{}
}

// outbound is one queued frame. closeAfter ends the socket once the frame
// has been written.
type outbound struct {
	data       []byte
	closeAfter bool
}

// Hub tracks websocket connections per room and pushes each one its own
// view of the room whenever the room changes.
type Hub struct {
	games   *GameManager
	health  *ConnectionHealth
	limiter *RateLimiter
	log     logrus.FieldLogger

	connections map[string]*PlayerConnection            // connectionID → connection
	rooms       map[string]map[string]*PlayerConnection // roomCode → connectionID → connection
	mu          sync.RWMutex
}

func NewHub(games *GameManager, limiter *RateLimiter, log logrus.FieldLogger) *Hub {
	return &Hub{
		games:       games,
		health:      NewConnectionHealth(),
		limiter:     limiter,
		log:         log,
		connections: make(map[string]*PlayerConnection),
		rooms:       make(map[string]map[string]*PlayerConnection),
	}
}

func (h *Hub) AddConnection(pc *PlayerConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[pc.ID] = pc
	if h.rooms[pc.RoomCode] == nil {
		h.rooms[pc.RoomCode] = make(map[string]*PlayerConnection)
	}
	h.rooms[pc.RoomCode][pc.ID] = pc
}

func (h *Hub) RemoveConnection(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pc, ok := h.connections[id]
	if !ok {
		return
	}
	delete(h.connections, id)
	if room := h.rooms[pc.RoomCode]; room != nil {
		delete(room, id)
		if len(room) == 0 {
			delete(h.rooms, pc.RoomCode)
		}
	}
}

func (h *Hub) RoomConnections(code string) []*PlayerConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*PlayerConnection, 0, len(h.rooms[code]))
	for _, pc := range h.rooms[code] {
		out = append(out, pc)
	}
	return out
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Run delivers room events until the channel closes. Delivery only queues
// frames, so a slow socket never holds up other rooms.
func (h *Hub) Run(ctx context.Context, events <-chan RoomEvent) {
	for ev := range events {
		h.deliver(ctx, ev)
	}
}

func (h *Hub) deliver(ctx context.Context, ev RoomEvent) {
	conns := h.RoomConnections(ev.RoomCode)
	if len(conns) == 0 {
		return
	}

	room, err := h.games.GetGame(ctx, ev.RoomCode)
	if errors.Is(err, ErrRoomNotFound) || ev.Kind == EventDeleted {
		for _, pc := range conns {
			h.queue(pc, ServerMessage{Type: MessageRoomGone, Payload: struct{}{}}, true)
		}
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("room", ev.RoomCode).Error("Failed to load room for broadcast")
		return
	}

	for _, pc := range conns {
		h.sendMessage(pc, ServerMessage{Type: MessageRoomState, Payload: NewRoomState(room, pc.Player.ID)})
	}
}

// Serve owns one websocket until the client goes away. The caller has
// already authenticated player and checked the room exists.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, room *Room, player fourkind.Player) {
	pc := &PlayerConnection{
		ID:       uuid.NewString(),
		RoomCode: room.Code,
		Player:   player,
		conn:     conn,
		send:     make(chan outbound, sendQueue),
		done:     make(chan struct{}),
	}
	entry := h.log.WithFields(logrus.Fields{"connection": pc.ID, "room": room.Code, "player": player.ID})

	h.AddConnection(pc)
	h.health.UpdateActivity(pc.ID)
	entry.Info("Websocket connected")
	go h.writeLoop(ctx, pc, entry)
	defer func() {
		close(pc.done)
		h.RemoveConnection(pc.ID)
		h.health.RemoveConnection(pc.ID)
		entry.Info("Websocket closed")
	}()

	h.sendMessage(pc, ServerMessage{Type: MessageRoomState, Payload: NewRoomState(room, player.ID)})

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			entry.WithError(err).Debug("Websocket read ended")
			return
		}
		h.health.UpdateActivity(pc.ID)

		if msgType != websocket.MessageText {
			continue
		}
		if !h.limiter.Allow(player.ID) {
			h.sendError(pc, ErrRateLimited)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(pc, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
			continue
		}
		if err := ValidateMessageType(msg.Type); err != nil {
			h.sendError(pc, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
			continue
		}

		switch msg.Type {
		case MessagePing:
			h.sendMessage(pc, ServerMessage{Type: MessagePong, Payload: struct{}{}})

		case MessagePassCard:
			var req PassCardRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				h.sendError(pc, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
				continue
			}
			card, err := req.card()
			if err != nil {
				h.sendError(pc, err)
				continue
			}
			// The new state reaches this socket through the notifier.
			if _, err := h.games.PassCard(ctx, pc.RoomCode, player.ID, card, req.Version); err != nil {
				h.sendError(pc, err)
			}
		}
	}
}

// CloseInactive closes sockets that sent nothing for longer than timeout.
func (h *Hub) CloseInactive(timeout time.Duration) int {
	closed := 0
	for _, id := range h.health.InactiveConnections(timeout) {
		h.mu.RLock()
		pc, ok := h.connections[id]
		h.mu.RUnlock()
		if !ok {
			h.health.RemoveConnection(id)
			continue
		}
		pc.conn.Close(websocket.StatusPolicyViolation, "inactive")
		closed++
	}
	return closed
}

func (h *Hub) CloseAll(reason string) {
	h.mu.RLock()
	conns := make([]*PlayerConnection, 0, len(h.connections))
	for _, pc := range h.connections {
		conns = append(conns, pc)
	}
	h.mu.RUnlock()

	for _, pc := range conns {
		pc.conn.Close(websocket.StatusGoingAway, reason)
	}
}

func (h *Hub) sendError(pc *PlayerConnection, err error) {
	_, body := errorResponse(err)
	h.sendMessage(pc, ServerMessage{Type: MessageError, Payload: body})
}

func (h *Hub) sendMessage(pc *PlayerConnection, msg ServerMessage) {
	h.queue(pc, msg, false)
}

// queue hands msg to the connection's writer. A socket whose queue is full
// is dropped; the client reconnects and receives the current state.
func (h *Hub) queue(pc *PlayerConnection, msg ServerMessage, closeAfter bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).WithField("type", msg.Type).Error("Failed to marshal websocket message")
		return
	}

	select {
	case pc.send <- outbound{data: data, closeAfter: closeAfter}:
	case <-pc.done:
	default:
		h.log.WithFields(logrus.Fields{"connection": pc.ID, "room": pc.RoomCode}).Warn("Websocket is too slow, closing it")
		pc.conn.CloseNow()
	}
}

// writeLoop is the only writer of pc.conn.
func (h *Hub) writeLoop(ctx context.Context, pc *PlayerConnection, entry logrus.FieldLogger) {
	for {
		select {
		case <-pc.done:
			return
		case <-ctx.Done():
			return
		case out := <-pc.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := pc.conn.Write(writeCtx, websocket.MessageText, out.data)
			cancel()
			if err != nil {
				entry.WithError(err).Debug("Websocket write failed")
				pc.conn.CloseNow()
				return
			}
			if out.closeAfter {
				pc.conn.Close(websocket.StatusNormalClosure, "room closed")
				return
			}
		}
	}
}
