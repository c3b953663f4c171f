// Package gateway exposes task progress over socket.io. Clients join
// per-session rooms and receive every note-task event for that
// session; Redis pub/sub fans events out across server instances.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/studycompanion/core/internal/modules/notetask"
	pkgredis "github.com/studycompanion/core/internal/pkg/redis"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const (
	namespaceNotes = "/notes"
	redisChanNotes = "sc:gateway:notes"

	eventNoteTaskProgress = "note_task_progress"
	messageJoin           = "join"
	messageLeave          = "leave"
)

// SessionRoom names the room clients join to follow a session's tasks.
func SessionRoom(sessionID string) string {
	return "session:" + sessionID
}

// Message is the envelope used by hub broadcasts and Redis fan-out.
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	Room    string      `json:"room,omitempty"`
	Origin  string      `json:"origin,omitempty"`
}

type gatewayPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type clientMeta struct {
	sid  string
	room string
}

// Hub manages the socket.io namespace and cluster fan-out.
type Hub struct {
	mu sync.RWMutex

	// sids connected to the namespace, and the session rooms each has joined.
	sids     map[string]struct{}
	sidRooms map[string]map[string]struct{}

	broadcast  chan Message
	register   chan clientMeta
	unregister chan clientMeta

	rc             *pkgredis.Client
	logger         *zap.Logger
	sio            *socketio.Server
	tokenValidator func(string) bool
	instanceID     string
}

func NewHub(rc *pkgredis.Client, logger *zap.Logger, tokenValidator func(string) bool) *Hub {
	sio := socketio.NewServer(nil, nil)
	h := &Hub{
		sids:           make(map[string]struct{}),
		sidRooms:       make(map[string]map[string]struct{}),
		broadcast:      make(chan Message, 256),
		register:       make(chan clientMeta, 256),
		unregister:     make(chan clientMeta, 256),
		rc:             rc,
		logger:         logger,
		sio:            sio,
		tokenValidator: tokenValidator,
		instanceID:     uuid.New().String(),
	}
	h.registerNamespace()
	return h
}

// NotifyTask implements notetask.Notifier: every task event is pushed
// to the session's room.
func (h *Hub) NotifyTask(ev notetask.Event) {
	h.Broadcast(eventNoteTaskProgress, ev, SessionRoom(ev.SessionID))
}

// Run starts the hub loop and Redis subscriber.
func (h *Hub) Run(ctx context.Context) {
	if h.rc != nil {
		go h.subscribeRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.sio.Close(nil)
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)

		case msg := <-h.broadcast:
			h.deliver(msg)

			if h.rc != nil && msg.Origin == "" {
				msg.Origin = h.instanceID
				data, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				if err := h.rc.Publish(ctx, redisChanNotes, string(data)); err != nil && h.logger != nil {
					h.logger.Warn("gateway publish failed", zap.Error(err))
				}
			}
		}
	}
}

func (h *Hub) registerClient(c clientMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sids[c.sid] = struct{}{}
	if c.room != "" {
		rooms, ok := h.sidRooms[c.sid]
		if !ok {
			rooms = make(map[string]struct{})
			h.sidRooms[c.sid] = rooms
		}
		rooms[c.room] = struct{}{}
	}
}

func (h *Hub) unregisterClient(c clientMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.room != "" {
		if rooms, ok := h.sidRooms[c.sid]; ok {
			delete(rooms, c.room)
			if len(rooms) == 0 {
				delete(h.sidRooms, c.sid)
			}
		}
		return
	}

	delete(h.sids, c.sid)
	delete(h.sidRooms, c.sid)
}

func (h *Hub) deliver(msg Message) {
	ns := h.sio.Of(namespaceNotes, nil)
	payload := gatewayPayload{Type: msg.Event, Data: msg.Payload}
	if msg.Room == "" {
		ns.Emit("message", payload)
		return
	}
	ns.To(socketio.Room(msg.Room)).Emit("message", payload)
}

// subscribeRedis listens for broadcasts from other server instances.
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rc.Subscribe(ctx, redisChanNotes)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				continue
			}
			if msg.Origin == h.instanceID {
				continue
			}
			h.deliver(msg)
		}
	}
}

// Broadcast enqueues an event for the given room, or for every client
// when room is empty. Drops the message rather than blocking the caller
// when the hub is backed up.
func (h *Hub) Broadcast(event string, payload interface{}, room string) {
	msg := Message{Event: event, Payload: payload, Room: room}
	select {
	case h.broadcast <- msg:
	default:
		if h.logger != nil {
			h.logger.Warn("gateway broadcast queue full, dropping message", zap.String("event", event))
		}
	}
}

// ClientCount returns connected clients; with a room, members of it.
func (h *Hub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room == "" {
		return len(h.sids)
	}
	n := 0
	for _, rooms := range h.sidRooms {
		if _, ok := rooms[room]; ok {
			n++
		}
	}
	return n
}

// RoomCount returns how many distinct session rooms have members.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make(map[string]struct{})
	for _, rs := range h.sidRooms {
		for r := range rs {
			rooms[r] = struct{}{}
		}
	}
	return len(rooms)
}

func extractToken(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return token
	}
	if token := firstValueFromMultiMap(handshake.Headers, "authorization"); token != "" {
		return token
	}
	return ""
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	if len(values) == 0 {
		return ""
	}
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		v := strings.TrimSpace(list[0])
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
