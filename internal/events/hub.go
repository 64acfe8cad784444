package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventWriter is the transport-side sink for one session. The gateway wraps
// a websocket connection in it; tests substitute an in-memory recorder.
type EventWriter interface {
	WriteEvent(ev Event) error
	Ping() error
}

type Session struct {
	ID       string
	UserID   string
	Room     string
	SendChan chan Event
	conn     EventWriter
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
}

// Hub is the room session registry. It maps live sessions to the room they
// joined and fans broadcasts out to per-session buffered channels, so a slow
// receiver never blocks the coordinator.
type Hub struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	rooms      map[string]map[string]bool
	sendBuffer int
	logger     *zap.Logger
	shutdown   bool

	// OnBroadcast, when set, observes the fan-out of each broadcast.
	OnBroadcast func(delivered int)
}

func NewHub(logger *zap.Logger, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		sessions:   make(map[string]*Session),
		rooms:      make(map[string]map[string]bool),
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

func (h *Hub) AddSession(sessionID, userID string, conn EventWriter) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.shutdown {
		h.logger.Warn("rejecting new session during shutdown", zap.String("session_id", sessionID))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &Session{
		ID:       sessionID,
		UserID:   userID,
		SendChan: make(chan Event, h.sendBuffer),
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
	}

	h.sessions[sessionID] = session
	h.logger.Info("session connected",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
	)

	go session.writePump(h.logger)

	return session
}

// Join subscribes the session to a room. A session joins at most one room;
// joining again moves it.
func (h *Hub) Join(sessionID, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	session, ok := h.sessions[sessionID]
	if !ok {
		h.logger.Warn("attempted to join with unknown session", zap.String("session_id", sessionID))
		return false
	}

	session.mu.Lock()
	if session.Room != "" && session.Room != room {
		if members, exists := h.rooms[session.Room]; exists {
			delete(members, sessionID)
			if len(members) == 0 {
				delete(h.rooms, session.Room)
			}
		}
	}
	session.Room = room
	session.mu.Unlock()

	if _, exists := h.rooms[room]; !exists {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][sessionID] = true

	h.logger.Debug("session joined room",
		zap.String("session_id", sessionID),
		zap.String("room", room),
	)

	return true
}

func (h *Hub) RemoveSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	session, ok := h.sessions[sessionID]
	if !ok {
		return
	}

	session.mu.Lock()
	room := session.Room
	session.mu.Unlock()

	if room != "" {
		if members, exists := h.rooms[room]; exists {
			delete(members, sessionID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}

	// SendChan is never closed: a broadcast that raced the removal may still
	// hold the session pointer, and sending on a closed channel would panic
	// the sender's goroutine. The write pump exits via ctx instead and the
	// channel is left for the collector.
	session.cancel()
	delete(h.sessions, sessionID)

	h.logger.Info("session disconnected",
		zap.String("session_id", sessionID),
		zap.String("user_id", session.UserID),
	)
}

// BroadcastToRoom enqueues the event for every session in the room, sender
// included. Enqueueing is synchronous so all sessions observe events in the
// order the coordinator emitted them; delivery itself is fire-and-forget.
func (h *Hub) BroadcastToRoom(room string, ev Event) int {
	h.mu.RLock()
	members := h.rooms[room]
	sessions := make([]*Session, 0, len(members))
	for sessionID := range members {
		if session, ok := h.sessions[sessionID]; ok {
			sessions = append(sessions, session)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, session := range sessions {
		select {
		case session.SendChan <- ev:
			delivered++
		default:
			h.logger.Warn("session channel full, dropping event",
				zap.String("session_id", session.ID),
				zap.String("event_type", ev.Type),
			)
		}
	}

	h.logger.Debug("broadcast completed",
		zap.String("room", room),
		zap.String("event_type", ev.Type),
		zap.Int("delivered", delivered),
	)

	if h.OnBroadcast != nil {
		h.OnBroadcast(delivered)
	}

	return delivered
}

// SendToSession delivers an event to a single session only.
func (h *Hub) SendToSession(sessionID string, ev Event) bool {
	h.mu.RLock()
	session, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case session.SendChan <- ev:
		return true
	default:
		h.logger.Warn("session channel full, dropping event",
			zap.String("session_id", sessionID),
			zap.String("event_type", ev.Type),
		)
		return false
	}
}

func (h *Hub) RoomSessionCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (s *Session) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.SendChan:
			if err := s.conn.WriteEvent(ev); err != nil {
				logger.Debug("failed to write event",
					zap.String("session_id", s.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			if err := s.conn.Ping(); err != nil {
				logger.Debug("ping failed", zap.String("session_id", s.ID))
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}

func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.shutdown = true

	sessions := make([]*Session, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	h.sessions = make(map[string]*Session)
	h.rooms = make(map[string]map[string]bool)
	h.mu.Unlock()

	h.logger.Info("shutting down event hub", zap.Int("sessions", len(sessions)))

	for _, session := range sessions {
		session.cancel()
	}

	return nil
}
