package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/societynet/societychat/internal/common/errors"
	"github.com/societynet/societychat/internal/events"
	"github.com/societynet/societychat/internal/identity"
	"github.com/societynet/societychat/internal/messages"
	"github.com/societynet/societychat/internal/moderation"
	"github.com/societynet/societychat/internal/users"
)

// Delete scopes.
const (
	ScopeMe       = "me"
	ScopeEveryone = "everyone"
)

type MessageStore interface {
	Insert(ctx context.Context, msg *messages.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*messages.Message, error)
	ListVisible(ctx context.Context, room string, viewer uuid.UUID) ([]*messages.Message, error)
	ToggleReaction(ctx context.Context, id, userID uuid.UUID, userName, emoji string) (*messages.Message, error)
	HideFor(ctx context.Context, id, viewer uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
	GetDisplay(ctx context.Context, id uuid.UUID) (*users.User, error)
	Create(ctx context.Context, user *users.User) error
	ToggleMuted(ctx context.Context, id uuid.UUID) (bool, string, error)
}

type Broadcaster interface {
	Join(sessionID, room string) bool
	BroadcastToRoom(room string, ev events.Event) int
	SendToSession(sessionID string, ev events.Event) bool
}

type SendLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Service is the chat coordinator: the single authority for state-changing
// chat operations. It checks policy, mutates the store, and decides what gets
// broadcast to the room versus returned privately.
type Service struct {
	store        MessageStore
	users        UserStore
	hub          Broadcaster
	settings     *moderation.State
	limiter      SendLimiter
	deleteWindow time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func NewService(store MessageStore, userStore UserStore, hub Broadcaster, settings *moderation.State, limiter SendLimiter, deleteWindow time.Duration, logger *zap.Logger) *Service {
	return &Service{
		store:        store,
		users:        userStore,
		hub:          hub,
		settings:     settings,
		limiter:      limiter,
		deleteWindow: deleteWindow,
		logger:       logger,
		now:          time.Now,
	}
}

type SendRequest struct {
	Room                string               `json:"room" validate:"required"`
	Body                string               `json:"body"`
	Attachment          *messages.Attachment `json:"attachment"`
	DisplayTime         string               `json:"displayTime"`
	LocalTimeoutSeconds int                  `json:"localTimeoutSeconds" validate:"gte=0"`
}

// Join registers the session under the room and returns the current
// moderation settings to that session only. History is not pushed here;
// clients fetch it over the read path.
func (s *Service) Join(ctx context.Context, sessionID string, ident identity.Identity, room string) error {
	if !s.hub.Join(sessionID, room) {
		return errors.Internal("session not registered", nil)
	}

	// First join provisions the resident's row from the verified identity, so
	// moderation has a record to pin the mute flag to.
	if _, err := s.users.GetDisplay(ctx, ident.UserID); errors.IsNotFound(err) {
		user := &users.User{ID: ident.UserID, Name: ident.Name, Role: ident.Role}
		if err := s.users.Create(ctx, user); err != nil {
			s.logger.Warn("provision user failed",
				zap.String("user_id", ident.UserID.String()),
				zap.Error(err),
			)
		}
	}

	s.hub.SendToSession(sessionID, events.Event{
		Type:    events.SettingsChanged,
		Payload: s.settings.Snapshot(),
	})

	s.logger.Info("session joined room",
		zap.String("session_id", sessionID),
		zap.String("user_id", ident.UserID.String()),
		zap.String("room", room),
	)
	return nil
}

// Send validates policy, persists the message and broadcasts the stored
// document (server-assigned id and timestamp included) to every session in
// the room, the sender included. If persistence fails nothing is broadcast.
func (s *Service) Send(ctx context.Context, ident identity.Identity, req SendRequest) (*messages.Message, error) {
	if req.Body == "" && req.Attachment == nil {
		return nil, errors.Invalid("message needs a body or an attachment")
	}

	settings := s.settings.Snapshot()
	if settings.AdminsOnly && !ident.IsAdmin() {
		return nil, errors.Locked("room is locked to admins")
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "send:"+ident.UserID.String())
		if err != nil {
			s.logger.Warn("rate limiter unavailable, allowing send", zap.Error(err))
		} else if !allowed {
			return nil, errors.RateLimited("sending too fast")
		}
	}

	// Re-read the user entity on every send so a mute applied mid-session
	// takes effect on the very next message.
	user, err := s.users.GetByID(ctx, ident.UserID)
	if err != nil && !errors.IsNotFound(err) {
		return nil, errors.Internal("mute check failed", err)
	}
	if user != nil && user.Muted {
		return nil, errors.Muted("you are muted")
	}

	now := s.now()
	msg := &messages.Message{
		Room:        req.Room,
		Author:      ident.Name,
		AuthorID:    &ident.UserID,
		Role:        ident.Role,
		Body:        req.Body,
		Attachment:  req.Attachment,
		DisplayTime: req.DisplayTime,
		CreatedAt:   now,
	}

	// The room-wide disappearing timer always wins over the sender's local
	// preference.
	if settings.GlobalDisappearingTime > 0 {
		expires := now.Add(time.Duration(settings.GlobalDisappearingTime) * time.Second)
		msg.ExpiresAt = &expires
	} else if req.LocalTimeoutSeconds > 0 {
		expires := now.Add(time.Duration(req.LocalTimeoutSeconds) * time.Second)
		msg.ExpiresAt = &expires
	}

	if err := s.store.Insert(ctx, msg); err != nil {
		s.logger.Error("persist message failed", zap.Error(err))
		return nil, errors.Internal("message not saved", err)
	}

	s.hub.BroadcastToRoom(msg.Room, events.Event{
		Type:    events.MessageCreated,
		Payload: msg,
	})

	return msg, nil
}

// React toggles the caller's reaction: same emoji clears it, a different one
// replaces it. Unknown message ids are a silent no-op.
func (s *Service) React(ctx context.Context, ident identity.Identity, messageID uuid.UUID, emoji string) error {
	if emoji == "" {
		return errors.Invalid("emoji required")
	}

	msg, err := s.store.ToggleReaction(ctx, messageID, ident.UserID, ident.Name, emoji)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		s.logger.Error("toggle reaction failed", zap.Error(err))
		return errors.Internal("reaction not saved", err)
	}

	s.hub.BroadcastToRoom(msg.Room, events.Event{
		Type:    events.MessageUpdated,
		Payload: msg,
	})

	return nil
}

// Delete handles both scopes. Scope "me" hides the message for the requester
// and confirms privately; other participants are unaffected and unaware.
// Scope "everyone" removes the record and broadcasts the removal, permitted
// for admins at any time and for the author within the recency window.
func (s *Service) Delete(ctx context.Context, sessionID string, ident identity.Identity, messageID uuid.UUID, scope string) error {
	if scope != ScopeMe && scope != ScopeEveryone {
		return errors.Invalid("unknown delete scope")
	}

	msg, err := s.store.GetByID(ctx, messageID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return errors.Internal("load message failed", err)
	}

	if scope == ScopeMe {
		if err := s.store.HideFor(ctx, messageID, ident.UserID); err != nil {
			s.logger.Error("hide message failed", zap.Error(err))
			return errors.Internal("message not hidden", err)
		}

		s.hub.SendToSession(sessionID, events.Event{
			Type:    events.MessageRemoved,
			Payload: events.Removal{ID: messageID.String(), Scope: ScopeMe},
		})
		return nil
	}

	if !ident.IsAdmin() {
		// Legacy messages without a recorded author can only be removed by
		// admins; ownership cannot be claimed.
		if msg.AuthorID == nil || *msg.AuthorID != ident.UserID {
			return errors.Forbidden("not your message")
		}
		if s.now().Sub(msg.CreatedAt) > s.deleteWindow {
			return errors.ExpiredWindow("delete for everyone window has passed")
		}
	}

	if err := s.store.Delete(ctx, messageID); err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		s.logger.Error("delete message failed", zap.Error(err))
		return errors.Internal("message not deleted", err)
	}

	s.hub.BroadcastToRoom(msg.Room, events.Event{
		Type:    events.MessageRemoved,
		Payload: events.Removal{ID: messageID.String(), Scope: ScopeEveryone},
	})

	return nil
}

// UpdateSettings merges a partial settings change. The role comes from the
// verified identity, never from a client-supplied flag.
func (s *Service) UpdateSettings(ctx context.Context, ident identity.Identity, room string, update moderation.Update) error {
	if !ident.IsAdmin() {
		return errors.Forbidden("admin role required")
	}

	prev := s.settings.Snapshot()
	next := s.settings.Apply(update)

	s.hub.BroadcastToRoom(room, events.Event{
		Type:    events.SettingsChanged,
		Payload: next,
	})

	for _, text := range settingsNotices(prev, next) {
		s.hub.BroadcastToRoom(room, events.Event{
			Type:    events.ModerationNotice,
			Payload: events.Notice{Text: text},
		})
	}

	s.logger.Info("moderation settings updated",
		zap.String("by", ident.UserID.String()),
		zap.Bool("admins_only", next.AdminsOnly),
		zap.Int("disappearing_seconds", next.GlobalDisappearingTime),
	)
	return nil
}

func settingsNotices(prev, next moderation.Settings) []string {
	var notices []string
	if prev.AdminsOnly != next.AdminsOnly {
		if next.AdminsOnly {
			notices = append(notices, "Chat locked: only admins can send messages")
		} else {
			notices = append(notices, "Chat unlocked: everyone can send messages")
		}
	}
	if prev.GlobalDisappearingTime != next.GlobalDisappearingTime {
		if next.GlobalDisappearingTime > 0 {
			notices = append(notices, fmt.Sprintf("New messages now disappear after %d seconds", next.GlobalDisappearingTime))
		} else {
			notices = append(notices, "Disappearing messages turned off")
		}
	}
	return notices
}

// ToggleMute flips the target's persisted mute flag and confirms privately to
// the requesting session; the room is not notified.
func (s *Service) ToggleMute(ctx context.Context, sessionID string, ident identity.Identity, targetID uuid.UUID) error {
	if !ident.IsAdmin() {
		return errors.Forbidden("admin role required")
	}

	muted, name, err := s.users.ToggleMuted(ctx, targetID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		s.logger.Error("toggle mute failed", zap.Error(err))
		return errors.Internal("mute not applied", err)
	}

	text := name + " has been unmuted"
	if muted {
		text = name + " has been muted"
	}
	s.hub.SendToSession(sessionID, events.Event{
		Type:    events.ModerationNotice,
		Payload: events.Notice{Text: text},
	})

	s.logger.Info("user mute toggled",
		zap.String("by", ident.UserID.String()),
		zap.String("target", targetID.String()),
		zap.Bool("muted", muted),
	)
	return nil
}

type History struct {
	Messages []*messages.Message `json:"messages"`
	Settings moderation.Settings `json:"settings"`
}

// GetHistory is the request/response read path: the viewer's visible messages
// plus the current moderation settings.
func (s *Service) GetHistory(ctx context.Context, room string, viewer uuid.UUID) (*History, error) {
	msgs, err := s.store.ListVisible(ctx, room, viewer)
	if err != nil {
		return nil, errors.Internal("load history failed", err)
	}
	if msgs == nil {
		msgs = []*messages.Message{}
	}

	return &History{
		Messages: msgs,
		Settings: s.settings.Snapshot(),
	}, nil
}
