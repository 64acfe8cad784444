package messages

import (
	"time"

	"github.com/google/uuid"
)

// Attachment kinds mirror what the upload collaborator reports.
const (
	KindText  = "text"
	KindImage = "image"
	KindVideo = "video"
	KindAudio = "audio"
	KindFile  = "file"
)

type Attachment struct {
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	FileName string `json:"fileName,omitempty"`
}

// Reaction is a single user's current reaction. Reactions are keyed by user
// id, so a user can never hold more than one emoji on a message.
type Reaction struct {
	UserName string `json:"userName"`
	Emoji    string `json:"emoji"`
}

type Message struct {
	ID     uuid.UUID `json:"id"`
	Room   string    `json:"room"`
	Author string    `json:"author"`
	// AuthorID is nullable: legacy messages predate identity capture.
	AuthorID    *uuid.UUID          `json:"authorId,omitempty"`
	Role        string              `json:"role"`
	Body        string              `json:"body,omitempty"`
	Attachment  *Attachment         `json:"attachment,omitempty"`
	DisplayTime string              `json:"displayTime,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	ExpiresAt   *time.Time          `json:"expiresAt,omitempty"`
	HiddenBy    []uuid.UUID         `json:"-"`
	Reactions   map[string]Reaction `json:"reactions"`
}

// Expired reports whether the message has passed its disappearing deadline.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

func (m *Message) HiddenFor(viewer uuid.UUID) bool {
	for _, id := range m.HiddenBy {
		if id == viewer {
			return true
		}
	}
	return false
}
