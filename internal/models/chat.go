package models

import "time"

// Conversation is a two-party chat thread. At most one conversation exists
// per unordered participant pair; creation is guarded by an existence check.
type Conversation struct {
	ID             string    `json:"id"`
	ParticipantOne string    `json:"participant_one_id"`
	ParticipantTwo string    `json:"participant_two_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// Has reports whether userID participates in the conversation.
func (c *Conversation) Has(userID string) bool {
	return c.ParticipantOne == userID || c.ParticipantTwo == userID
}

// Peer returns the other participant's id, or "" when userID is not a
// participant.
func (c *Conversation) Peer(userID string) string {
	switch userID {
	case c.ParticipantOne:
		return c.ParticipantTwo
	case c.ParticipantTwo:
		return c.ParticipantOne
	}
	return ""
}

// MessageKind is the payload kind of a chat message.
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageImage    MessageKind = "image"
	MessageVideo    MessageKind = "video"
	MessageDocument MessageKind = "document"
	MessageAudio    MessageKind = "audio"
)

// ValidMessageKind reports whether k is one of the supported kinds.
func ValidMessageKind(k MessageKind) bool {
	switch k {
	case MessageText, MessageImage, MessageVideo, MessageDocument, MessageAudio:
		return true
	}
	return false
}

// Message is a chat message. When an attachment is present its upload must
// complete before the message row is written.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	Kind           MessageKind `json:"kind"`
	AttachmentURL  string      `json:"attachment_url,omitempty"`
	AttachmentName string      `json:"attachment_name,omitempty"`
	Read           bool        `json:"read"`
	CreatedAt      time.Time   `json:"created_at"`
}
