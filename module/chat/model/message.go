package model

import (
	"time"
)

const MessageCollection = "message"

// Tombstone replaces the body of a soft-deleted message. The id and seq
// stay in place so clients can reconcile optimistic state.
const Tombstone = "[Message deleted]"

// Attachment is an already-validated file descriptor. Upload, size and
// MIME checks happen in the upload service before it ever reaches here.
type Attachment struct {
	URL          string `bson:"url" json:"url"`
	OriginalName string `bson:"original_name" json:"originalName"`
	MimeType     string `bson:"mime_type" json:"mimeType"`
	SizeBytes    int64  `bson:"size_bytes" json:"sizeBytes"`
	IsImage      bool   `bson:"is_image" json:"isImage"`
}

// Message is append-only except for two in-place mutations: edit and
// soft-delete. Seq is the authoritative per-conversation order key,
// assigned at append time; client timestamps are never trusted for order.
type Message struct {
	ID             string      `bson:"_id" json:"id"`
	ConversationID string      `bson:"conversation_id" json:"conversationId"`
	AuthorID       string      `bson:"author_id" json:"authorId"`
	Body           string      `bson:"body,omitempty" json:"body,omitempty"`
	Attachment     *Attachment `bson:"attachment,omitempty" json:"attachment,omitempty"`

	Seq       int64     `bson:"seq" json:"seq"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`

	IsEdited bool       `bson:"is_edited" json:"isEdited"`
	EditedAt *time.Time `bson:"edited_at,omitempty" json:"editedAt,omitempty"`

	IsDeleted bool       `bson:"is_deleted" json:"isDeleted"`
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"deletedAt,omitempty"`
}

// HasContent reports the body-or-attachment invariant: a message must
// carry a non-empty body or an attachment, never neither.
func (m *Message) HasContent() bool {
	return m.Body != "" || m.Attachment != nil
}

// Preview is the denormalized summary written onto the conversation.
func (m *Message) Preview() string {
	if m.Body != "" {
		return m.Body
	}
	if m.Attachment != nil {
		return m.Attachment.OriginalName
	}
	return ""
}
