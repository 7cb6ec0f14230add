package model

import (
	"strings"
	"time"
)

// ===== 会话 =====

type ConversationKind int32

const (
	KindGroup         ConversationKind = 1
	KindDirectMessage ConversationKind = 2
)

const ConversationCollection = "conversation"

// Conversation is either a group or a direct-message pair. DM pairs are
// unique per unordered user pair, enforced by a unique index on dm_key.
type Conversation struct {
	ID          string           `bson:"_id" json:"id"`
	Kind        ConversationKind `bson:"kind" json:"kind"`
	Name        string           `bson:"name,omitempty" json:"name,omitempty"`               // group only
	Description string           `bson:"description,omitempty" json:"description,omitempty"` // group only
	CreatedBy   string           `bson:"created_by,omitempty" json:"createdBy,omitempty"`    // group owner, exclusive delete rights
	Members     []string         `bson:"members" json:"members"`
	DMKey       string           `bson:"dm_key,omitempty" json:"-"`

	LastMessagePreview string    `bson:"last_message_preview,omitempty" json:"lastMessagePreview,omitempty"`
	LastMessageAt      time.Time `bson:"last_message_at,omitempty" json:"lastMessageAt,omitempty"`
	CreatedAt          time.Time `bson:"created_at" json:"createdAt"`
}

func (c *Conversation) IsGroup() bool { return c.Kind == KindGroup }

func (c *Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// DMKeyFor builds the canonical key for an unordered user pair:
// min(u1,u2) + ":" + max(u1,u2). Both argument orders yield the same key.
func DMKeyFor(userA, userB string) string {
	if strings.Compare(userA, userB) > 0 {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}
