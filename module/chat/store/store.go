package store

import (
	"context"

	"chatparty/module/chat/model"
)

// One store interface, one conforming implementation chosen at process
// start. The gateway only ever sees these contracts.

type ConversationStore interface {
	CreateGroup(ctx context.Context, name, description, creatorID string) (*model.Conversation, error)
	CreateOrGetDirectMessage(ctx context.Context, userA, userB string) (*model.Conversation, error)
	Get(ctx context.Context, conversationID string) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Conversation, error)
	AddMember(ctx context.Context, conversationID, userID string) error
	RemoveMember(ctx context.Context, conversationID, userID string) error
	DeleteGroup(ctx context.Context, conversationID, requesterID string) error
	DeleteDirectMessage(ctx context.Context, conversationID, requesterID string) error
}

type MessageStore interface {
	Append(ctx context.Context, conversationID, authorID, body string, attachment *model.Attachment) (*model.Message, error)
	ListForConversation(ctx context.Context, conversationID, requesterID string) ([]*model.Message, error)
	Edit(ctx context.Context, messageID, requesterID, newBody string) (*model.Message, error)
	SoftDelete(ctx context.Context, messageID, requesterID string) (*model.Message, error)
}
