package gateway

import (
	"context"

	"chatparty/logger"
	"chatparty/module/chat/model"
	"chatparty/module/chat/store"
	"chatparty/service/chat"
	"chatparty/tools/errs"
)

// Presence is the live-delivery surface the gateway drives. The Router
// in service/chat is the one real implementation; tests substitute a
// recorder.
type Presence interface {
	Subscribe(c *chat.Client, conversationID string)
	Unsubscribe(c *chat.Client, conversationID string)
	OnDisconnect(c *chat.Client)
	Publish(conversationID string, payload []byte)
}

// EventBridge rebroadcasts frames to sibling instances. Optional; nil
// means single-instance deployment.
type EventBridge interface {
	Republish(conversationID string, frame []byte)
}

// Gateway sequences every mutating request the same way: validate,
// persist, then broadcast. A validation failure stops before any store
// write; a store failure stops before any publish. Broadcast is always a
// consequence of confirmed durability, never a substitute for it.
type Gateway struct {
	convs    store.ConversationStore
	msgs     store.MessageStore
	presence Presence
	bridge   EventBridge
}

func New(convs store.ConversationStore, msgs store.MessageStore, presence Presence, bridge EventBridge) *Gateway {
	return &Gateway{convs: convs, msgs: msgs, presence: presence, bridge: bridge}
}

func (g *Gateway) publish(conversationID, event string, payload any) {
	frame, err := chat.BuildFrame(event, payload)
	if err != nil {
		logger.Errorf("[gateway] build frame event=%s err=%v", event, err)
		return
	}
	g.presence.Publish(conversationID, frame)
	if g.bridge != nil {
		g.bridge.Republish(conversationID, frame)
	}
}

// Send appends a message and fans it out to every subscriber, the sender
// included: the client's own optimistic copy reconciles against the
// store-confirmed id and timestamp.
func (g *Gateway) Send(ctx context.Context, conversationID, authorID, body string, attachment *model.Attachment) (*model.Message, error) {
	conv, err := g.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(authorID) {
		return nil, errs.ErrForbidden.WrapMsg("not a member of this conversation", "conversation_id", conversationID, "author_id", authorID)
	}

	msg, err := g.msgs.Append(ctx, conversationID, authorID, body, attachment)
	if err != nil {
		return nil, err
	}
	g.publish(conversationID, chat.EvNewMessage, msg)
	return msg, nil
}

// Edit rewrites a live message; author-only, rejected once deleted.
func (g *Gateway) Edit(ctx context.Context, messageID, requesterID, newBody string) (*model.Message, error) {
	msg, err := g.msgs.Edit(ctx, messageID, requesterID, newBody)
	if err != nil {
		return nil, err
	}
	g.publish(msg.ConversationID, chat.EvMessageEdited, chat.MessageEditedPayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		NewBody:        msg.Body,
		EditedAt:       *msg.EditedAt,
		UserID:         requesterID,
	})
	return msg, nil
}

// Delete tombstones a live message; a repeat delete surfaces a conflict
// to the caller and broadcasts nothing.
func (g *Gateway) Delete(ctx context.Context, messageID, requesterID string) (*model.Message, error) {
	msg, err := g.msgs.SoftDelete(ctx, messageID, requesterID)
	if err != nil {
		return nil, err
	}
	g.publish(msg.ConversationID, chat.EvMessageDeleted, chat.MessageDeletedPayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		UserID:         requesterID,
	})
	return msg, nil
}

// JoinRoom/LeaveRoom are subscription-level: they move the live session
// in and out of the room without touching stored membership. History
// reads enforce membership, so an outsider subscription only ever sees
// fan-out for rooms it could not load.
func (g *Gateway) JoinRoom(sess *chat.Client, conversationID string) {
	g.presence.Subscribe(sess, conversationID)
}

func (g *Gateway) LeaveRoom(sess *chat.Client, conversationID string) {
	g.presence.Unsubscribe(sess, conversationID)
}

// LeaveGroup removes stored membership, drops the leaver's subscription,
// then tells the remaining subscribers. A second leave fails with
// NotMemberError.
func (g *Gateway) LeaveGroup(ctx context.Context, conversationID, requesterID, username string, sess *chat.Client) error {
	conv, err := g.convs.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup() {
		return errs.ErrValidation.WrapMsg("not a group", "conversation_id", conversationID)
	}
	if err := g.convs.RemoveMember(ctx, conversationID, requesterID); err != nil {
		return err
	}
	if sess != nil {
		g.presence.Unsubscribe(sess, conversationID)
	}
	g.publish(conversationID, chat.EvUserLeftGroup, chat.UserLeftGroupPayload{
		ConversationID: conversationID,
		UserID:         requesterID,
		Username:       username,
	})
	return nil
}

// DeleteChat cascades the conversation away, then converges every open
// client on "conversation gone", the requester's own tabs included.
func (g *Gateway) DeleteChat(ctx context.Context, conversationID, requesterID string) error {
	conv, err := g.convs.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.IsGroup() {
		err = g.convs.DeleteGroup(ctx, conversationID, requesterID)
	} else {
		err = g.convs.DeleteDirectMessage(ctx, conversationID, requesterID)
	}
	if err != nil {
		return err
	}
	g.publish(conversationID, chat.EvChatDeleted, chat.ChatDeletedPayload{
		ConversationID: conversationID,
		DeletedBy:      requesterID,
	})
	return nil
}

// Disconnect releases all live-delivery state for a session.
func (g *Gateway) Disconnect(sess *chat.Client) {
	g.presence.OnDisconnect(sess)
}

// ---- read paths; these bypass the presence layer entirely ----

func (g *Gateway) History(ctx context.Context, conversationID, requesterID string) ([]*model.Message, error) {
	return g.msgs.ListForConversation(ctx, conversationID, requesterID)
}

func (g *Gateway) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	return g.convs.ListForUser(ctx, userID)
}

// ---- conversation lifecycle passthroughs ----

func (g *Gateway) CreateGroup(ctx context.Context, name, description, creatorID string) (*model.Conversation, error) {
	return g.convs.CreateGroup(ctx, name, description, creatorID)
}

func (g *Gateway) OpenDirectMessage(ctx context.Context, requesterID, otherID string) (*model.Conversation, error) {
	return g.convs.CreateOrGetDirectMessage(ctx, requesterID, otherID)
}

// AddMember grows a group's member set. The original product never
// broadcast an event for this, so neither do we.
func (g *Gateway) AddMember(ctx context.Context, conversationID, userID string) error {
	return g.convs.AddMember(ctx, conversationID, userID)
}
