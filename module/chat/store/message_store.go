package store

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatparty/module/chat/model"
	"chatparty/module/chat/seq"
	"chatparty/tools/errs"
	"chatparty/tools/ids"
)

type MongoMessageStore struct {
	coll     *mongo.Collection
	convColl *mongo.Collection
	convs    ConversationStore
	seq      *seq.Allocator
}

func NewMongoMessageStore(db *mongo.Database, convs ConversationStore, alloc *seq.Allocator) *MongoMessageStore {
	return &MongoMessageStore{
		coll:     db.Collection(model.MessageCollection),
		convColl: db.Collection(model.ConversationCollection),
		convs:    convs,
		seq:      alloc,
	}
}

// Append persists a message and bumps the conversation summary. The seq
// allocator is the serialization point: concurrent appends into the same
// conversation cannot collide on an order key.
func (s *MongoMessageStore) Append(ctx context.Context, conversationID, authorID, body string, attachment *model.Attachment) (*model.Message, error) {
	if body == "" && attachment == nil {
		return nil, errs.ErrValidation.WrapMsg("message needs a body or an attachment", "conversation_id", conversationID)
	}
	if authorID == "" {
		return nil, errs.ErrValidation.WrapMsg("author id is empty")
	}

	next, err := s.seq.Next(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:             ids.GenerateString(),
		ConversationID: conversationID,
		AuthorID:       authorID,
		Body:           body,
		Attachment:     attachment,
		Seq:            next,
		CreatedAt:      time.Now(),
	}
	if _, err := s.coll.InsertOne(ctx, msg); err != nil {
		return nil, errs.WrapMsg(err, "insert message", "conversation_id", conversationID)
	}

	// denormalized listing summary; losing a race here only means the
	// slightly older preview wins for an instant
	_, err = s.convColl.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{
			"last_message_preview": msg.Preview(),
			"last_message_at":      msg.CreatedAt,
		}})
	if err != nil {
		return nil, errs.WrapMsg(err, "update conversation summary", "conversation_id", conversationID)
	}
	return msg, nil
}

// ListForConversation returns the full history in seq order, tombstoned
// messages included so clients can reconcile positions.
func (s *MongoMessageStore) ListForConversation(ctx context.Context, conversationID, requesterID string) ([]*model.Message, error) {
	conv, err := s.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(requesterID) {
		return nil, errs.ErrForbidden.WrapMsg("not a member of this conversation", "conversation_id", conversationID, "requester_id", requesterID)
	}

	cur, err := s.coll.Find(ctx,
		bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, errs.WrapMsg(err, "list messages", "conversation_id", conversationID)
	}
	defer cur.Close(ctx)

	var out []*model.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode messages", "conversation_id", conversationID)
	}
	return out, nil
}

func (s *MongoMessageStore) get(ctx context.Context, messageID string) (*model.Message, error) {
	var msg model.Message
	err := s.coll.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WrapMsg("message not found", "message_id", messageID)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "get message", "message_id", messageID)
	}
	return &msg, nil
}

// Edit rewrites the body of a live message. The update filters on
// is_deleted:false so an edit racing a delete loses cleanly with a
// ConflictError instead of resurrecting the message.
func (s *MongoMessageStore) Edit(ctx context.Context, messageID, requesterID, newBody string) (*model.Message, error) {
	newBody = strings.TrimSpace(newBody)
	if newBody == "" {
		return nil, errs.ErrValidation.WrapMsg("new body is empty", "message_id", messageID)
	}

	msg, err := s.get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != requesterID {
		return nil, errs.ErrForbidden.WrapMsg("only the author may edit", "message_id", messageID, "requester_id", requesterID)
	}
	if msg.IsDeleted {
		return nil, errs.ErrConflict.WrapMsg("message is deleted", "message_id", messageID)
	}

	now := time.Now()
	after := options.After
	res := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": messageID, "is_deleted": false},
		bson.M{"$set": bson.M{
			"body":      newBody,
			"is_edited": true,
			"edited_at": now,
		}},
		&options.FindOneAndUpdateOptions{ReturnDocument: &after},
	)
	var updated model.Message
	if err := res.Decode(&updated); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrConflict.WrapMsg("message was deleted concurrently", "message_id", messageID)
		}
		return nil, errs.WrapMsg(err, "edit message", "message_id", messageID)
	}
	return &updated, nil
}

// SoftDelete tombstones a live message. A second delete is an error, not
// a no-op; the same is_deleted:false compare-and-set settles edit/delete
// races.
func (s *MongoMessageStore) SoftDelete(ctx context.Context, messageID, requesterID string) (*model.Message, error) {
	msg, err := s.get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != requesterID {
		return nil, errs.ErrForbidden.WrapMsg("only the author may delete", "message_id", messageID, "requester_id", requesterID)
	}
	if msg.IsDeleted {
		return nil, errs.ErrConflict.WrapMsg("message already deleted", "message_id", messageID)
	}

	now := time.Now()
	after := options.After
	res := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": messageID, "is_deleted": false},
		bson.M{
			"$set": bson.M{
				"body":       model.Tombstone,
				"is_deleted": true,
				"deleted_at": now,
			},
			// the attachment goes with the content
			"$unset": bson.M{"attachment": ""},
		},
		&options.FindOneAndUpdateOptions{ReturnDocument: &after},
	)
	var updated model.Message
	if err := res.Decode(&updated); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrConflict.WrapMsg("message already deleted", "message_id", messageID)
		}
		return nil, errs.WrapMsg(err, "soft delete message", "message_id", messageID)
	}
	return &updated, nil
}
