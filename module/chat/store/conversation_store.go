package store

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatparty/module/chat/model"
	"chatparty/tools/errs"
	"chatparty/tools/ids"
)

type MongoConversationStore struct {
	coll    *mongo.Collection
	msgColl *mongo.Collection // cascade deletes reach into messages
}

func NewMongoConversationStore(db *mongo.Database) *MongoConversationStore {
	return &MongoConversationStore{
		coll:    db.Collection(model.ConversationCollection),
		msgColl: db.Collection(model.MessageCollection),
	}
}

// EnsureIndexes creates the dm_key uniqueness index and the member
// listing index. Call once at startup.
func (s *MongoConversationStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "dm_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"dm_key": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "members", Value: 1}, {Key: "kind", Value: 1}}},
	})
	if err != nil {
		return errs.WrapMsg(err, "ensure conversation indexes")
	}
	_, err = s.msgColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "seq", Value: 1}},
	})
	return errs.WrapMsg(err, "ensure message indexes")
}

func (s *MongoConversationStore) CreateGroup(ctx context.Context, name, description, creatorID string) (*model.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.ErrValidation.WrapMsg("group name is empty")
	}
	if creatorID == "" {
		return nil, errs.ErrValidation.WrapMsg("creator id is empty")
	}

	conv := &model.Conversation{
		ID:          ids.GenerateString(),
		Kind:        model.KindGroup,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   creatorID,
		Members:     []string{creatorID},
		CreatedAt:   time.Now(),
	}
	if _, err := s.coll.InsertOne(ctx, conv); err != nil {
		return nil, errs.WrapMsg(err, "insert group", "name", name)
	}
	return conv, nil
}

func (s *MongoConversationStore) CreateOrGetDirectMessage(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, errs.ErrValidation.WrapMsg("user id is empty")
	}
	if userA == userB {
		return nil, errs.ErrValidation.WrapMsg("cannot open a direct message with yourself", "user_id", userA)
	}

	key := model.DMKeyFor(userA, userB)
	after := options.After
	res := s.coll.FindOneAndUpdate(ctx,
		bson.M{"dm_key": key},
		bson.M{"$setOnInsert": bson.M{
			"_id":        ids.GenerateString(),
			"kind":       model.KindDirectMessage,
			"members":    []string{userA, userB},
			"dm_key":     key,
			"created_at": time.Now(),
		}},
		&options.FindOneAndUpdateOptions{
			Upsert:         boolPtr(true),
			ReturnDocument: &after,
		},
	)
	var conv model.Conversation
	if err := res.Decode(&conv); err != nil {
		return nil, errs.WrapMsg(err, "create-or-get dm", "dm_key", key)
	}
	return &conv, nil
}

func (s *MongoConversationStore) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.coll.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conv)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WrapMsg("conversation not found", "conversation_id", conversationID)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "get conversation", "conversation_id", conversationID)
	}
	return &conv, nil
}

// ListForUser returns groups first (creation time descending), then
// direct messages (last message time descending).
func (s *MongoConversationStore) ListForUser(ctx context.Context, userID string) ([]*model.Conversation, error) {
	groups, err := s.find(ctx,
		bson.M{"members": userID, "kind": model.KindGroup},
		bson.D{{Key: "created_at", Value: -1}})
	if err != nil {
		return nil, err
	}
	dms, err := s.find(ctx,
		bson.M{"members": userID, "kind": model.KindDirectMessage},
		bson.D{{Key: "last_message_at", Value: -1}})
	if err != nil {
		return nil, err
	}
	return append(groups, dms...), nil
}

func (s *MongoConversationStore) find(ctx context.Context, filter bson.M, sort bson.D) ([]*model.Conversation, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, errs.WrapMsg(err, "list conversations")
	}
	defer cur.Close(ctx)
	var out []*model.Conversation
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode conversations")
	}
	return out, nil
}

func (s *MongoConversationStore) AddMember(ctx context.Context, conversationID, userID string) error {
	if userID == "" {
		return errs.ErrValidation.WrapMsg("user id is empty")
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": conversationID, "kind": model.KindGroup},
		bson.M{"$addToSet": bson.M{"members": userID}})
	if err != nil {
		return errs.WrapMsg(err, "add member", "conversation_id", conversationID)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("group not found", "conversation_id", conversationID)
	}
	return nil
}

// RemoveMember pulls the user out of the member set. Removing the last
// member leaves an empty group behind; only the creator can destroy it.
func (s *MongoConversationStore) RemoveMember(ctx context.Context, conversationID, userID string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": conversationID, "members": userID},
		bson.M{"$pull": bson.M{"members": userID}})
	if err != nil {
		return errs.WrapMsg(err, "remove member", "conversation_id", conversationID)
	}
	if res.MatchedCount == 0 {
		// distinguish unknown conversation from non-membership
		if _, gerr := s.Get(ctx, conversationID); gerr != nil {
			return gerr
		}
		return errs.ErrNotMember.WrapMsg("user is not a member", "conversation_id", conversationID, "user_id", userID)
	}
	return nil
}

func (s *MongoConversationStore) DeleteGroup(ctx context.Context, conversationID, requesterID string) error {
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup() {
		return errs.ErrValidation.WrapMsg("not a group", "conversation_id", conversationID)
	}
	if conv.CreatedBy != requesterID {
		return errs.ErrForbidden.WrapMsg("only the creator may delete a group", "conversation_id", conversationID, "requester_id", requesterID)
	}
	return s.cascadeDelete(ctx, conversationID)
}

func (s *MongoConversationStore) DeleteDirectMessage(ctx context.Context, conversationID, requesterID string) error {
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind != model.KindDirectMessage {
		return errs.ErrValidation.WrapMsg("not a direct message", "conversation_id", conversationID)
	}
	if !conv.HasMember(requesterID) {
		return errs.ErrForbidden.WrapMsg("not a participant", "conversation_id", conversationID, "requester_id", requesterID)
	}
	return s.cascadeDelete(ctx, conversationID)
}

func (s *MongoConversationStore) cascadeDelete(ctx context.Context, conversationID string) error {
	if _, err := s.msgColl.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
		return errs.WrapMsg(err, "cascade delete messages", "conversation_id", conversationID)
	}
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": conversationID}); err != nil {
		return errs.WrapMsg(err, "delete conversation", "conversation_id", conversationID)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
