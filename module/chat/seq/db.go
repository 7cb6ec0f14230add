package seq

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatparty/tools/errs"
)

const CountersCollection = "seq_counters"

// MongoDAO backs segment refills with an atomic $inc on a per-conversation
// counter document. The findAndModify is the durable serialization point:
// two concurrent refills get disjoint segments.
type MongoDAO struct {
	coll *mongo.Collection
}

func NewMongoDAO(db *mongo.Database) *MongoDAO {
	return &MongoDAO{coll: db.Collection(CountersCollection)}
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

func (d *MongoDAO) AllocSegment(ctx context.Context, conversationID string, block int64) (int64, int64, error) {
	if block <= 0 {
		block = 256
	}
	after := options.After
	res := d.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$inc": bson.M{"value": block}},
		&options.FindOneAndUpdateOptions{
			Upsert:         boolPtr(true),
			ReturnDocument: &after,
		},
	)
	var doc counterDoc
	if err := res.Decode(&doc); err != nil {
		return 0, 0, errs.WrapMsg(err, "alloc seq segment", "conversation_id", conversationID)
	}
	end := doc.Value
	start := end - block + 1
	return start, end, nil
}

func boolPtr(b bool) *bool { return &b }
