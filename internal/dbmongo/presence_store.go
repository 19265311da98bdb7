package dbmongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type presenceDoc struct {
	UserID   uint64    `bson:"_id"`
	LastSeen time.Time `bson:"last_seen"`
}

// PresenceStore persists the last time each user was connected.
type PresenceStore struct {
	coll *mongo.Collection
}

func NewPresenceStore(mc *MongoClient, collection string) *PresenceStore {
	if collection == "" {
		collection = "presence"
	}
	return &PresenceStore{coll: mc.Database.Collection(collection)}
}

func (s *PresenceStore) SaveLastSeen(ctx context.Context, userID uint64, at time.Time) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"last_seen": at.UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save last seen for %d: %w", userID, err)
	}
	return nil
}

func (s *PresenceStore) LastSeen(ctx context.Context, userIDs []uint64) (map[uint64]time.Time, error) {
	out := make(map[uint64]time.Time, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, fmt.Errorf("find last seen: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc presenceDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode last seen: %w", err)
		}
		out[doc.UserID] = doc.LastSeen
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate last seen: %w", err)
	}
	return out, nil
}
