package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// documentRecord mirrors the documents collection. Fields outside the
// snapshot (title, owner, collaborators) are owned by the CRUD service and
// never touched here.
type documentRecord struct {
	ID        string    `bson:"_id"`
	Content   string    `bson:"content"`
	CRDTState []byte    `bson:"crdtState,omitempty"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// MongoStore persists snapshots in a MongoDB collection.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	return &MongoStore{col: db.Collection(collection)}
}

func (s *MongoStore) LoadSnapshot(ctx context.Context, documentID string) (Snapshot, error) {
	var rec documentRecord
	err := s.col.FindOne(ctx, bson.M{"_id": documentID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{State: rec.CRDTState, Text: rec.Content}, nil
}

func (s *MongoStore) SaveSnapshot(ctx context.Context, documentID string, snap Snapshot) error {
	update := bson.M{"$set": bson.M{
		"content":   snap.Text,
		"crdtState": snap.State,
		"updatedAt": time.Now().UTC(),
	}}
	_, err := s.col.UpdateByID(ctx, documentID, update, options.Update().SetUpsert(true))
	return err
}
