// Package access decides whether a user may open a document for editing.
package access

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Verifier interface {
	Check(ctx context.Context, documentID, userID string) (bool, error)
}

// MongoVerifier grants access to a document's owner and collaborators by
// querying the documents collection directly.
type MongoVerifier struct {
	col *mongo.Collection
}

func NewMongoVerifier(db *mongo.Database, collection string) *MongoVerifier {
	return &MongoVerifier{col: db.Collection(collection)}
}

func (v *MongoVerifier) Check(ctx context.Context, documentID, userID string) (bool, error) {
	filter := bson.M{
		"_id": documentID,
		"$or": []bson.M{
			{"ownerId": userID},
			{"collaborators.userId": userID},
		},
	}
	n, err := v.col.CountDocuments(ctx, filter)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Static answers every check with a fixed verdict; used in tests.
type Static struct {
	Allow bool
}

func (v Static) Check(context.Context, string, string) (bool, error) {
	return v.Allow, nil
}
