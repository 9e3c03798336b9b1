package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/docugate/docugate/internal/document"
)

// MongoRepo implements document.Repository using a Mongo collection.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	return &MongoRepo{col: col}
}

func (r *MongoRepo) Create(ctx context.Context, doc *document.Document) (string, error) {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.ID == "" {
		doc.ID = primitive.NewObjectID().Hex()
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return doc.ID, nil
}

func (r *MongoRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, document.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *MongoRepo) List(ctx context.Context, tenantID string) ([]*document.Document, error) {
	filter := bson.M{}
	if tenantID != "" {
		filter["tenantId"] = tenantID
	}
	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*document.Document
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

// AdvanceVersion uses a conditional update so concurrent commits cannot both
// move the pointer from the same version.
func (r *MongoRepo) AdvanceVersion(ctx context.Context, id string, fromVersion, toVersion int, storageKey string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "currentVersion": fromVersion},
		bson.M{"$set": bson.M{
			"currentVersion": toVersion,
			"storageKey":     storageKey,
			"updatedAt":      time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("advance version: %w", err)
	}
	if res.MatchedCount == 0 {
		// distinguish missing document from a lost CAS race
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return gerr
		}
		return document.ErrVersionConflict
	}
	return nil
}
