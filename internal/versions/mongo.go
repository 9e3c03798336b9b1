package versions

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoMetadataRepo implements MetadataRepository over two collections:
// version records and a per-document number counter.
type MongoMetadataRepo struct {
	records  *mongo.Collection
	counters *mongo.Collection
}

func NewMongoMetadataRepo(db *mongo.Database) *MongoMetadataRepo {
	return &MongoMetadataRepo{
		records:  db.Collection("document_versions"),
		counters: db.Collection("version_counters"),
	}
}

// NextNumber allocates the next monotonic version number via an atomic
// findOneAndUpdate $inc on the counter document.
func (r *MongoMetadataRepo) NextNumber(ctx context.Context, documentID string) (int, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out struct {
		Seq int `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": documentID},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("next version number: %w", err)
	}
	return out.Seq, nil
}

func (r *MongoMetadataRepo) Insert(ctx context.Context, rec *VersionRecord) error {
	if _, err := r.records.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert version record: %w", err)
	}
	return nil
}

func (r *MongoMetadataRepo) LatestCommitted(ctx context.Context, documentID string) (*VersionRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "number", Value: -1}})
	var rec VersionRecord
	err := r.records.FindOne(ctx,
		bson.M{"documentId": documentID, "status": StatusCommitted},
		opts,
	).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNoVersions
		}
		return nil, err
	}
	return &rec, nil
}

func (r *MongoMetadataRepo) GetCommitted(ctx context.Context, documentID string, number int) (*VersionRecord, error) {
	var rec VersionRecord
	err := r.records.FindOne(ctx,
		bson.M{"documentId": documentID, "number": number, "status": StatusCommitted},
	).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNoVersions
		}
		return nil, err
	}
	return &rec, nil
}

func (r *MongoMetadataRepo) List(ctx context.Context, documentID string) ([]*VersionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "number", Value: 1}})
	cur, err := r.records.Find(ctx, bson.M{"documentId": documentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*VersionRecord
	for cur.Next(ctx) {
		var rec VersionRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, cur.Err()
}
