package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type collectionIndex struct {
	collection string
	model      mongo.IndexModel
}

func posIndexes() []collectionIndex {
	return []collectionIndex{
		{
			collection: "products",
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "barcode", Value: 1}},
				Options: options.Index().
					SetName("barcode_unique").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{
						"barcode": bson.M{"$exists": true},
					}),
			},
		},
		{
			collection: "users",
			model: mongo.IndexModel{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("email_unique").SetUnique(true),
			},
		},
		{
			// Offline replays carry a replayKey; the unique index makes a
			// second replay of the same checkout fail instead of double-selling.
			collection: "bills",
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "replayKey", Value: 1}},
				Options: options.Index().
					SetName("replayKey_unique").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{
						"replayKey": bson.M{"$type": "string"},
					}),
			},
		},
		{
			collection: "bills",
			model: mongo.IndexModel{
				Keys:    bson.D{{Key: "date", Value: -1}},
				Options: options.Index().SetName("date_desc"),
			},
		},
		{
			collection: "inventory_transactions",
			model: mongo.IndexModel{
				Keys:    bson.D{{Key: "productId", Value: 1}, {Key: "date", Value: -1}},
				Options: options.Index().SetName("product_date"),
			},
		},
		{
			collection: "customers",
			model: mongo.IndexModel{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetName("name_index"),
			},
		},
	}
}

// EnsureIndexes creates every index the till relies on. It keeps going after
// a failure so one bad collection does not block the rest, and returns the
// first error seen.
func EnsureIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	for _, idx := range posIndexes() {
		name, err := db.Collection(idx.collection).Indexes().CreateOne(ctx, idx.model)
		if err != nil {
			zap.L().Warn("index creation failed",
				zap.String("collection", idx.collection),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		zap.L().Debug("index ready", zap.String("collection", idx.collection), zap.String("index", name))
	}
	return firstErr
}
