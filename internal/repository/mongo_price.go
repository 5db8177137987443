package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kjannette/cryptostats-backend/internal/logging"
	"github.com/kjannette/cryptostats-backend/internal/models"
)

type priceDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Coin      string             `bson:"coin"`
	Price     float64            `bson:"price"`
	MarketCap float64            `bson:"marketCap"`
	Change24h float64            `bson:"change24h"`
	Timestamp time.Time          `bson:"timestamp"`
}

func (d priceDocument) record() models.PriceRecord {
	return models.PriceRecord{
		ID:        d.ID.Hex(),
		Coin:      d.Coin,
		Price:     d.Price,
		MarketCap: d.MarketCap,
		Change24h: d.Change24h,
		Timestamp: d.Timestamp,
	}
}

var latestFirst = bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}

type MongoPriceRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
	newID      func() primitive.ObjectID
}

func NewMongoPriceRepo(client *mongo.Client, dbName, collectionName string) *MongoPriceRepo {
	return &MongoPriceRepo{
		client:     client,
		collection: client.Database(dbName).Collection(collectionName),
		newID:      primitive.NewObjectID,
	}
}

// EnsureIndexes creates the {coin, timestamp desc} index used by Latest and
// Recent.
func (r *MongoPriceRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "coin", Value: 1}, {Key: "timestamp", Value: -1}},
		Options: options.Index().SetName("coin_timestamp"),
	})
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// AppendBatch inserts every record or none. Mongo does not make InsertMany
// atomic outside a transaction, so a failed insert deletes whatever part of
// the batch did land, using the IDs assigned up front. For an ordered insert
// that stops on a write error only the documents before it are removed.
func (r *MongoPriceRepo) AppendBatch(ctx context.Context, records []models.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	records = stampRecords(records, time.Now)

	ids := make([]primitive.ObjectID, len(records))
	docs := make([]interface{}, len(records))
	for i, rec := range records {
		ids[i] = r.newID()
		docs[i] = priceDocument{
			ID:        ids[i],
			Coin:      rec.Coin,
			Price:     rec.Price,
			MarketCap: rec.MarketCap,
			Change24h: rec.Change24h,
			Timestamp: rec.Timestamp,
		}
	}

	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return nil
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	landed := insertedPrefix(err, ids)
	if len(landed) == 0 {
		return fmt.Errorf("insert batch: %w", err)
	}
	res, delErr := r.collection.DeleteMany(cleanupCtx, bson.M{"_id": bson.M{"$in": landed}})
	if delErr != nil {
		logging.For("mongo").WithError(delErr).Error("rollback of partial batch failed")
		return errors.Join(fmt.Errorf("insert batch: %w", err), fmt.Errorf("rollback: %w", delErr))
	}
	if res.DeletedCount > 0 {
		logging.For("mongo").Warnf("rolled back %d of %d records after failed insert", res.DeletedCount, len(records))
	}
	return fmt.Errorf("insert batch: %w", err)
}

// insertedPrefix returns the IDs an ordered InsertMany may have written
// before failing. Without a write error index every ID is a candidate.
func insertedPrefix(err error, ids []primitive.ObjectID) []primitive.ObjectID {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return ids
	}
	first := len(ids)
	for _, we := range bwe.WriteErrors {
		if we.Index >= 0 && we.Index < first {
			first = we.Index
		}
	}
	return ids[:first]
}

func (r *MongoPriceRepo) Latest(ctx context.Context, coin string) (*models.PriceRecord, error) {
	var doc priceDocument
	err := r.collection.FindOne(ctx,
		bson.M{"coin": coin},
		options.FindOne().SetSort(latestFirst),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	rec := doc.record()
	return &rec, nil
}

func (r *MongoPriceRepo) Recent(ctx context.Context, coin string, limit int) ([]models.PriceRecord, error) {
	cursor, err := r.collection.Find(ctx,
		bson.M{"coin": coin},
		options.Find().SetSort(latestFirst).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []priceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.PriceRecord, len(docs))
	for i, d := range docs {
		out[i] = d.record()
	}
	return out, nil
}

func (r *MongoPriceRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}
