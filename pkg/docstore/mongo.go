package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps each collection to a Mongo collection of the same name,
// with the document id stored as _id
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore wraps an existing database handle
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{client: db.Client(), db: db}
}

// OpenMongo connects, pings and selects the database
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return NewMongoStore(client.Database(database)), nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", mapMongoError(err))
	}
	return fromBSON(raw)
}

func (s *MongoStore) Find(ctx context.Context, q Query) ([]Document, error) {
	filter, err := MongoFilter(q)
	if err != nil {
		return nil, err
	}

	sortField := mongoField(q.OrderBy)
	if q.OrderBy == "" {
		sortField = "_id"
	}
	direction := 1
	if q.Descending {
		direction = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: sortField, Value: direction}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", mapMongoError(err))
	}
	defer cursor.Close(ctx)

	docs := make([]Document, 0)
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		doc, err := fromBSON(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", mapMongoError(err))
	}
	return docs, nil
}

// MongoFilter translates a query's filters into a bson filter document
func MongoFilter(q Query) (bson.M, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filter := bson.M{}
	for _, f := range q.Filters {
		field := mongoField(f.Field)
		var cond interface{}
		switch f.Op {
		case OpEq, OpContains:
			// Mongo equality on an array field matches any element.
			cond = f.Value
		case OpIn:
			cond = bson.M{"$in": f.Value}
		}
		if existing, ok := filter[field]; ok {
			filter["$and"] = append(andClauses(filter), bson.M{field: existing}, bson.M{field: cond})
			delete(filter, field)
			continue
		}
		filter[field] = cond
	}
	return filter, nil
}

func andClauses(filter bson.M) bson.A {
	if existing, ok := filter["$and"].(bson.A); ok {
		return existing
	}
	return bson.A{}
}

func mongoField(field string) string {
	if field == FieldID {
		return "_id"
	}
	return field
}

// Insert relies on the unique _id index, so a taken id surfaces as a
// duplicate key error
func (s *MongoStore) Insert(ctx context.Context, collection, id string, doc Document) error {
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", ErrInvalidQuery)
	}
	created, err := Encode(doc)
	if err != nil {
		return err
	}
	record := bson.M(created)
	if record == nil {
		record = bson.M{}
	}
	delete(record, FieldID)
	record["_id"] = id

	_, err = s.db.Collection(collection).InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	} else if err != nil {
		return fmt.Errorf("failed to insert document: %w", mapMongoError(err))
	}
	return nil
}

func (s *MongoStore) Merge(ctx context.Context, collection, id string, doc Document) error {
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", ErrInvalidQuery)
	}
	patch, err := Encode(doc)
	if err != nil {
		return err
	}
	delete(patch, FieldID)
	delete(patch, "_id")

	update := bson.M{"$set": bson.M(patch)}
	if len(patch) == 0 {
		update = bson.M{"$setOnInsert": bson.M{"_id": id}}
	}

	_, err = s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write document: %w", mapMongoError(err))
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", mapMongoError(err))
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// fromBSON converts a decoded Mongo document to the JSON value shapes
// used by every other backend, moving _id to id
func fromBSON(raw bson.M) (Document, error) {
	id := raw["_id"]
	delete(raw, "_id")

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert document: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	doc[FieldID] = fmt.Sprint(id)
	return doc, nil
}

// mapMongoError translates authorization failures (code 13, Unauthorized)
// to ErrPermissionDenied and network failures to ErrUnavailable
func mapMongoError(err error) error {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == 13 {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, cmdErr.Message)
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) && writeErr.HasErrorCode(13) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, writeErr.Error())
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
