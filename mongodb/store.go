// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package mongodb provides a counter store in a MongoDB collection,
// one document per counter keyed by the counter ID.
//
// The conditional write is a single upsert: replace the document
// whose _id and version match, inserting if none does.  If a document
// with the same _id but another version exists, the insert half of
// the upsert fails with a duplicate key error, which is reported as
// counter.ErrConflict.
package mongodb

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/diffeo/go-counter/counter"
)

const (
	// DefaultDatabase is used if the connection URI does not name a
	// database.
	DefaultDatabase = "counter"

	// Collection is the name of the collection holding counters.
	Collection = "counters"

	connectTimeout = 10 * time.Second
)

// document is the stored form of a counter.Record.
type document struct {
	ID          string    `bson:"_id"`
	Value       int64     `bson:"value"`
	CreatedAt   time.Time `bson:"created_at"`
	LastUpdated time.Time `bson:"last_updated"`
	LastUser    string    `bson:"last_user"`
	Version     int64     `bson:"version"`
}

type mongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// New connects to MongoDB.  uri is a standard "mongodb://" or
// "mongodb+srv://" connection string; its path names the database,
// defaulting to DefaultDatabase.
func New(uri string) (counter.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongodb")
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "connecting to mongodb")
	}
	return &mongoStore{
		client:     client,
		collection: client.Database(databaseName(uri)).Collection(Collection),
	}, nil
}

// databaseName extracts the database name from a connection URI.
func databaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return DefaultDatabase
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return DefaultDatabase
	}
	return name
}

func (s *mongoStore) Get(ctx context.Context, id string) (counter.Record, error) {
	var doc document
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return counter.Record{}, counter.ErrNoSuchCounter{ID: id}
	}
	if err != nil {
		return counter.Record{}, errors.Wrapf(err, "fetching counter %q", id)
	}
	return counter.Record{
		ID:          doc.ID,
		Value:       doc.Value,
		CreatedAt:   doc.CreatedAt,
		LastUpdated: doc.LastUpdated,
		LastUser:    doc.LastUser,
		Version:     doc.Version,
	}, nil
}

func (s *mongoStore) Put(ctx context.Context, rec counter.Record) (counter.Record, error) {
	stored := rec
	stored.Version++
	// BSON dates are milliseconds
	stored.CreatedAt = stored.CreatedAt.Truncate(time.Millisecond)
	stored.LastUpdated = stored.LastUpdated.Truncate(time.Millisecond)

	doc := document{
		ID:          stored.ID,
		Value:       stored.Value,
		CreatedAt:   stored.CreatedAt,
		LastUpdated: stored.LastUpdated,
		LastUser:    stored.LastUser,
		Version:     stored.Version,
	}
	filter := bson.M{"_id": rec.ID, "version": rec.Version}
	_, err := s.collection.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return counter.Record{}, counter.ErrConflict
	}
	if err != nil {
		return counter.Record{}, errors.Wrapf(err, "writing counter %q", rec.ID)
	}
	return stored, nil
}

func (s *mongoStore) Delete(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrapf(err, "deleting counter %q", id)
	}
	if result.DeletedCount == 0 {
		return counter.ErrNoSuchCounter{ID: id}
	}
	return nil
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
