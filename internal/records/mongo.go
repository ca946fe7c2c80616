package records

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Updater is the part of *mongo.Collection used by MongoStore.
type Updater interface {
	UpdateOne(
		ctx context.Context,
		filter interface{},
		update interface{},
		opts ...*options.UpdateOptions,
	) (*mongo.UpdateResult, error)
}

// MongoStore updates job documents keyed by _id.
type MongoStore struct {
	collection Updater
	log        *logger.Logger
}

// ConnectMongo opens a client for uri. The caller disconnects it.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	return client, nil
}

// NewMongoStore creates a store over a collection.
func NewMongoStore(collection Updater, log *logger.Logger) *MongoStore {
	return &MongoStore{collection: collection, log: log}
}

// UpdateStatus sets the status field of jobID.
func (s *MongoStore) UpdateStatus(ctx context.Context, jobID string, status core.JobStatus) error {
	return s.set(ctx, jobID, bson.M{FieldStatus: string(status)})
}

// UpdateResult sets text, audio reference and status of jobID in one update.
func (s *MongoStore) UpdateResult(
	ctx context.Context,
	jobID, translatedText, audioReference string,
	status core.JobStatus,
) error {
	return s.set(ctx, jobID, bson.M{
		FieldTranslatedText: translatedText,
		FieldAudioReference: audioReference,
		FieldStatus:         string(status),
	})
}

func (s *MongoStore) set(ctx context.Context, jobID string, fields bson.M) error {
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": jobID}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update record '%s': %w", jobID, err)
	}

	if result != nil && result.MatchedCount == 0 {
		s.log.Warn("Record update for '%s' matched no document", jobID)
	}

	return nil
}
