package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateIndexes creates the run_history indexes.
func CreateIndexes(ctx context.Context, db *MongoDB) error {
	slog.Info("Creating MongoDB indexes")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "run_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_run_id_unique"),
		},
		{
			Keys: bson.D{
				{Key: "job_name", Value: 1},
				{Key: "finished_at", Value: -1},
			},
			Options: options.Index().SetName("idx_job_name_finished_at"),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "finished_at", Value: -1},
			},
			Options: options.Index().SetName("idx_status_finished_at"),
		},
		{
			Keys:    bson.D{{Key: "finished_at", Value: -1}},
			Options: options.Index().SetName("idx_finished_at"),
		},
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := db.GetCollection(CollectionRunHistory).Indexes().CreateMany(ctxTimeout, indexes); err != nil {
		return errors.Wrap(err, "failed to create run_history indexes")
	}

	slog.Info("Created run_history indexes")
	return nil
}
