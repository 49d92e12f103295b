package database

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dandantas/pijob/internal/model"
)

// ErrRunNotFound is returned when no history record matches a run ID.
var ErrRunNotFound = errors.New("run not found")

// RunFilter narrows a history listing. Zero fields match everything.
type RunFilter struct {
	JobName string
	Status  string
	From    time.Time
	To      time.Time
}

func (f RunFilter) toBSON() bson.M {
	filter := bson.M{}
	if f.JobName != "" {
		filter["job_name"] = f.JobName
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		window := bson.M{}
		if !f.From.IsZero() {
			window["$gte"] = f.From
		}
		if !f.To.IsZero() {
			window["$lte"] = f.To
		}
		filter["finished_at"] = window
	}
	return filter
}

// RunRepository stores run history in MongoDB.
type RunRepository struct {
	collection *mongo.Collection
}

func NewRunRepository(db *MongoDB) *RunRepository {
	return &RunRepository{
		collection: db.GetCollection(CollectionRunHistory),
	}
}

// Create inserts a history record.
func (r *RunRepository) Create(ctx context.Context, record *model.RunRecord) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctxTimeout, record); err != nil {
		return errors.Wrap(err, "failed to create run record")
	}
	return nil
}

// GetByRunID returns the record for runID.
func (r *RunRepository) GetByRunID(ctx context.Context, runID string) (*model.RunRecord, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var record model.RunRecord
	err := r.collection.FindOne(ctxTimeout, bson.M{"run_id": runID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.Wrapf(ErrRunNotFound, "run %s", runID)
		}
		return nil, errors.Wrap(err, "failed to get run record")
	}
	return &record, nil
}

// List returns one page of records, newest first, and the total match count.
func (r *RunRepository) List(ctx context.Context, filter RunFilter, page, limit int) ([]model.RunRecord, int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := filter.toBSON()
	total, err := r.collection.CountDocuments(ctxTimeout, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to count run records")
	}

	if page < 1 || limit < 1 || int64(page-1) > math.MaxInt64/int64(limit) {
		return []model.RunRecord{}, total, nil
	}
	skip := int64(page-1) * int64(limit)

	opts := options.Find().
		SetSkip(skip).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "finished_at", Value: -1}})

	cursor, err := r.collection.Find(ctxTimeout, query, opts)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list run records")
	}
	defer cursor.Close(ctxTimeout)

	records := make([]model.RunRecord, 0, limit)
	if err := cursor.All(ctxTimeout, &records); err != nil {
		return nil, 0, errors.Wrap(err, "failed to decode run records")
	}
	return records, total, nil
}
