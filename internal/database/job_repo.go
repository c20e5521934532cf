package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jukasdrj/shelfscan/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// JobRepository persists scan job records with a bounded TTL. Every write
// refreshes expires_at so an active job never expires mid-flight; the TTL
// index reaps whatever is left behind.
type JobRepository struct {
	collection *mongo.Collection
	ttl        time.Duration
}

// NewJobRepository creates a new job repository. The ttl is applied on every
// merge; Create takes an explicit ttl so callers can override it per job.
func NewJobRepository(db *MongoDB, ttl time.Duration) *JobRepository {
	return &JobRepository{
		collection: db.GetCollection(CollectionScanJobs),
		ttl:        ttl,
	}
}

// Create inserts a new job record with the given TTL
func (r *JobRepository) Create(ctx context.Context, record *model.JobRecord, ttl time.Duration) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	record.ExpiresAt = time.Now().UTC().Add(ttl)

	_, err := r.collection.InsertOne(ctxTimeout, record)
	if err != nil {
		return fmt.Errorf("failed to create job record: %w", err)
	}

	return nil
}

// Get retrieves a job record by job ID. Returns model.ErrJobNotFound when
// the record is absent (never created, expired, or already deleted).
func (r *JobRepository) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var record model.JobRecord
	err := r.collection.FindOne(ctxTimeout, bson.M{"job_id": jobID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job record: %w", err)
	}

	return &record, nil
}

// Merge applies a partial update to a job record and refreshes its TTL.
// Returns false when the record is absent — the job already expired or was
// deleted, which callers tolerate silently. A stage update never overwrites
// a record that already reached a terminal stage.
func (r *JobRepository) Merge(ctx context.Context, jobID string, update model.JobUpdate) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	set := bson.M{
		"last_updated": now,
		"expires_at":   now.Add(r.ttl),
	}

	filter := bson.M{"job_id": jobID}

	if update.Stage != nil {
		set["stage"] = *update.Stage
		filter["stage"] = bson.M{"$nin": model.TerminalStages()}
	}
	if update.ChannelReady != nil {
		set["channel_ready"] = *update.ChannelReady
	}
	if update.ChannelReadyAt != nil {
		set["channel_ready_at"] = *update.ChannelReadyAt
	}
	if update.BooksDetected != nil {
		set["books_detected"] = *update.BooksDetected
	}
	if update.PhotosProcessed != nil {
		set["photos_processed"] = *update.PhotosProcessed
	}
	if update.Result != nil {
		set["result"] = update.Result
	}
	if update.Error != nil {
		set["error"] = *update.Error
	}
	if update.ErrorType != nil {
		set["error_type"] = *update.ErrorType
	}

	result, err := r.collection.UpdateOne(ctxTimeout, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to merge job record: %w", err)
	}

	return result.MatchedCount > 0, nil
}

// Delete removes a job record. Deleting an absent record is not an error.
func (r *JobRepository) Delete(ctx context.Context, jobID string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.collection.DeleteOne(ctxTimeout, bson.M{"job_id": jobID})
	if err != nil {
		return fmt.Errorf("failed to delete job record: %w", err)
	}

	return nil
}

// DeleteTerminalBefore removes records that reached a terminal stage before
// the cutoff. The janitor calls this on a fixed interval; the TTL index
// covers anything it misses.
func (r *JobRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"stage":        bson.M{"$in": model.TerminalStages()},
		"last_updated": bson.M{"$lt": cutoff},
	}

	result, err := r.collection.DeleteMany(ctxTimeout, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete terminal job records: %w", err)
	}

	if result.DeletedCount > 0 {
		slog.Debug("Deleted terminal job records",
			"count", result.DeletedCount,
		)
	}

	return result.DeletedCount, nil
}
