package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
)

const meetingsCollection = "meetings"

type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(database).Collection(meetingsCollection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "scheduled_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create mongo indexes: %w", err)
	}

	return &MongoStore{client: client, coll: coll}, nil
}

func (v *MongoStore) Ping(ctx context.Context) error {
	return v.client.Ping(ctx, nil)
}

func (v *MongoStore) Close(ctx context.Context) error {
	return v.client.Disconnect(ctx)
}

func (v *MongoStore) Create(ctx context.Context, meeting *models.Meeting) (string, error) {
	if meeting.ID == "" {
		meeting.ID = uuid.NewString()
	}
	if meeting.Status == "" {
		meeting.Status = models.MeetingStatusScheduled
	}
	now := time.Now()
	meeting.CreatedAt, meeting.UpdatedAt = now, now
	if _, err := v.coll.InsertOne(ctx, meeting); err != nil {
		return "", err
	}
	return meeting.ID, nil
}

func (v *MongoStore) Get(ctx context.Context, id string) (models.Meeting, error) {
	var meeting models.Meeting
	err := v.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&meeting)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return meeting, ErrNotFound
	}
	return meeting, err
}

func (v *MongoStore) Update(ctx context.Context, id string, patch models.MeetingPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	res, err := v.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": patchDocument(patch)})
	if err != nil {
		return err
	} else if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (v *MongoStore) Transition(ctx context.Context, id string, to models.MeetingStatus, patch models.MeetingPatch) error {
	from, err := predecessorsOf(to)
	if err != nil {
		return err
	}

	set := patchDocument(patch)
	set["status"] = to
	res, err := v.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	} else if res.MatchedCount > 0 {
		return nil
	}

	if _, err := v.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: to %s", ErrStaleTransition, to)
}

func (v *MongoStore) ListByOwner(ctx context.Context, ownerID string, scheduleDescending bool) ([]models.Meeting, error) {
	direction := 1
	if scheduleDescending {
		direction = -1
	}
	return v.find(ctx, bson.M{"owner_id": ownerID}, direction)
}

func (v *MongoStore) ListByStatus(ctx context.Context, status models.MeetingStatus) ([]models.Meeting, error) {
	return v.find(ctx, bson.M{"status": status}, 1)
}

func (v *MongoStore) find(ctx context.Context, filter bson.M, direction int) ([]models.Meeting, error) {
	cursor, err := v.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: direction}}))
	if err != nil {
		return nil, err
	}
	var meetings []models.Meeting
	if err := cursor.All(ctx, &meetings); err != nil {
		return nil, err
	}
	return meetings, nil
}

func patchDocument(patch models.MeetingPatch) bson.M {
	set := bson.M{"updated_at": time.Now()}
	if patch.TranscriptPath != nil {
		set["transcript_path"] = *patch.TranscriptPath
	}
	if patch.FailureReason != nil {
		set["failure_reason"] = *patch.FailureReason
	}
	if patch.JoinConfirmed != nil {
		set["join_confirmed"] = *patch.JoinConfirmed
	}
	if patch.StartedAt != nil {
		set["started_at"] = *patch.StartedAt
	}
	if patch.EndedAt != nil {
		set["ended_at"] = *patch.EndedAt
	}
	return set
}
