package implementation

import (
	"context"
	"fmt"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoScheduleRepository struct {
	coll *mongo.Collection
}

func NewMongoScheduleRepository(coll *mongo.Collection) *MongoScheduleRepository {
	return &MongoScheduleRepository{coll: coll}
}

func (r *MongoScheduleRepository) Create(ctx context.Context, entry *mqtmodels.ScheduleEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("schedule %s: %w", entry.ID, interfaces.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *MongoScheduleRepository) FindByTime(ctx context.Context, hhmm string) ([]*mqtmodels.ScheduleEntry, error) {
	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	return r.find(ctx, bson.M{"time": hhmm}, sort)
}

func (r *MongoScheduleRepository) List(ctx context.Context, deviceID string) ([]*mqtmodels.ScheduleEntry, error) {
	filter := bson.M{}
	if deviceID != "" {
		filter["device_id"] = deviceID
	}
	sort := bson.D{{Key: "time", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	return r.find(ctx, filter, sort)
}

func (r *MongoScheduleRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (r *MongoScheduleRepository) find(ctx context.Context, filter bson.M, sort bson.D) ([]*mqtmodels.ScheduleEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := make([]*mqtmodels.ScheduleEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
