package implementation

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStateRepository keeps one document per device, keyed by device ID
type MongoStateRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoStateRepository(coll *mongo.Collection) *MongoStateRepository {
	return &MongoStateRepository{coll: coll, now: time.Now}
}

func (r *MongoStateRepository) GetOrCreate(ctx context.Context, deviceID string) (*mqtmodels.DeviceState, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	now := r.now().UTC()
	update := bson.M{"$setOnInsert": bson.M{
		"bitmask":    0,
		"version":    int64(0),
		"created_at": now,
		"updated_at": now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	state, err := r.findOneAndUpdate(ctx, deviceID, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// two upserts raced on a new _id; the loser just reads
		return r.get(ctx, deviceID)
	}
	return state, err
}

func (r *MongoStateRepository) Set(ctx context.Context, deviceID string, bitmask uint16) (*mqtmodels.DeviceState, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	now := r.now().UTC()
	update := bson.M{
		"$set":         bson.M{"bitmask": int32(bitmask), "updated_at": now},
		"$inc":         bson.M{"version": int64(1)},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	state, err := r.findOneAndUpdate(ctx, deviceID, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		state, err = r.findOneAndUpdate(ctx, deviceID, update, opts)
	}
	return state, err
}

func (r *MongoStateRepository) CompareAndSwap(ctx context.Context, deviceID string, expectedVersion int64, bitmask uint16) (*mqtmodels.DeviceState, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	filter := bson.M{"_id": deviceID, "version": expectedVersion}
	update := bson.M{
		"$set": bson.M{"bitmask": int32(bitmask), "updated_at": r.now().UTC()},
		"$inc": bson.M{"version": int64(1)},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var state mqtmodels.DeviceState
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&state); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to swap device state: %w", err)
	}
	return &state, nil
}

func (r *MongoStateRepository) List(ctx context.Context) ([]*mqtmodels.DeviceState, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	states := make([]*mqtmodels.DeviceState, 0)
	if err := cursor.All(ctx, &states); err != nil {
		return nil, err
	}
	return states, nil
}

func (r *MongoStateRepository) get(ctx context.Context, deviceID string) (*mqtmodels.DeviceState, error) {
	var state mqtmodels.DeviceState
	if err := r.coll.FindOne(ctx, bson.M{"_id": deviceID}).Decode(&state); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return &state, nil
}

func (r *MongoStateRepository) findOneAndUpdate(ctx context.Context, deviceID string, update bson.M, opts *options.FindOneAndUpdateOptions) (*mqtmodels.DeviceState, error) {
	var state mqtmodels.DeviceState
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": deviceID}, update, opts).Decode(&state); err != nil {
		return nil, err
	}
	return &state, nil
}
