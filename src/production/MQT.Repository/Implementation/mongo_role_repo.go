package implementation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	auth_models "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models/auth"
	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRoleRepository struct {
	coll *mongo.Collection
}

func NewMongoRoleRepository(coll *mongo.Collection) *MongoRoleRepository {
	return &MongoRoleRepository{coll: coll}
}

// Create upserts by name so seeding is repeatable
func (r *MongoRoleRepository) Create(ctx context.Context, role *auth_models.Role) (*auth_models.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if role.RoleID == "" {
		role.RoleID = uuid.New().String()
	}
	now := time.Now().UTC()

	update := bson.M{
		"$set":         bson.M{"description": role.Description, "updated_at": now},
		"$setOnInsert": bson.M{"_id": role.RoleID, "created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored auth_models.Role
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"name": role.Name}, update, opts).Decode(&stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *MongoRoleRepository) FindByName(ctx context.Context, name string) (*auth_models.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var role auth_models.Role
	if err := r.coll.FindOne(ctx, bson.M{"name": name}).Decode(&role); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (r *MongoRoleRepository) FindAll(ctx context.Context) ([]*auth_models.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	roles := make([]*auth_models.Role, 0)
	if err := cursor.All(ctx, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}
