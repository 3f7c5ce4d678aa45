package implementation

import (
	"context"
	"database/sql"
	"time"

	interfaces "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Backend bundles the repositories of one storage engine together with the
// lifecycle hooks of the underlying connection.
type Backend struct {
	Driver    string
	States    interfaces.StateRepository
	Schedules interfaces.ScheduleRepository
	Users     interfaces.UserRepository
	Roles     interfaces.RoleRepository

	migrate func(ctx context.Context) error
	ping    func(ctx context.Context) error
	close   func() error
}

// NewSQLBackend wires the SQL repositories over an open *sql.DB
func NewSQLBackend(db *sql.DB, dialect Dialect) *Backend {
	return &Backend{
		Driver:    string(dialect),
		States:    NewSQLStateRepository(db, dialect),
		Schedules: NewSQLScheduleRepository(db, dialect),
		Users:     NewSQLUserRepository(db, dialect),
		Roles:     NewSQLRoleRepository(db, dialect),
		migrate: func(ctx context.Context) error {
			return CreateTables(ctx, db, dialect)
		},
		ping:  db.PingContext,
		close: db.Close,
	}
}

// NewMongoBackend wires the document repositories over one database
func NewMongoBackend(client *mongo.Client, dbName string) *Backend {
	db := client.Database(dbName)
	return &Backend{
		Driver:    "mongo",
		States:    NewMongoStateRepository(db.Collection("device_states")),
		Schedules: NewMongoScheduleRepository(db.Collection("schedules")),
		Users:     NewMongoUserRepository(db.Collection("users")),
		Roles:     NewMongoRoleRepository(db.Collection("roles")),
		migrate: func(ctx context.Context) error {
			return CreateMongoIndexes(ctx, db)
		},
		ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
		close: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		},
	}
}

// NewMemoryBackend keeps everything in process memory
func NewMemoryBackend() *Backend {
	return &Backend{
		Driver:    "memory",
		States:    NewMemoryStateRepository(),
		Schedules: NewMemoryScheduleRepository(),
		Users:     NewMemoryUserRepository(),
		Roles:     NewMemoryRoleRepository(),
	}
}

// Migrate creates tables or indexes; a no-op for the memory backend
func (b *Backend) Migrate(ctx context.Context) error {
	if b.migrate == nil {
		return nil
	}
	return b.migrate(ctx)
}

// Ping checks that the storage engine is reachable
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// Close releases the underlying connection
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// CreateMongoIndexes creates the unique and lookup indexes the repositories rely on
func CreateMongoIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		"schedules": {
			{Keys: bson.D{{Key: "time", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "device_id", Value: 1}}},
		},
		"users": {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}}},
		},
		"roles": {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}

	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
