package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// CollectionRunHistory stores one document per finished run.
const CollectionRunHistory = "run_history"

// MongoConfig selects the server and database holding run history.
type MongoConfig struct {
	URI         string
	Database    string
	Timeout     time.Duration
	MaxPoolSize uint64
	AppName     string
}

func (c MongoConfig) withDefaults() MongoConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = 20
	}
	if c.AppName == "" {
		c.AppName = "pijob"
	}
	return c
}

// clientOptions builds the driver options for cfg.
func clientOptions(cfg MongoConfig) *options.ClientOptions {
	return options.Client().
		ApplyURI(cfg.URI).
		SetAppName(cfg.AppName).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetConnectTimeout(cfg.Timeout).
		SetServerSelectionTimeout(cfg.Timeout).
		SetWriteConcern(writeconcern.Majority()).
		SetReadPreference(readpref.PrimaryPreferred()).
		SetRetryWrites(true)
}

// MongoDB holds a connected client and the run history database.
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// Connect dials cfg.URI and pings the primary before returning.
func Connect(ctx context.Context, cfg MongoConfig) (*MongoDB, error) {
	cfg = cfg.withDefaults()
	if cfg.URI == "" {
		return nil, errors.New("mongo: empty URI")
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "mongo: connect")
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongo: ping")
	}

	slog.Info("Run history stored in MongoDB", "database", cfg.Database, "max_pool_size", cfg.MaxPoolSize)
	return &MongoDB{Client: client, Database: client.Database(cfg.Database)}, nil
}

// Ping reports whether the server is reachable.
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.Client.Ping(ctx, readpref.PrimaryPreferred())
}

// Disconnect closes the client, waiting at most until ctx expires.
func (m *MongoDB) Disconnect(ctx context.Context) error {
	if err := m.Client.Disconnect(ctx); err != nil {
		return errors.Wrap(err, "mongo: disconnect")
	}
	slog.Info("Disconnected from MongoDB")
	return nil
}

func (m *MongoDB) GetCollection(name string) *mongo.Collection {
	return m.Database.Collection(name)
}
