// Package dbmongo holds the MongoDB connection and the documents this service keeps there.
package dbmongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"gocampus/internal/config"
)

const (
	connectTimeout = 10 * time.Second
	appName        = "gocampus-chat"
)

type MongoClient struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongoConnection dials and pings the primary.
func NewMongoConnection(c *config.Config) (*MongoClient, error) {
	opts := options.Client().
		ApplyURI(c.GetMongoURI()).
		SetAppName(appName).
		SetMaxPoolSize(20).
		SetServerSelectionTimeout(connectTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb %s:%s: %w", c.MongoDB.Host, c.MongoDB.Port, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &MongoClient{Client: client, Database: client.Database(c.MongoDB.Database)}, nil
}

func (mc *MongoClient) Close(ctx context.Context) error {
	if mc == nil || mc.Client == nil {
		return nil
	}
	return mc.Client.Disconnect(ctx)
}
