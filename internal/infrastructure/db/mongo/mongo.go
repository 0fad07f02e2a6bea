package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultTimeout = 10 * time.Second
	appName        = "paywatch"
)

// ErrNoReplicaSet is returned by Connect when the server cannot serve change
// streams.
var ErrNoReplicaSet = errors.New("mongo: change streams need a replica set or sharded cluster")

// Config holds the document store connection settings.
type Config struct {
	URI      string
	Database string
	// Timeout bounds connect, ping and the topology check.
	Timeout time.Duration
}

// Connect dials the server, pings the primary and checks that the deployment
// supports change streams, which every store Watch relies on.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetRetryWrites(true)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	fail := func(err error) (*mongo.Client, *mongo.Database, error) {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fail(fmt.Errorf("mongo ping: %w", err))
	}
	if err := checkChangeStreams(ctx, client); err != nil {
		return fail(err)
	}
	return client, client.Database(cfg.Database), nil
}

// checkChangeStreams asks the server for its topology. Standalone servers
// report neither a set name nor a mongos marker.
func checkChangeStreams(ctx context.Context, client *mongo.Client) error {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello)
	if err != nil {
		return fmt.Errorf("mongo hello: %w", err)
	}
	if hello.SetName == "" && hello.Msg != "isdbgrid" {
		return ErrNoReplicaSet
	}
	return nil
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

// EnsureIndexes creates the indexes of every repository backed by db.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for name, r := range map[string]indexer{
		collectionDevices:  NewDeviceRepository(db),
		collectionAccounts: NewAccountRepository(db),
		collectionPayments: NewPaymentRepository(db),
	} {
		if err := r.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("indexes %s: %w", name, err)
		}
	}
	return nil
}
