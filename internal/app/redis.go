package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"payments/internal/config"
)

// NewRedisClient connects to Redis. With a New Relic application every command is
// recorded as a datastore segment named after its key family.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, nrApp *newrelic.Application) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if nrApp != nil {
		client.AddHook(datastoreHook{})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// datastoreHook reports Redis commands to the transaction carried by the context.
type datastoreHook struct{}

func (datastoreHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (datastoreHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		defer startDatastoreSegment(ctx, cmd.Name(), keyFamily(cmd.Args())).End()
		return next(ctx, cmd)
	}
}

func (datastoreHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		collection := "pipeline"
		for _, cmd := range cmds {
			if family := keyFamily(cmd.Args()); family != "" {
				collection = family
				break
			}
		}
		defer startDatastoreSegment(ctx, "pipeline", collection).End()
		return next(ctx, cmds)
	}
}

// segmentEnder is satisfied by *newrelic.DatastoreSegment; noopSegment stands in
// when the context has no transaction.
type segmentEnder interface{ End() }

type noopSegment struct{}

func (noopSegment) End() {}

func startDatastoreSegment(ctx context.Context, operation, collection string) segmentEnder {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return noopSegment{}
	}
	return &newrelic.DatastoreSegment{
		StartTime:  txn.StartSegmentNow(),
		Product:    newrelic.DatastoreRedis,
		Operation:  operation,
		Collection: collection,
	}
}

// keyFamily returns the first segment of the command's key: "lock", "cache" or
// "idempotency" for the keys this service writes.
func keyFamily(args []interface{}) string {
	if len(args) < 2 {
		return ""
	}
	key, ok := args[1].(string)
	if !ok {
		return ""
	}
	family, _, _ := strings.Cut(key, ":")
	return family
}
