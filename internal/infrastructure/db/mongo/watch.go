package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/paywatch/paywatch/pkg/logger"
)

const (
	watchRetryMin = 500 * time.Millisecond
	watchRetryMax = 30 * time.Second

	codeChangeStreamFatal       = 280
	codeChangeStreamHistoryLost = 286
)

// changeEvent is the subset of a change stream document we consume.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID bson.RawValue `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.Raw `bson:"fullDocument"`
}

// watchCollection opens a change stream on col and converts every event into
// a change value. Updates are looked up so the full current document is
// delivered; a missing document (delete, or deleted before lookup) is passed
// to build as nil.
//
// A failed stream is reopened from its resume token with backoff. The
// channel is closed when ctx ends or when the stream cannot resume without
// skipping events; consumers resubscribe and reconcile in that case.
// Change streams require a replica set.
func watchCollection[C any](ctx context.Context, col *mongo.Collection, build func(key string, doc bson.Raw) (C, error)) (<-chan C, error) {
	stream, err := openStream(ctx, col, nil)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", col.Name(), err)
	}
	log := logger.Component("mongo_watch").With().Str("collection", col.Name()).Logger()

	out := make(chan C)
	go func() {
		defer close(out)
		for {
			sent := forward(ctx, stream, out, build, log)
			streamErr := stream.Err()
			token := stream.ResumeToken()
			_ = stream.Close(context.Background())
			if !sent || ctx.Err() != nil {
				return
			}

			log.Warn().Err(streamErr).Msg("change stream interrupted")
			if token == nil {
				return
			}
			if stream = resume(ctx, col, token, log); stream == nil {
				return
			}
		}
	}()
	return out, nil
}

func openStream(ctx context.Context, col *mongo.Collection, token bson.Raw) (*mongo.ChangeStream, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if token != nil {
		opts.SetResumeAfter(token)
	}
	return col.Watch(ctx, mongo.Pipeline{}, opts)
}

// forward relays events until the stream stops. It returns false when ctx
// ended while a change was waiting to be received.
func forward[C any](ctx context.Context, stream *mongo.ChangeStream, out chan<- C, build func(string, bson.Raw) (C, error), log zerolog.Logger) bool {
	for stream.Next(ctx) {
		var ev changeEvent
		if err := stream.Decode(&ev); err != nil {
			log.Warn().Err(err).Msg("undecodable change event")
			continue
		}
		key, ok := ev.DocumentKey.ID.StringValueOK()
		if !ok {
			continue
		}
		var doc bson.Raw
		if ev.OperationType != "delete" && len(ev.FullDocument) > 0 {
			doc = ev.FullDocument
		}
		change, err := build(key, doc)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("unreadable changed document")
			continue
		}
		select {
		case out <- change:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// resume reopens the stream after token. It returns nil when ctx ends or the
// server no longer holds the history needed to resume.
func resume(ctx context.Context, col *mongo.Collection, token bson.Raw, log zerolog.Logger) *mongo.ChangeStream {
	delay := watchRetryMin
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		stream, err := openStream(ctx, col, token)
		if err == nil {
			log.Info().Msg("change stream resumed")
			return stream
		}
		if unresumable(err) {
			log.Error().Err(err).Msg("change stream cannot resume")
			return nil
		}
		log.Warn().Err(err).Dur("retry_in", delay).Msg("change stream resume failed")
		delay = min(delay*2, watchRetryMax)
	}
}

func unresumable(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCode(codeChangeStreamHistoryLost) || se.HasErrorCode(codeChangeStreamFatal)
}
