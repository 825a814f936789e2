// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package redisdb provides a counter store in Redis.  Each counter is
// a hash at "counter:{id}".  The conditional write watches the key,
// checks its version field, and writes the new hash inside MULTI/EXEC;
// if anything touches the key in between, EXEC fails and the write
// is reported as counter.ErrConflict.
package redisdb

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/diffeo/go-counter/counter"
)

// KeyPrefix is prepended to counter IDs to form Redis keys.
const KeyPrefix = "counter:"

const (
	fieldValue       = "value"
	fieldCreatedAt   = "created_at"
	fieldLastUpdated = "last_updated"
	fieldLastUser    = "last_user"
	fieldVersion     = "version"
)

type redisStore struct {
	client *redis.Client
}

// New connects to Redis.  url is a "redis://" or "rediss://" URL as
// understood by redis.ParseURL; a bare "host:port" is also accepted.
func New(url string) (counter.Store, error) {
	opts, err := parseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "connecting to redis")
	}
	return &redisStore{client: client}, nil
}

func parseURL(url string) (*redis.Options, error) {
	if url == "" {
		url = "localhost:6379"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts, err = redis.ParseURL("redis://" + url)
	}
	return opts, err
}

func key(id string) string {
	return KeyPrefix + id
}

// decode converts a hash to a record.  An empty hash means the key
// does not exist.
func decode(id string, fields map[string]string) (counter.Record, error) {
	if len(fields) == 0 {
		return counter.Record{}, counter.ErrNoSuchCounter{ID: id}
	}
	rec := counter.Record{ID: id, LastUser: fields[fieldLastUser]}
	var err error
	if rec.Value, err = strconv.ParseInt(fields[fieldValue], 10, 64); err != nil {
		return rec, err
	}
	if rec.Version, err = strconv.ParseInt(fields[fieldVersion], 10, 64); err != nil {
		return rec, err
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, fields[fieldCreatedAt]); err != nil {
		return rec, err
	}
	if rec.LastUpdated, err = time.Parse(time.RFC3339Nano, fields[fieldLastUpdated]); err != nil {
		return rec, err
	}
	return rec, nil
}

func encode(rec counter.Record) map[string]interface{} {
	return map[string]interface{}{
		fieldValue:       strconv.FormatInt(rec.Value, 10),
		fieldCreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldLastUpdated: rec.LastUpdated.UTC().Format(time.RFC3339Nano),
		fieldLastUser:    rec.LastUser,
		fieldVersion:     strconv.FormatInt(rec.Version, 10),
	}
}

func (s *redisStore) Get(ctx context.Context, id string) (counter.Record, error) {
	fields, err := s.client.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return counter.Record{}, errors.Wrapf(err, "fetching counter %q", id)
	}
	rec, err := decode(id, fields)
	if _, missing := err.(counter.ErrNoSuchCounter); missing {
		return rec, err
	}
	return rec, errors.Wrapf(err, "decoding counter %q", id)
}

func (s *redisStore) Put(ctx context.Context, rec counter.Record) (counter.Record, error) {
	stored := rec
	stored.Version++
	k := key(rec.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, k, fieldVersion).Int64()
		if err == redis.Nil {
			current, err = 0, nil
		}
		if err != nil {
			return err
		}
		if current != rec.Version {
			return counter.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, encode(stored))
			return nil
		})
		return err
	}, k)
	if err == counter.ErrConflict || err == redis.TxFailedErr {
		return counter.Record{}, counter.ErrConflict
	}
	if err != nil {
		return counter.Record{}, errors.Wrapf(err, "writing counter %q", rec.ID)
	}
	return stored, nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	count, err := s.client.Del(ctx, key(id)).Result()
	if err != nil {
		return errors.Wrapf(err, "deleting counter %q", id)
	}
	if count == 0 {
		return counter.ErrNoSuchCounter{ID: id}
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
