// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package blob

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/juju/errors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// Redis keeps each object in a string key. Objects are small lists of
// recommendations, so they are buffered in memory and written on Close.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(url, prefix string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Trace(err)
	}
	client := redis.NewClient(opt)
	if err = redisotel.InstrumentTracing(client, redisotel.WithDBStatement(false)); err != nil {
		return nil, errors.Trace(err)
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) key(name string) string {
	return r.prefix + name
}

func (r *Redis) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Annotate(ErrObjectNotExist, r.key(name))
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (r *Redis) Create(ctx context.Context, name string) (Writer, error) {
	return &redisWriter{ctx: ctx, client: r.client, key: r.key(name)}, nil
}

type redisWriter struct {
	bytes.Buffer
	ctx    context.Context
	client *redis.Client
	key    string
}

func (w *redisWriter) Close() error {
	return errors.Trace(w.client.Set(w.ctx, w.key, w.Bytes(), 0).Err())
}

func (w *redisWriter) Abort(error) error {
	w.Reset()
	return nil
}

func (r *Redis) List(ctx context.Context) ([]string, error) {
	var names []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return names, nil
}

func (r *Redis) Remove(ctx context.Context, name string) error {
	return errors.Trace(r.client.Del(ctx, r.key(name)).Err())
}

func (r *Redis) Close() error {
	return r.client.Close()
}
