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
package cache

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/storage/blob"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Directory holds cached recommendation lists inside the blob store.
const Directory = "recommendations/"

var ErrInvalidIdentity = errors.NotValidf("identity")

// Computer produces the recommendation list of an identity on a cache miss.
type Computer interface {
	Compute(ctx context.Context, identity string) ([]Score, error)
}

type ComputerFunc func(ctx context.Context, identity string) ([]Score, error)

func (f ComputerFunc) Compute(ctx context.Context, identity string) ([]Score, error) {
	return f(ctx, identity)
}

// Recommendations caches recommendation lists keyed by identity, which is the
// name of a user or of a virtual group user. A stored list is never checked
// against current ratings: callers wanting fresh results evict first.
type Recommendations struct {
	store             blob.Store
	computer          Computer
	regenerateCorrupt bool
	group             singleflight.Group
}

func NewRecommendations(store blob.Store, computer Computer, regenerateCorrupt bool) *Recommendations {
	return &Recommendations{
		store:             store,
		computer:          computer,
		regenerateCorrupt: regenerateCorrupt,
	}
}

// ObjectName maps an identity to its blob name.
func ObjectName(identity string) (string, error) {
	if identity == "" || identity == "." || identity == ".." {
		return "", errors.Annotatef(ErrInvalidIdentity, "%q", identity)
	}
	return Directory + url.PathEscape(identity), nil
}

// Get reads a cached list. It returns blob.ErrObjectNotExist on a miss and
// ErrCacheCorrupt when the stored entry cannot be parsed.
func (r *Recommendations) Get(ctx context.Context, identity string) ([]Score, error) {
	start := time.Now()
	defer func() { GetSeconds.Observe(time.Since(start).Seconds()) }()
	name, err := ObjectName(identity)
	if err != nil {
		return nil, errors.Trace(err)
	}
	reader, err := r.store.Open(ctx, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer reader.Close()
	scores, err := Decode(reader)
	if err != nil {
		return nil, errors.Annotate(err, identity)
	}
	return scores, nil
}

// Put stores a list, replacing the previous one.
func (r *Recommendations) Put(ctx context.Context, identity string, scores []Score) error {
	start := time.Now()
	defer func() { PutSeconds.Observe(time.Since(start).Seconds()) }()
	name, err := ObjectName(identity)
	if err != nil {
		return errors.Trace(err)
	}
	w, err := r.store.Create(ctx, name)
	if err != nil {
		return errors.Trace(err)
	}
	if err = Encode(w, scores); err != nil {
		_ = w.Abort(err)
		return errors.Trace(err)
	}
	return errors.Trace(w.Close())
}

// Evict deletes a cached list. Evicting an absent list is not an error.
func (r *Recommendations) Evict(ctx context.Context, identity string) error {
	name, err := ObjectName(identity)
	if err != nil {
		return errors.Trace(err)
	}
	if err = r.store.Remove(ctx, name); err != nil {
		return errors.Trace(err)
	}
	EvictTotal.Inc()
	return nil
}

// Identities lists every identity with a cached list.
func (r *Recommendations) Identities(ctx context.Context) ([]string, error) {
	names, err := r.store.List(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var identities []string
	for _, name := range names {
		if !strings.HasPrefix(name, Directory) {
			continue
		}
		identity, err := url.PathUnescape(name[len(Directory):])
		if err != nil {
			log.Logger().Warn("skip unknown cache object", zap.String("name", name))
			continue
		}
		identities = append(identities, identity)
	}
	return identities, nil
}

// GetOrCompute returns the cached list of an identity if it is present and not
// empty. Otherwise it computes the list, stores it and returns it. Concurrent
// callers for one identity share a single computation.
func (r *Recommendations) GetOrCompute(ctx context.Context, identity string) ([]Score, error) {
	scores, err := r.Get(ctx, identity)
	switch {
	case err == nil && len(scores) > 0:
		HitsTotal.Inc()
		return scores, nil
	case err == nil, errors.Is(err, blob.ErrObjectNotExist):
	case errors.Is(err, ErrCacheCorrupt):
		CorruptTotal.Inc()
		if !r.regenerateCorrupt {
			return nil, errors.Trace(err)
		}
		log.Logger().Warn("regenerate corrupt recommendations", zap.String("identity", identity), zap.Error(err))
		if err = r.Evict(ctx, identity); err != nil {
			return nil, errors.Trace(err)
		}
	default:
		return nil, errors.Trace(err)
	}
	MissesTotal.Inc()

	v, err, _ := r.group.Do(identity, func() (any, error) {
		// a previous flight may have stored the list after our read
		if scores, err := r.Get(ctx, identity); err == nil && len(scores) > 0 {
			return scores, nil
		}
		start := time.Now()
		scores, err := r.computer.Compute(ctx, identity)
		if err != nil {
			return nil, errors.Trace(err)
		}
		ComputeSeconds.Observe(time.Since(start).Seconds())
		log.Logger().Info("compute recommendations",
			zap.String("identity", identity),
			zap.Int("n", len(scores)),
			zap.Duration("elapsed", time.Since(start)))
		if err = r.Put(ctx, identity, scores); err != nil {
			return nil, errors.Trace(err)
		}
		return scores, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Score), nil
}
