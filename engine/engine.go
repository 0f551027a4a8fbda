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
package engine

import (
	"context"
	"time"

	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/config"
	"github.com/gorse-io/meeple/logics"
	"github.com/gorse-io/meeple/storage/blob"
	"github.com/gorse-io/meeple/storage/cache"
	"github.com/gorse-io/meeple/storage/data"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Engine wires the rating store, the cache store and the recommenders.
type Engine struct {
	Config     *config.Config
	DataClient data.Database
	BlobStore  blob.Store
	Cache      *cache.Recommendations
	Individual *logics.Individual
	Catalog    *logics.GameCatalog
	Group      *logics.GroupRecommender
	Evaluator  *logics.Evaluator

	tracerProvider *tracesdk.TracerProvider
}

// Open connects to the stores named by the configuration.
func Open(cfg *config.Config) (*Engine, error) {
	e := &Engine{Config: cfg}
	var err error
	e.DataClient, err = data.Open(cfg.Database.DataStore, cfg.Database.TablePrefix)
	if err != nil {
		return nil, errors.Annotatef(err, "open rating store %s", log.RedactDBURL(cfg.Database.DataStore))
	}
	if cfg.Tracing.EnableTracing {
		e.tracerProvider, err = cfg.Tracing.NewTracerProvider(context.Background())
		if err != nil {
			_ = e.DataClient.Close()
			return nil, errors.Annotate(err, "create tracer provider")
		}
		otel.SetTracerProvider(e.tracerProvider)
		otel.SetErrorHandler(log.GetErrorHandler())
	}
	e.BlobStore, err = blob.Open(cfg.Cache.Store, cfg)
	if err != nil {
		_ = e.Close()
		return nil, errors.Annotatef(err, "open cache store %s", log.RedactDBURL(cfg.Cache.Store))
	}
	filter, err := logics.NewGameFilter(cfg.Group.GameFilter)
	if err != nil {
		_ = e.Close()
		return nil, errors.Trace(err)
	}

	e.Individual = logics.NewIndividual(e.DataClient, cfg.Recommend)
	e.Cache = cache.NewRecommendations(e.BlobStore, e.Individual, cfg.Cache.RegenerateCorrupt)
	e.Catalog = logics.NewGameCatalog(e.DataClient, cfg.Group.MetadataTTL)
	renderer := logics.NewRenderer(e.Catalog, filter, e.BlobStore)
	e.Group = logics.NewGroupRecommender(e.DataClient, e.Cache, renderer, cfg.Group)
	e.Evaluator = logics.NewEvaluator(e.DataClient, e.Cache, e.Group)
	log.Logger().Info("open engine",
		zap.String("data_store", log.RedactDBURL(cfg.Database.DataStore)),
		zap.String("cache_store", log.RedactDBURL(cfg.Cache.Store)))
	return e, nil
}

// Close releases both stores and flushes pending spans.
func (e *Engine) Close() error {
	var err error
	if e.tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, e.tracerProvider.Shutdown(ctx))
	}
	if e.BlobStore != nil {
		err = multierr.Append(err, e.BlobStore.Close())
	}
	if e.DataClient != nil {
		err = multierr.Append(err, e.DataClient.Close())
	}
	return errors.Trace(err)
}
