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
package logics

import (
	"context"
	"time"

	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/config"
	"github.com/gorse-io/meeple/model/knn"
	"github.com/gorse-io/meeple/storage/cache"
	"github.com/gorse-io/meeple/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Individual runs the recommender engine for one user over the full ratings
// dataset. It computes lists for the recommendation cache.
type Individual struct {
	database data.Database
	cfg      config.RecommendConfig
}

func NewIndividual(database data.Database, cfg config.RecommendConfig) *Individual {
	return &Individual{database: database, cfg: cfg}
}

// Compute resolves the user named by identity, loads ratings of games rated by
// more than MinGameRatings users and predicts scores of unrated games. A user
// without ratings in the dataset gets an empty list.
func (i *Individual) Compute(ctx context.Context, identity string) ([]cache.Score, error) {
	user, err := i.database.GetUser(ctx, identity)
	if err != nil {
		return nil, collaboratorError(ratingStore, "get user", err)
	}
	ratings, err := i.database.GetRatings(ctx, i.cfg.MinGameRatings)
	if err != nil {
		return nil, collaboratorError(ratingStore, "get ratings", err)
	}
	dataset := knn.NewDataSet()
	for _, r := range ratings {
		dataset.Add(r.UserId, r.GameId, r.Score)
	}

	start := time.Now()
	model := knn.NewUserBased(knn.Config{
		Similarity:     i.cfg.Similarity,
		NumNeighbors:   i.cfg.NumNeighbors,
		MinCommonItems: i.cfg.MinCommonItems,
	})
	model.Fit(dataset)
	predictions, err := model.Recommend(user.Id)
	EngineRunsTotal.Inc()
	EngineSeconds.Observe(time.Since(start).Seconds())
	if errors.Is(err, knn.ErrUserNotExist) {
		log.Logger().Warn("user has no ratings of popular games",
			zap.String("identity", identity),
			zap.Int("min_game_ratings", i.cfg.MinGameRatings))
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(&CollaboratorError{Collaborator: engine, Op: "recommend", Err: err})
	}
	log.Logger().Debug("recommend games",
		zap.String("identity", identity),
		zap.Int("users", dataset.CountUsers()),
		zap.Int("ratings", dataset.CountRatings()),
		zap.Int("predictions", len(predictions)))
	return lo.Map(predictions, func(p knn.Prediction, _ int) cache.Score {
		return cache.Score{ItemId: p.ItemId, Score: p.Score}
	}), nil
}
