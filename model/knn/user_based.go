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
// Package knn implements a user-based k-nearest-neighbor recommender over
// explicit ratings.
package knn

import (
	"cmp"
	"math"
	"slices"

	"github.com/juju/errors"
)

var ErrUserNotExist = errors.NotFoundf("user")

type Config struct {
	Similarity     string
	NumNeighbors   int
	MinCommonItems int
}

// Prediction is a predicted score of an item.
type Prediction struct {
	ItemId int64
	Score  float64
}

type neighbor struct {
	userId     int64
	similarity float64
	ratings    map[int64]float64
}

// UserBased predicts the score of an item as the similarity weighted mean of
// the scores given by the most similar users who rated it:
//
//	score(u, i) = Σ sim(u, v) r(v, i) / Σ |sim(u, v)|
type UserBased struct {
	Config
	similarity SimilarityFunc
	dataset    *DataSet
}

func NewUserBased(cfg Config) *UserBased {
	if cfg.NumNeighbors <= 0 {
		cfg.NumNeighbors = 20
	}
	if cfg.MinCommonItems <= 0 {
		cfg.MinCommonItems = 1
	}
	return &UserBased{
		Config:     cfg,
		similarity: similarityFunc(cfg.Similarity),
	}
}

func (m *UserBased) Fit(dataset *DataSet) {
	m.dataset = dataset
}

// neighbors returns users with positive similarity to the target, most similar
// first. Ties are ordered by user id.
func (m *UserBased) neighbors(userId int64, target map[int64]float64) []neighbor {
	targetItems := sortedItems(target)
	var result []neighbor
	for _, otherId := range m.dataset.UserIds() {
		if otherId == userId {
			continue
		}
		other, _ := m.dataset.UserRatings(otherId)
		var a, b []float64
		for _, itemId := range targetItems {
			if otherScore, ok := other[itemId]; ok {
				a = append(a, target[itemId])
				b = append(b, otherScore)
			}
		}
		if len(a) < m.MinCommonItems {
			continue
		}
		sim := m.similarity(a, b)
		if math.IsNaN(sim) || sim <= 0 {
			continue
		}
		result = append(result, neighbor{userId: otherId, similarity: sim, ratings: other})
	}
	slices.SortFunc(result, func(x, y neighbor) int {
		if c := cmp.Compare(y.similarity, x.similarity); c != 0 {
			return c
		}
		return cmp.Compare(x.userId, y.userId)
	})
	return result
}

// Recommend predicts scores of every item the user has not rated, ordered by
// score descending then item id ascending.
func (m *UserBased) Recommend(userId int64) ([]Prediction, error) {
	if m.dataset == nil {
		return nil, errors.NotAssignedf("dataset")
	}
	target, ok := m.dataset.UserRatings(userId)
	if !ok {
		return nil, errors.Annotatef(ErrUserNotExist, "user %d", userId)
	}
	neighbors := m.neighbors(userId, target)

	candidates := make(map[int64]float64)
	for _, n := range neighbors {
		for itemId := range n.ratings {
			if _, rated := target[itemId]; !rated {
				candidates[itemId] = 0
			}
		}
	}

	predictions := make([]Prediction, 0, len(candidates))
	for _, itemId := range sortedItems(candidates) {
		var sum, weight float64
		k := 0
		for _, n := range neighbors {
			if k >= m.NumNeighbors {
				break
			}
			score, rated := n.ratings[itemId]
			if !rated {
				continue
			}
			sum += n.similarity * score
			weight += math.Abs(n.similarity)
			k++
		}
		if weight == 0 {
			continue
		}
		prediction := sum / weight
		if math.IsNaN(prediction) || math.IsInf(prediction, 0) {
			continue
		}
		predictions = append(predictions, Prediction{ItemId: itemId, Score: prediction})
	}
	slices.SortFunc(predictions, func(a, b Prediction) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ItemId, b.ItemId)
	})
	return predictions, nil
}
