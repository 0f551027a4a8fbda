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
	"cmp"
	"slices"

	"github.com/gorse-io/meeple/storage/cache"
	"github.com/gorse-io/meeple/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

var ErrEmptyGroup = errors.NotValidf("empty group")

// MergeStrategy reduces the scores of group members for one game.
type MergeStrategy int

const (
	MergeMin MergeStrategy = iota // least misery
	MergeMax                      // most pleasure
	MergeAvg
)

var mergeStrategyLabels = map[MergeStrategy]string{
	MergeMin: "min",
	MergeMax: "max",
	MergeAvg: "avg",
}

// MergeStrategies in the column order of evaluation exports.
var MergeStrategies = []MergeStrategy{MergeAvg, MergeMax, MergeMin}

func (s MergeStrategy) String() string {
	if label, ok := mergeStrategyLabels[s]; ok {
		return label
	}
	return "unknown"
}

// ParseMergeStrategy parses a label. "mean" is accepted for "avg".
func ParseMergeStrategy(label string) (MergeStrategy, error) {
	if label == "mean" {
		return MergeAvg, nil
	}
	for strategy, l := range mergeStrategyLabels {
		if l == label {
			return strategy, nil
		}
	}
	return 0, errors.NotValidf("merge strategy %q", label)
}

// Reduce merges scores into one. Scores are visited in order, so the first
// minimum or maximum wins and sums are accumulated left to right.
func (s MergeStrategy) Reduce(scores []float64) (float64, error) {
	if len(scores) == 0 {
		return 0, errors.Trace(ErrEmptyGroup)
	}
	result := scores[0]
	switch s {
	case MergeMin:
		for _, score := range scores[1:] {
			if score < result {
				result = score
			}
		}
	case MergeMax:
		for _, score := range scores[1:] {
			if score > result {
				result = score
			}
		}
	case MergeAvg:
		for _, score := range scores[1:] {
			result += score
		}
		result /= float64(len(scores))
	default:
		return 0, errors.NotValidf("merge strategy %d", int(s))
	}
	return result, nil
}

// Matrix maps a game id to the scores of group members keyed by member id.
// A member missing a game has no entry for it.
type Matrix map[int64]map[int64]float64

func (m Matrix) set(itemId, memberId int64, score float64) {
	members, ok := m[itemId]
	if !ok {
		members = make(map[int64]float64)
		m[itemId] = members
	}
	members[memberId] = score
}

// Pivot builds a matrix from recommendation lists keyed by member id.
func Pivot(lists map[int64][]cache.Score) Matrix {
	m := make(Matrix)
	for memberId, list := range lists {
		for _, s := range list {
			m.set(s.ItemId, memberId, s.Score)
		}
	}
	return m
}

// PivotRatings builds a matrix from ratings keyed by member id.
func PivotRatings(ratings map[int64][]data.Rating) Matrix {
	m := make(Matrix)
	for memberId, list := range ratings {
		for _, r := range list {
			m.set(r.GameId, memberId, r.Score)
		}
	}
	return m
}

// Covered keeps games scored by at least minCoverage members. With
// minCoverage 1 a game scored by a single member stays as a group of one.
func (m Matrix) Covered(minCoverage int) Matrix {
	return lo.PickBy(m, func(_ int64, members map[int64]float64) bool {
		return len(members) >= minCoverage
	})
}

// Merge reduces every game of the matrix with a strategy. Members are visited
// in ascending id. Exactly one score is returned per game.
func Merge(m Matrix, strategy MergeStrategy) (map[int64]float64, error) {
	merged := make(map[int64]float64, len(m))
	for itemId, members := range m {
		memberIds := lo.Keys(members)
		slices.Sort(memberIds)
		scores := lo.Map(memberIds, func(memberId int64, _ int) float64 {
			return members[memberId]
		})
		score, err := strategy.Reduce(scores)
		if err != nil {
			return nil, errors.Annotatef(err, "game %d", itemId)
		}
		merged[itemId] = score
	}
	return merged, nil
}

// Ranked orders merged scores by score descending, then game id ascending.
func Ranked(merged map[int64]float64) []cache.Score {
	scores := lo.MapToSlice(merged, func(itemId int64, score float64) cache.Score {
		return cache.Score{ItemId: itemId, Score: score}
	})
	slices.SortFunc(scores, func(a, b cache.Score) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ItemId, b.ItemId)
	})
	return scores
}
