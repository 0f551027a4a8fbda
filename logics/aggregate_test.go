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
	"math/rand/v2"
	"testing"

	"github.com/gorse-io/meeple/storage/cache"
	"github.com/gorse-io/meeple/storage/data"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestMergeStrategyLabels(t *testing.T) {
	for _, strategy := range []MergeStrategy{MergeMin, MergeMax, MergeAvg} {
		parsed, err := ParseMergeStrategy(strategy.String())
		assert.NoError(t, err)
		assert.Equal(t, strategy, parsed)
	}
	assert.Equal(t, "min", MergeMin.String())
	assert.Equal(t, "avg", MergeAvg.String())
	parsed, err := ParseMergeStrategy("mean")
	assert.NoError(t, err)
	assert.Equal(t, MergeAvg, parsed)
	_, err = ParseMergeStrategy("median")
	assert.True(t, errors.Is(err, errors.NotValid), err)
	assert.Equal(t, "unknown", MergeStrategy(42).String())
}

func TestReduce(t *testing.T) {
	scores := []float64{7, 3, 9.5, 3}
	score, err := MergeMin.Reduce(scores)
	assert.NoError(t, err)
	assert.Equal(t, 3.0, score)
	score, err = MergeMax.Reduce(scores)
	assert.NoError(t, err)
	assert.Equal(t, 9.5, score)
	score, err = MergeAvg.Reduce(scores)
	assert.NoError(t, err)
	assert.Equal(t, 5.625, score)
	_, err = MergeStrategy(42).Reduce(scores)
	assert.Error(t, err)
}

func TestReduceEmpty(t *testing.T) {
	for _, strategy := range []MergeStrategy{MergeMin, MergeMax, MergeAvg} {
		_, err := strategy.Reduce(nil)
		assert.True(t, errors.Is(err, ErrEmptyGroup), err)
	}
}

func TestReduceOrdering(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		scores := make([]float64, rng.IntN(6)+1)
		for j := range scores {
			scores[j] = 1 + rng.Float64()*9
		}
		minimum, err := MergeMin.Reduce(scores)
		assert.NoError(t, err)
		maximum, err := MergeMax.Reduce(scores)
		assert.NoError(t, err)
		mean, err := MergeAvg.Reduce(scores)
		assert.NoError(t, err)
		assert.LessOrEqual(t, minimum, mean+1e-12)
		assert.LessOrEqual(t, mean, maximum+1e-12)
	}
}

func TestPivot(t *testing.T) {
	m := Pivot(map[int64][]cache.Score{
		1: {{ItemId: 10, Score: 8.5}, {ItemId: 20, Score: 6}},
		2: {{ItemId: 10, Score: 7}},
	})
	assert.Equal(t, Matrix{
		10: {1: 8.5, 2: 7},
		20: {1: 6},
	}, m)
}

func TestSingleMember(t *testing.T) {
	m := PivotRatings(map[int64][]data.Rating{
		1: {{UserId: 1, GameId: 10, Score: 9}, {UserId: 1, GameId: 20, Score: 5}},
	})
	for _, strategy := range []MergeStrategy{MergeMin, MergeMax, MergeAvg} {
		merged, err := Merge(m, strategy)
		assert.NoError(t, err)
		assert.Equal(t, map[int64]float64{10: 9, 20: 5}, merged)
	}
}

func aliceAndBob() Matrix {
	return PivotRatings(map[int64][]data.Rating{
		1: {{UserId: 1, GameId: 10, Score: 9}, {UserId: 1, GameId: 20, Score: 5}},
		2: {{UserId: 2, GameId: 10, Score: 3}, {UserId: 2, GameId: 30, Score: 7}},
	})
}

func TestMergeSingleCoverageKept(t *testing.T) {
	merged, err := Merge(aliceAndBob().Covered(1), MergeMin)
	assert.NoError(t, err)
	assert.Equal(t, map[int64]float64{10: 3, 20: 5, 30: 7}, merged)
}

func TestMergeSingleCoverageDropped(t *testing.T) {
	merged, err := Merge(aliceAndBob().Covered(2), MergeMin)
	assert.NoError(t, err)
	assert.Equal(t, map[int64]float64{10: 3}, merged)
}

func TestMergeEmptyItem(t *testing.T) {
	m := aliceAndBob()
	m[40] = map[int64]float64{}
	_, err := Merge(m, MergeAvg)
	assert.True(t, errors.Is(err, ErrEmptyGroup), err)
	assert.ErrorContains(t, err, "game 40")
}

func TestMergeKeepsItems(t *testing.T) {
	m := aliceAndBob()
	merged, err := Merge(m, MergeAvg)
	assert.NoError(t, err)
	assert.Len(t, merged, len(m))
	assert.Equal(t, 6.0, merged[10])
}

func TestRanked(t *testing.T) {
	assert.Equal(t, []cache.Score{
		{ItemId: 30, Score: 7},
		{ItemId: 10, Score: 3},
		{ItemId: 20, Score: 3},
	}, Ranked(map[int64]float64{20: 3, 10: 3, 30: 7}))
}
