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
	"encoding/csv"
	"io"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/meeple/storage/cache"
	"github.com/gorse-io/meeple/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Evaluation compares recommendations of one group: the ratings and individual
// recommendations of each member, then the three merge-users lists and the
// three merge-recommendations results.
type Evaluation struct {
	GroupName string
	Header    []string
	GameIds   []int64
	// Columns follow Header without the leading game_id column.
	Columns []map[int64]float64
}

// WriteTSV writes the evaluation as tab separated values. Rows are sorted by
// game id and missing values are empty.
func (e *Evaluation) WriteTSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	writer.Comma = '\t'
	if err := writer.Write(e.Header); err != nil {
		return errors.Trace(err)
	}
	for _, gameId := range e.GameIds {
		row := []string{strconv.FormatInt(gameId, 10)}
		for _, column := range e.Columns {
			if score, ok := column[gameId]; ok {
				row = append(row, strconv.FormatFloat(score, 'g', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := writer.Write(row); err != nil {
			return errors.Trace(err)
		}
	}
	writer.Flush()
	return errors.Trace(writer.Error())
}

type Evaluator struct {
	database        data.Database
	recommendations *cache.Recommendations
	group           *GroupRecommender
}

func NewEvaluator(database data.Database, recommendations *cache.Recommendations, group *GroupRecommender) *Evaluator {
	return &Evaluator{database: database, recommendations: recommendations, group: group}
}

func scoreMap(scores []cache.Score) map[int64]float64 {
	return lo.SliceToMap(scores, func(s cache.Score) (int64, float64) {
		return s.ItemId, s.Score
	})
}

// Evaluate runs every strategy for the group of users.
func (e *Evaluator) Evaluate(ctx context.Context, members []int64) (*Evaluation, error) {
	if len(members) == 0 {
		return nil, errors.Trace(ErrEmptyGroup)
	}
	var (
		names   []string
		columns []map[int64]float64
	)
	for _, memberId := range members {
		user, err := e.database.GetUserById(ctx, memberId)
		if err != nil {
			return nil, collaboratorError(ratingStore, "get user", err)
		}
		names = append(names, user.Name)
		ratings, err := e.database.GetUserRatings(ctx, memberId)
		if err != nil {
			return nil, collaboratorError(ratingStore, "get user ratings", err)
		}
		recommendations, err := e.recommendations.GetOrCompute(ctx, user.Name)
		if err != nil {
			return nil, collaboratorError(cacheStore, "get or compute", err)
		}
		column := scoreMap(recommendations)
		for _, r := range ratings {
			column[r.GameId] = r.Score
		}
		columns = append(columns, column)
	}

	groupName := strings.Join(names, "_")
	header := append([]string{"game_id"}, names...)
	for _, strategy := range MergeStrategies {
		result, err := e.group.MergeUsers(ctx, GroupRequest{
			Members:   names,
			GroupName: groupName,
			Strategy:  strategy,
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
		header = append(header, "merge_usr_"+strategy.String())
		columns = append(columns, scoreMap(result.Recommendations))
	}
	for _, strategy := range MergeStrategies {
		merged, err := e.group.MergeRecommendations(ctx, GroupRequest{
			Members:   names,
			GroupName: groupName,
			Strategy:  strategy,
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
		header = append(header, "merge_rec_"+strategy.String())
		columns = append(columns, merged)
	}

	gameIds := mapset.NewThreadUnsafeSet[int64]()
	for _, column := range columns {
		for gameId := range column {
			gameIds.Add(gameId)
		}
	}
	sorted := gameIds.ToSlice()
	slices.Sort(sorted)
	return &Evaluation{
		GroupName: groupName,
		Header:    header,
		GameIds:   sorted,
		Columns:   columns,
	}, nil
}

// RandomGroups draws n groups of 2 to maxSize distinct real users.
func RandomGroups(users []data.User, n, maxSize int, rng *rand.Rand) ([][]int64, error) {
	candidates := lo.Filter(users, func(u data.User, _ int) bool { return !u.Virtual })
	if len(candidates) < 2 {
		return nil, errors.NotValidf("%d real users, at least 2 are required", len(candidates))
	}
	maxSize = min(max(maxSize, 2), len(candidates))
	groups := make([][]int64, 0, n)
	for i := 0; i < n; i++ {
		size := 2 + rng.IntN(maxSize-1)
		perm := rng.Perm(len(candidates))[:size]
		groups = append(groups, lo.Map(perm, func(j int, _ int) int64 {
			return candidates[j].Id
		}))
	}
	return groups, nil
}
