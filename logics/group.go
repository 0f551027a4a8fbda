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
	"strings"

	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/config"
	"github.com/gorse-io/meeple/storage/cache"
	"github.com/gorse-io/meeple/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// GroupIdentity is the name of the virtual user holding merged ratings of a group.
func GroupIdentity(strategy MergeStrategy, groupName string) string {
	return "group_" + strategy.String() + "_" + groupName
}

// MergedRecommendationsIdentity names rendered results of merge-recommendations.
// No user is created for it.
func MergedRecommendationsIdentity(strategy MergeStrategy, groupName string) string {
	return "merged_" + strategy.String() + "_" + groupName
}

type GroupRequest struct {
	// Members are user names. Duplicates are ignored.
	Members []string
	// GroupName defaults to member names joined by "_".
	GroupName string
	Strategy  MergeStrategy
	// PlayerCount defaults to the number of members.
	PlayerCount int
}

// Normalize removes duplicate members and fills in defaults.
func (r GroupRequest) Normalize() (GroupRequest, error) {
	r.Members = lo.Uniq(r.Members)
	if len(r.Members) == 0 {
		return r, errors.Annotate(ErrEmptyGroup, "no members")
	}
	if r.GroupName == "" {
		r.GroupName = strings.Join(r.Members, "_")
	}
	if r.PlayerCount <= 0 {
		r.PlayerCount = len(r.Members)
	}
	return r, nil
}

// Identity returns the name of the virtual user of the group.
func (r GroupRequest) Identity() (string, error) {
	r, err := r.Normalize()
	if err != nil {
		return "", errors.Trace(err)
	}
	return GroupIdentity(r.Strategy, r.GroupName), nil
}

type GroupResult struct {
	Identity        string
	UserId          int64
	Ratings         map[int64]float64
	Recommendations []cache.Score
	Rendered        []RenderedEntry
}

// GroupRecommender recommends games to groups, either by merging ratings into a
// virtual user (merge-users) or by merging individual recommendation lists
// (merge-recommendations).
type GroupRecommender struct {
	database        data.Database
	recommendations *cache.Recommendations
	renderer        *Renderer
	minCoverage     int
	locks           *KeyedMutex
	tracer          trace.Tracer
}

func NewGroupRecommender(database data.Database, recommendations *cache.Recommendations, renderer *Renderer, cfg config.GroupConfig) *GroupRecommender {
	return &GroupRecommender{
		database:        database,
		recommendations: recommendations,
		renderer:        renderer,
		minCoverage:     max(cfg.MinCoverage, 1),
		locks:           NewKeyedMutex(),
		tracer:          otel.Tracer("github.com/gorse-io/meeple/logics"),
	}
}

func (g *GroupRecommender) resolveMembers(ctx context.Context, names []string) ([]data.User, error) {
	users := make([]data.User, 0, len(names))
	for _, name := range names {
		user, err := g.database.GetUser(ctx, name)
		if err != nil {
			return nil, collaboratorError(ratingStore, "get user", err)
		}
		users = append(users, user)
	}
	return users, nil
}

// MergeUsers merges ratings of members into a virtual group user, recommends
// games to it and renders the games the group can play.
func (g *GroupRecommender) MergeUsers(ctx context.Context, req GroupRequest) (*GroupResult, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, errors.Trace(err)
	}
	GroupRequestsTotal.WithLabelValues("merge_users", req.Strategy.String()).Inc()
	ctx, span := g.tracer.Start(ctx, "MergeUsers", trace.WithAttributes(
		attribute.String("strategy", req.Strategy.String()),
		attribute.StringSlice("members", req.Members)))
	defer span.End()

	// resolve members
	members, err := g.resolveMembers(ctx, req.Members)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ratings := make(map[int64][]data.Rating, len(members))
	for _, member := range members {
		memberRatings, err := g.database.GetUserRatings(ctx, member.Id)
		if err != nil {
			return nil, collaboratorError(ratingStore, "get user ratings", err)
		}
		ratings[member.Id] = memberRatings
	}

	// pivot and merge before anything is written
	merged, err := Merge(PivotRatings(ratings).Covered(g.minCoverage), req.Strategy)
	if err != nil {
		return nil, errors.Trace(err)
	}

	result := &GroupResult{
		Identity: GroupIdentity(req.Strategy, req.GroupName),
		Ratings:  merged,
	}
	if err = g.persistAndRecommend(ctx, result); err != nil {
		return nil, errors.Trace(err)
	}

	// recommendations are cached already, so a failure here costs no engine run
	result.Rendered, err = g.renderer.FilterAndRender(ctx, result.Identity, result.Recommendations, req.PlayerCount)
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("merge users",
		zap.String("identity", result.Identity),
		zap.Int("ratings", len(merged)),
		zap.Int("recommendations", len(result.Recommendations)),
		zap.Int("rendered", len(result.Rendered)))
	return result, nil
}

// persistAndRecommend resolves the group user, overwrites its ratings and
// recommends games to it while holding the lock of the identity.
func (g *GroupRecommender) persistAndRecommend(ctx context.Context, result *GroupResult) error {
	unlock := g.locks.Lock(result.Identity)
	defer unlock()

	userId, err := g.database.AddUser(ctx, result.Identity, true)
	if errors.Is(err, data.ErrNameUnavailable) {
		user, err := g.database.GetUser(ctx, result.Identity)
		if err != nil {
			return collaboratorError(ratingStore, "get user", err)
		}
		if !user.Virtual {
			return errors.Annotatef(data.ErrNameUnavailable, "%s is taken by a real user", result.Identity)
		}
		userId = user.Id
	} else if err != nil {
		return collaboratorError(ratingStore, "add user", err)
	}
	result.UserId = userId

	if err = g.database.ReplaceUserRatings(ctx, userId, result.Ratings); err != nil {
		return collaboratorError(ratingStore, "replace user ratings", err)
	}
	result.Recommendations, err = g.recommendations.GetOrCompute(ctx, result.Identity)
	if err != nil {
		return collaboratorError(cacheStore, "get or compute", err)
	}
	return nil
}

// MergeRecommendations merges individual recommendation lists of members. No
// virtual user is created and nothing is filtered or written.
func (g *GroupRecommender) MergeRecommendations(ctx context.Context, req GroupRequest) (map[int64]float64, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, errors.Trace(err)
	}
	GroupRequestsTotal.WithLabelValues("merge_recommendations", req.Strategy.String()).Inc()
	ctx, span := g.tracer.Start(ctx, "MergeRecommendations", trace.WithAttributes(
		attribute.String("strategy", req.Strategy.String()),
		attribute.StringSlice("members", req.Members)))
	defer span.End()

	members, err := g.resolveMembers(ctx, req.Members)
	if err != nil {
		return nil, errors.Trace(err)
	}
	lists := make(map[int64][]cache.Score, len(members))
	for _, member := range members {
		list, err := g.recommendations.GetOrCompute(ctx, member.Name)
		if err != nil {
			return nil, collaboratorError(cacheStore, "get or compute", err)
		}
		lists[member.Id] = list
	}
	merged, err := Merge(Pivot(lists).Covered(g.minCoverage), req.Strategy)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return merged, nil
}

// FilterAndRender exposes the render step for merge-recommendations callers
// wanting the same output as merge-users.
func (g *GroupRecommender) FilterAndRender(ctx context.Context, identity string, scores []cache.Score, players int) ([]RenderedEntry, error) {
	return g.renderer.FilterAndRender(ctx, identity, scores, players)
}
