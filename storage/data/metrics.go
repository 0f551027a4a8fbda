// Copyright 2022 gorse Project Authors
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

package data

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AddUserSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meeple",
		Subsystem: "database",
		Name:      "add_user_seconds",
	})
	GetUserSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meeple",
		Subsystem: "database",
		Name:      "get_user_seconds",
	})
	GetGameSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meeple",
		Subsystem: "database",
		Name:      "get_game_seconds",
	})
	GetUserRatingsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meeple",
		Subsystem: "database",
		Name:      "get_user_ratings_seconds",
	})
	InsertUserRatingsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meeple",
		Subsystem: "database",
		Name:      "insert_user_ratings_seconds",
	})
	ReplaceUserRatingsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meeple",
		Subsystem: "database",
		Name:      "replace_user_ratings_seconds",
	})
	GetRatingsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meeple",
		Subsystem: "database",
		Name:      "get_ratings_seconds",
	})
)

// instrumented records the latency of the operations on the request path.
type instrumented struct {
	Database
}

func newInstrumented(database Database) Database {
	return &instrumented{Database: database}
}

func observe(h prometheus.Histogram, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (m *instrumented) AddUser(ctx context.Context, name string, virtual bool) (int64, error) {
	defer observe(AddUserSeconds, time.Now())
	return m.Database.AddUser(ctx, name, virtual)
}

func (m *instrumented) GetUser(ctx context.Context, name string) (User, error) {
	defer observe(GetUserSeconds, time.Now())
	return m.Database.GetUser(ctx, name)
}

func (m *instrumented) GetGame(ctx context.Context, gameId int64) (Game, error) {
	defer observe(GetGameSeconds, time.Now())
	return m.Database.GetGame(ctx, gameId)
}

func (m *instrumented) GetUserRatings(ctx context.Context, userId int64) ([]Rating, error) {
	defer observe(GetUserRatingsSeconds, time.Now())
	return m.Database.GetUserRatings(ctx, userId)
}

func (m *instrumented) InsertUserRatings(ctx context.Context, userId int64, ratings map[int64]float64) error {
	defer observe(InsertUserRatingsSeconds, time.Now())
	return m.Database.InsertUserRatings(ctx, userId, ratings)
}

func (m *instrumented) ReplaceUserRatings(ctx context.Context, userId int64, ratings map[int64]float64) error {
	defer observe(ReplaceUserRatingsSeconds, time.Now())
	return m.Database.ReplaceUserRatings(ctx, userId, ratings)
}

func (m *instrumented) GetRatings(ctx context.Context, minGameRatings int) ([]Rating, error) {
	defer observe(GetRatingsSeconds, time.Now())
	return m.Database.GetRatings(ctx, minGameRatings)
}
