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
	"fmt"
	"sync"

	"github.com/gorse-io/meeple/config"
	"github.com/gorse-io/meeple/storage/blob"
	"github.com/gorse-io/meeple/storage/cache"
	"github.com/gorse-io/meeple/storage/data"
	"github.com/stretchr/testify/suite"
)

// baseTestSuite provides a SQLite rating store with a small game catalog and
// a recommendation cache backed by a local directory.
type baseTestSuite struct {
	suite.Suite
	database data.Database
	store    blob.Store
	catalog  *GameCatalog
	renderer *Renderer

	mu       sync.Mutex
	computed map[string]int
	lists    map[string][]cache.Score
}

func (suite *baseTestSuite) SetupSuite() {
	var err error
	suite.database, err = data.Open(fmt.Sprintf("sqlite://%s/meeple.db", suite.T().TempDir()), "")
	suite.Require().NoError(err)
	suite.Require().NoError(suite.database.Init())
}

func (suite *baseTestSuite) TearDownSuite() {
	suite.NoError(suite.database.Close())
}

func (suite *baseTestSuite) SetupTest() {
	ctx := context.Background()
	suite.Require().NoError(suite.database.Purge())
	suite.Require().NoError(suite.database.BatchInsertGames(ctx, []data.Game{
		{Id: 10, Name: "Catan", MinPlayers: 3, MaxPlayers: 4, Age: 10, NumRatings: 300},
		{Id: 20, Name: "Carcassonne", MinPlayers: 2, MaxPlayers: 5, Age: 7, NumRatings: 250},
		{Id: 30, Name: "Patchwork", MinPlayers: 2, MaxPlayers: 2, Age: 8, NumRatings: 200},
		{Id: 40, Name: "Azul", MinPlayers: 2, MaxPlayers: 4, Age: 8, NumRatings: 150},
		{Id: 50, Name: "Codenames", MinPlayers: 5, MaxPlayers: 8, Age: 14, NumRatings: 100},
	}))
	suite.store = blob.NewPOSIX(suite.T().TempDir())
	suite.catalog = NewGameCatalog(suite.database, 0)
	filter, err := NewGameFilter("")
	suite.Require().NoError(err)
	suite.renderer = NewRenderer(suite.catalog, filter, suite.store)
	suite.computed = make(map[string]int)
	suite.lists = make(map[string][]cache.Score)
}

// stubComputer returns lists registered in suite.lists and counts engine runs.
func (suite *baseTestSuite) stubComputer() cache.Computer {
	return cache.ComputerFunc(func(_ context.Context, identity string) ([]cache.Score, error) {
		suite.mu.Lock()
		defer suite.mu.Unlock()
		suite.computed[identity]++
		return suite.lists[identity], nil
	})
}

func (suite *baseTestSuite) addUser(name string, ratings map[int64]float64) int64 {
	ctx := context.Background()
	userId, err := suite.database.AddUser(ctx, name, false)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.database.InsertUserRatings(ctx, userId, ratings))
	return userId
}

func (suite *baseTestSuite) newGroupRecommender(recommendations *cache.Recommendations, minCoverage int) *GroupRecommender {
	return NewGroupRecommender(suite.database, recommendations, suite.renderer, config.GroupConfig{MinCoverage: minCoverage})
}
