// Copyright 2020 gorse Project Authors
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
	"fmt"
	"testing"

	"github.com/jaswdr/faker"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database
}

func (suite *baseTestSuite) SetupTest() {
	err := suite.Database.Ping()
	suite.NoError(err)
	err = suite.Database.Purge()
	suite.NoError(err)
}

func (suite *baseTestSuite) TearDownTest() {
	err := suite.Database.Purge()
	suite.NoError(err)
}

func (suite *baseTestSuite) TestInit() {
	err := suite.Database.Init()
	suite.NoError(err)
}

func (suite *baseTestSuite) addUsers(n int) []int64 {
	ctx := context.Background()
	fake := faker.New()
	ids := make([]int64, n)
	for i := range ids {
		id, err := suite.Database.AddUser(ctx, fmt.Sprintf("%s_%d", fake.Person().FirstName(), i), false)
		suite.NoError(err)
		ids[i] = id
	}
	return ids
}

func (suite *baseTestSuite) TestUsers() {
	ctx := context.Background()
	aliceId, err := suite.Database.AddUser(ctx, "alice", false)
	suite.NoError(err)
	bobId, err := suite.Database.AddUser(ctx, "bob", false)
	suite.NoError(err)
	suite.NotEqual(aliceId, bobId)
	groupId, err := suite.Database.AddUser(ctx, "group_avg_alice_bob", true)
	suite.NoError(err)

	// names are unique
	_, err = suite.Database.AddUser(ctx, "alice", false)
	suite.True(errors.Is(err, ErrNameUnavailable), err)
	_, err = suite.Database.AddUser(ctx, "group_avg_alice_bob", true)
	suite.True(errors.Is(err, ErrNameUnavailable), err)

	user, err := suite.Database.GetUser(ctx, "alice")
	suite.NoError(err)
	suite.Equal(User{Id: aliceId, Name: "alice"}, user)
	user, err = suite.Database.GetUserById(ctx, groupId)
	suite.NoError(err)
	suite.Equal(User{Id: groupId, Name: "group_avg_alice_bob", Virtual: true}, user)
	_, err = suite.Database.GetUser(ctx, "carol")
	suite.True(errors.Is(err, ErrUserNotExist), err)
	_, err = suite.Database.GetUserById(ctx, groupId+100)
	suite.True(errors.Is(err, ErrUserNotExist), err)

	users, err := suite.Database.GetUsers(ctx)
	suite.NoError(err)
	suite.Equal([]string{"alice", "bob", "group_avg_alice_bob"}, lo.Map(users, func(u User, _ int) string { return u.Name }))
}

func (suite *baseTestSuite) TestGames() {
	ctx := context.Background()
	games := []Game{
		{Id: 13, Name: "Catan", YearPublished: 1995, MinPlayers: 3, MaxPlayers: 4, Age: 10, NumRatings: 100, AvgRating: 7.1, BestNumPlayers: 4, LangDependence: "Some necessary text"},
		{Id: 822, Name: "Carcassonne", YearPublished: 2000, MinPlayers: 2, MaxPlayers: 5, Age: 8, NumRatings: 90, AvgRating: 7.4},
	}
	err := suite.Database.BatchInsertGames(ctx, games)
	suite.NoError(err)
	game, err := suite.Database.GetGame(ctx, 13)
	suite.NoError(err)
	suite.Equal(games[0], game)

	// overwrite
	err = suite.Database.BatchInsertGames(ctx, []Game{{Id: 822, Name: "Carcassonne", MinPlayers: 2, MaxPlayers: 6}})
	suite.NoError(err)
	game, err = suite.Database.GetGame(ctx, 822)
	suite.NoError(err)
	suite.Equal(6, game.MaxPlayers)

	_, err = suite.Database.GetGame(ctx, 1)
	suite.True(errors.Is(err, ErrGameNotExist), err)
	suite.NoError(suite.Database.BatchInsertGames(ctx, nil))
}

func (suite *baseTestSuite) TestUserRatings() {
	ctx := context.Background()
	userId, err := suite.Database.AddUser(ctx, "alice", false)
	suite.NoError(err)
	err = suite.Database.InsertUserRatings(ctx, userId, map[int64]float64{1: 7, 2: 9, 3: 7})
	suite.NoError(err)
	ratings, err := suite.Database.GetUserRatings(ctx, userId)
	suite.NoError(err)
	suite.Equal([]Rating{
		{UserId: userId, GameId: 2, Score: 9},
		{UserId: userId, GameId: 1, Score: 7},
		{UserId: userId, GameId: 3, Score: 7},
	}, ratings)

	// upsert keeps one rating per game
	err = suite.Database.InsertUserRatings(ctx, userId, map[int64]float64{1: 10, 4: 2})
	suite.NoError(err)
	ratings, err = suite.Database.GetUserRatings(ctx, userId)
	suite.NoError(err)
	suite.Equal([]Rating{
		{UserId: userId, GameId: 1, Score: 10},
		{UserId: userId, GameId: 2, Score: 9},
		{UserId: userId, GameId: 3, Score: 7},
		{UserId: userId, GameId: 4, Score: 2},
	}, ratings)

	// replace drops games missing from the new map
	err = suite.Database.ReplaceUserRatings(ctx, userId, map[int64]float64{5: 6.5, 2: 3})
	suite.NoError(err)
	ratings, err = suite.Database.GetUserRatings(ctx, userId)
	suite.NoError(err)
	suite.Equal([]Rating{
		{UserId: userId, GameId: 5, Score: 6.5},
		{UserId: userId, GameId: 2, Score: 3},
	}, ratings)
	err = suite.Database.ReplaceUserRatings(ctx, userId, nil)
	suite.NoError(err)
	ratings, err = suite.Database.GetUserRatings(ctx, userId)
	suite.NoError(err)
	suite.Empty(ratings)
}

func (suite *baseTestSuite) TestGetRatings() {
	ctx := context.Background()
	userIds := suite.addUsers(4)
	// game 1 is rated by 4 users, game 2 by 3 users, game 3 by 2 users
	for i, userId := range userIds {
		ratings := map[int64]float64{1: float64(i + 1)}
		if i < 3 {
			ratings[2] = 5
		}
		if i < 2 {
			ratings[3] = 8
		}
		suite.NoError(suite.Database.InsertUserRatings(ctx, userId, ratings))
	}
	ratings, err := suite.Database.GetRatings(ctx, 2)
	suite.NoError(err)
	suite.Len(ratings, 7)
	for _, rating := range ratings {
		suite.Contains([]int64{1, 2}, rating.GameId)
	}
	ratings, err = suite.Database.GetRatings(ctx, 3)
	suite.NoError(err)
	suite.Len(ratings, 4)
	ratings, err = suite.Database.GetRatings(ctx, 4)
	suite.NoError(err)
	suite.Empty(ratings)
}

func (suite *baseTestSuite) TestSuggestGames() {
	ctx := context.Background()
	suite.NoError(suite.Database.BatchInsertGames(ctx, []Game{
		{Id: 1, Name: "Ticket to Ride", NumRatings: 300},
		{Id: 2, Name: "Ticket to Ride: Europe", NumRatings: 200},
		{Id: 3, Name: "Pandemic", NumRatings: 250},
		{Id: 4, Name: "Obscure Ticket", NumRatings: 10},
	}))
	userIds := suite.addUsers(3)
	for _, userId := range userIds {
		suite.NoError(suite.Database.InsertUserRatings(ctx, userId, map[int64]float64{1: 8, 2: 7, 3: 6}))
	}
	suite.NoError(suite.Database.InsertUserRatings(ctx, userIds[0], map[int64]float64{4: 5}))
	aliceId, err := suite.Database.AddUser(ctx, "alice", false)
	suite.NoError(err)
	suite.NoError(suite.Database.InsertUserRatings(ctx, aliceId, map[int64]float64{3: 9}))

	games, err := suite.Database.SuggestGames(ctx, aliceId, 2, 10)
	suite.NoError(err)
	suite.Equal([]int64{1, 2}, lo.Map(games, func(g Game, _ int) int64 { return g.Id }))
	games, err = suite.Database.SuggestGames(ctx, aliceId, 2, 1)
	suite.NoError(err)
	suite.Equal([]int64{1}, lo.Map(games, func(g Game, _ int) int64 { return g.Id }))

	games, err = suite.Database.SearchGames(ctx, aliceId, "TICKET", 2)
	suite.NoError(err)
	suite.Equal([]int64{1, 2}, lo.Map(games, func(g Game, _ int) int64 { return g.Id }))
	games, err = suite.Database.SearchGames(ctx, aliceId, "pandemic", 2)
	suite.NoError(err)
	suite.Empty(games)
}

func TestClampRating(t *testing.T) {
	assert.Equal(t, 1.0, ClampRating(-3, 1, 10))
	assert.Equal(t, 10.0, ClampRating(11, 1, 10))
	assert.Equal(t, 7.5, ClampRating(7.5, 1, 10))
}

func TestSortRatings(t *testing.T) {
	ratings := []Rating{{GameId: 3, Score: 5}, {GameId: 1, Score: 5}, {GameId: 2, Score: 9}}
	SortRatings(ratings)
	assert.Equal(t, []Rating{{GameId: 2, Score: 9}, {GameId: 1, Score: 5}, {GameId: 3, Score: 5}}, ratings)
}

func TestSupportsPlayers(t *testing.T) {
	game := Game{MinPlayers: 2, MaxPlayers: 4}
	assert.False(t, game.SupportsPlayers(1))
	assert.True(t, game.SupportsPlayers(2))
	assert.True(t, game.SupportsPlayers(4))
	assert.False(t, game.SupportsPlayers(5))
}
