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
	"testing"
	"time"

	"github.com/gorse-io/meeple/storage/blob"
	"github.com/gorse-io/meeple/storage/cache"
	"github.com/gorse-io/meeple/storage/data"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestGameFilterPlayers(t *testing.T) {
	filter, err := NewGameFilter("")
	assert.NoError(t, err)
	a := data.Game{Id: 1, Name: "A", MinPlayers: 2, MaxPlayers: 4}
	b := data.Game{Id: 2, Name: "B", MinPlayers: 5, MaxPlayers: 8}
	ok, err := filter.Match(a, 3)
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = filter.Match(b, 3)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestGameFilterExpression(t *testing.T) {
	filter, err := NewGameFilter("game.Age <= 10 && players < game.MaxPlayers")
	assert.NoError(t, err)
	ok, err := filter.Match(data.Game{MinPlayers: 2, MaxPlayers: 4, Age: 8}, 3)
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = filter.Match(data.Game{MinPlayers: 2, MaxPlayers: 4, Age: 12}, 3)
	assert.NoError(t, err)
	assert.False(t, ok)
	ok, err = filter.Match(data.Game{MinPlayers: 2, MaxPlayers: 4, Age: 8}, 4)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = NewGameFilter("game.Age + 1")
	assert.True(t, errors.Is(err, errors.NotValid), err)
	_, err = NewGameFilter("game.Weight > 2")
	assert.Error(t, err)
}

func TestResultName(t *testing.T) {
	assert.Equal(t, "results/group_min_alice_bob_result", ResultName("group_min_alice_bob"))
	assert.Equal(t, "results/a%2Fb_result", ResultName("a/b"))
}

type RendererTestSuite struct {
	baseTestSuite
}

func (suite *RendererTestSuite) TestFilterAndRender() {
	ctx := context.Background()
	missing := testutil.ToFloat64(MissingMetadataTotal)
	entries, err := suite.renderer.FilterAndRender(ctx, "alice", []cache.Score{
		{ItemId: 50, Score: 9.25},
		{ItemId: 20, Score: 8},
		{ItemId: 77, Score: 7.5},
		{ItemId: 10, Score: 7},
		{ItemId: 30, Score: 6},
	}, 3)
	suite.NoError(err)
	suite.Equal([]RenderedEntry{
		{GameId: 20, Name: "Carcassonne", Score: 8},
		{GameId: 10, Name: "Catan", Score: 7},
	}, entries)
	suite.Equal(missing+1, testutil.ToFloat64(MissingMetadataTotal))
	content, err := blob.ReadAll(ctx, suite.store, ResultName("alice"))
	suite.NoError(err)
	suite.Equal("8;Carcassonne\n7;Catan\n", string(content))

	// an empty selection still replaces the result
	entries, err = suite.renderer.FilterAndRender(ctx, "alice", []cache.Score{{ItemId: 50, Score: 9}}, 3)
	suite.NoError(err)
	suite.Empty(entries)
	content, err = blob.ReadAll(ctx, suite.store, ResultName("alice"))
	suite.NoError(err)
	suite.Empty(content)
}

func (suite *RendererTestSuite) TestGameCatalog() {
	ctx := context.Background()
	catalog := NewGameCatalog(suite.database, time.Minute)
	game, err := catalog.GetGame(ctx, 10)
	suite.NoError(err)
	suite.Equal("Catan", game.Name)
	suite.Equal(1, catalog.Len())

	// cached metadata survives a change in the store
	suite.NoError(suite.database.BatchInsertGames(ctx, []data.Game{{Id: 10, Name: "Catan (5th edition)", MinPlayers: 3, MaxPlayers: 4}}))
	game, err = catalog.GetGame(ctx, 10)
	suite.NoError(err)
	suite.Equal("Catan", game.Name)
	game, err = suite.catalog.GetGame(ctx, 10)
	suite.NoError(err)
	suite.Equal("Catan (5th edition)", game.Name)

	_, err = catalog.GetGame(ctx, 77)
	suite.True(errors.Is(err, data.ErrGameNotExist), err)
	suite.Equal(1, catalog.Len())
}

func TestRenderer(t *testing.T) {
	suite.Run(t, new(RendererTestSuite))
}
