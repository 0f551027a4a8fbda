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

	"github.com/gorse-io/meeple/storage/data"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
)

// GameCatalog reads game metadata through a short lived cache, so rendering a
// long list does not hit the rating store once per game.
type GameCatalog struct {
	database data.Database
	cache    *ttlcache.Cache[int64, data.Game]
}

// NewGameCatalog creates a catalog. A zero ttl disables caching.
func NewGameCatalog(database data.Database, ttl time.Duration) *GameCatalog {
	c := &GameCatalog{database: database}
	if ttl > 0 {
		c.cache = ttlcache.New[int64, data.Game](
			ttlcache.WithTTL[int64, data.Game](ttl),
			ttlcache.WithDisableTouchOnHit[int64, data.Game](),
		)
	}
	return c
}

// GetGame returns metadata of a game or data.ErrGameNotExist.
func (c *GameCatalog) GetGame(ctx context.Context, gameId int64) (data.Game, error) {
	if c.cache != nil {
		if item := c.cache.Get(gameId); item != nil {
			return item.Value(), nil
		}
	}
	game, err := c.database.GetGame(ctx, gameId)
	if err != nil {
		return data.Game{}, errors.Trace(err)
	}
	if c.cache != nil {
		c.cache.Set(gameId, game, ttlcache.DefaultTTL)
	}
	return game, nil
}

func (c *GameCatalog) Len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}
