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
	"bytes"
	"context"
	"net/url"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/storage/blob"
	"github.com/gorse-io/meeple/storage/cache"
	"github.com/gorse-io/meeple/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// ResultDirectory holds rendered group results inside the blob store.
const ResultDirectory = "results/"

// ResultName is the blob name of the rendered result of an identity.
func ResultName(identity string) string {
	return ResultDirectory + url.PathEscape(identity) + "_result"
}

// GameFilter decides whether a game suits the players. A game always has to
// support the player count. An optional expression over "game" and "players"
// narrows the selection further, e.g. "game.Age <= 10".
type GameFilter struct {
	program *vm.Program
}

func NewGameFilter(expression string) (*GameFilter, error) {
	f := &GameFilter{}
	if expression == "" {
		return f, nil
	}
	program, err := expr.Compile(expression, expr.Env(map[string]any{
		"game":    data.Game{},
		"players": 0,
	}), expr.AsBool())
	if err != nil {
		return nil, errors.NewNotValid(err, "game filter")
	}
	f.program = program
	return f, nil
}

func (f *GameFilter) Match(game data.Game, players int) (bool, error) {
	if !game.SupportsPlayers(players) {
		return false, nil
	}
	if f.program == nil {
		return true, nil
	}
	result, err := expr.Run(f.program, map[string]any{
		"game":    game,
		"players": players,
	})
	if err != nil {
		return false, errors.Trace(err)
	}
	return result.(bool), nil
}

// RenderedEntry is a game that survived filtering.
type RenderedEntry struct {
	GameId int64
	Name   string
	Score  float64
}

// Renderer filters recommendation lists by player count and writes survivors
// to the result store.
type Renderer struct {
	catalog *GameCatalog
	filter  *GameFilter
	store   blob.Store
}

func NewRenderer(catalog *GameCatalog, filter *GameFilter, store blob.Store) *Renderer {
	return &Renderer{catalog: catalog, filter: filter, store: store}
}

// FilterAndRender keeps games the players can play, in the given order, and
// writes one "score;game_name" line per game to ResultName(identity). Games
// without metadata are skipped.
func (r *Renderer) FilterAndRender(ctx context.Context, identity string, scores []cache.Score, players int) ([]RenderedEntry, error) {
	var (
		entries []RenderedEntry
		buf     bytes.Buffer
	)
	for _, s := range scores {
		game, err := r.catalog.GetGame(ctx, s.ItemId)
		if errors.Is(err, data.ErrGameNotExist) {
			MissingMetadataTotal.Inc()
			log.Logger().Warn("skip game without metadata", zap.Int64("game_id", s.ItemId), zap.String("identity", identity))
			continue
		} else if err != nil {
			return nil, collaboratorError(ratingStore, "get game", err)
		}
		ok, err := r.filter.Match(game, players)
		if err != nil {
			log.Logger().Warn("failed to evaluate game filter", zap.Int64("game_id", s.ItemId), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		entries = append(entries, RenderedEntry{GameId: game.Id, Name: game.Name, Score: s.Score})
		buf.WriteString(strconv.FormatFloat(s.Score, 'g', -1, 64))
		buf.WriteString(cache.Delimiter)
		buf.WriteString(game.Name)
		buf.WriteByte('\n')
	}
	if err := blob.WriteAll(ctx, r.store, ResultName(identity), buf.Bytes()); err != nil {
		return nil, collaboratorError(cacheStore, "write result", err)
	}
	return entries, nil
}
