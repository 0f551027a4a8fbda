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
package main

import (
	"context"
	"os"
	"strconv"

	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/engine"
	"github.com/gorse-io/meeple/logics"
	"github.com/gorse-io/meeple/storage/cache"
	"github.com/gorse-io/meeple/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var recommendCommand = &cobra.Command{
	Use:   "recommend <name>",
	Short: "Recommend games to a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEngine(cmd)
		defer closeEngine(e)
		ctx := context.Background()
		if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
			evict(ctx, e, args[0])
		}
		scores, err := e.Cache.GetOrCompute(ctx, args[0])
		if err != nil {
			log.Logger().Fatal("failed to recommend games", zap.String("name", args[0]), zap.Error(err))
		}
		n, _ := cmd.Flags().GetInt("limit")
		if n > 0 && len(scores) > n {
			scores = scores[:n]
		}
		printScores(ctx, e, scores)
	},
}

var evictCommand = &cobra.Command{
	Use:   "evict <identity>...",
	Short: "Remove cached recommendations so that they are computed again",
	Run: func(cmd *cobra.Command, args []string) {
		e := openEngine(cmd)
		defer closeEngine(e)
		ctx := context.Background()
		identities := args
		if all, _ := cmd.Flags().GetBool("all"); all {
			var err error
			if identities, err = e.Cache.Identities(ctx); err != nil {
				log.Logger().Fatal("failed to list cached identities", zap.Error(err))
			}
		} else if len(args) == 0 {
			log.Logger().Fatal("no identity to evict")
		}
		for _, identity := range identities {
			evict(ctx, e, identity)
		}
	},
}

func evict(ctx context.Context, e *engine.Engine, identity string) {
	if err := e.Cache.Evict(ctx, identity); err != nil {
		log.Logger().Fatal("failed to evict recommendations", zap.String("identity", identity), zap.Error(err))
	}
	log.Logger().Info("evict recommendations", zap.String("identity", identity))
}

// printScores prints scores with game names. Games without metadata keep an
// empty name.
func printScores(ctx context.Context, e *engine.Engine, scores []cache.Score) {
	rows := lo.Map(scores, func(s cache.Score, _ int) []string {
		var name string
		if game, err := e.Catalog.GetGame(ctx, s.ItemId); err == nil {
			name = game.Name
		} else if !errors.Is(err, data.ErrGameNotExist) {
			log.Logger().Fatal("failed to get game", zap.Int64("game_id", s.ItemId), zap.Error(err))
		}
		return []string{strconv.FormatInt(s.ItemId, 10), name, formatScore(s.Score)}
	})
	renderTable(os.Stdout, []string{"game_id", "name", "score"}, rows)
}

func printRendered(entries []logics.RenderedEntry) {
	rows := lo.Map(entries, func(entry logics.RenderedEntry, _ int) []string {
		return []string{strconv.FormatInt(entry.GameId, 10), entry.Name, formatScore(entry.Score)}
	})
	renderTable(os.Stdout, []string{"game_id", "name", "score"}, rows)
}

func init() {
	recommendCommand.Flags().Bool("refresh", false, "evict cached recommendations first")
	recommendCommand.Flags().IntP("limit", "n", 0, "number of games, 0 for all")
	evictCommand.Flags().Bool("all", false, "evict every cached identity")
	rootCommand.AddCommand(recommendCommand, evictCommand)
}
