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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/storage/data"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var initCommand = &cobra.Command{
	Use:   "init",
	Short: "Create tables and indices of the rating store",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		e := openEngine(cmd)
		defer closeEngine(e)
		if err := e.DataClient.Init(); err != nil {
			log.Logger().Fatal("failed to initialize rating store", zap.Error(err))
		}
		log.Logger().Info("rating store initialized")
	},
}

var userCommand = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCommand = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEngine(cmd)
		defer closeEngine(e)
		userId, err := e.DataClient.AddUser(context.Background(), args[0], false)
		if err != nil {
			log.Logger().Fatal("failed to add user", zap.String("name", args[0]), zap.Error(err))
		}
		fmt.Println(userId)
	},
}

var userRatingsCommand = &cobra.Command{
	Use:   "ratings <name>",
	Short: "List ratings of a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEngine(cmd)
		defer closeEngine(e)
		ctx := context.Background()
		user, err := e.DataClient.GetUser(ctx, args[0])
		if err != nil {
			log.Logger().Fatal("failed to get user", zap.String("name", args[0]), zap.Error(err))
		}
		ratings, err := e.DataClient.GetUserRatings(ctx, user.Id)
		if err != nil {
			log.Logger().Fatal("failed to get user ratings", zap.String("name", args[0]), zap.Error(err))
		}
		rows := make([][]string, 0, len(ratings))
		for _, rating := range ratings {
			var name string
			if game, err := e.Catalog.GetGame(ctx, rating.GameId); err == nil {
				name = game.Name
			} else if !errors.Is(err, data.ErrGameNotExist) {
				log.Logger().Fatal("failed to get game", zap.Int64("game_id", rating.GameId), zap.Error(err))
			}
			rows = append(rows, []string{strconv.FormatInt(rating.GameId, 10), name, formatScore(rating.Score)})
		}
		renderTable(os.Stdout, []string{"game_id", "name", "rating"}, rows)
	},
}

var rateCommand = &cobra.Command{
	Use:   "rate <name> <game>=<score>...",
	Short: "Rate games. Scores are clamped into the configured range",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEngine(cmd)
		defer closeEngine(e)
		ratings, err := parseRatings(args[1:], e.Config.Recommend.MinRating, e.Config.Recommend.MaxRating)
		if err != nil {
			log.Logger().Fatal("invalid ratings", zap.Error(err))
		}
		ctx := context.Background()
		user, err := e.DataClient.GetUser(ctx, args[0])
		if err != nil {
			log.Logger().Fatal("failed to get user", zap.String("name", args[0]), zap.Error(err))
		}
		if err = e.DataClient.InsertUserRatings(ctx, user.Id, ratings); err != nil {
			log.Logger().Fatal("failed to insert ratings", zap.String("name", args[0]), zap.Error(err))
		}
		log.Logger().Info("insert ratings", zap.String("name", user.Name), zap.Int("n", len(ratings)))
	},
}

// parseRatings parses "game=score" pairs. A later pair for the same game wins.
func parseRatings(pairs []string, minRating, maxRating float64) (map[int64]float64, error) {
	ratings := make(map[int64]float64, len(pairs))
	for _, pair := range pairs {
		game, score, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.NotValidf("rating %q", pair)
		}
		gameId, err := strconv.ParseInt(strings.TrimSpace(game), 10, 64)
		if err != nil {
			return nil, errors.Annotatef(err, "rating %q", pair)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(score), 64)
		if err != nil {
			return nil, errors.Annotatef(err, "rating %q", pair)
		}
		ratings[gameId] = data.ClampRating(value, minRating, maxRating)
	}
	return ratings, nil
}

func init() {
	userCommand.AddCommand(userAddCommand, userRatingsCommand)
	rootCommand.AddCommand(initCommand, userCommand, rateCommand)
}
