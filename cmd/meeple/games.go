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
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/storage/data"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const importBatchSize = 1000

var gamesCommand = &cobra.Command{
	Use:   "games",
	Short: "Browse and import games",
}

var gamesSuggestCommand = &cobra.Command{
	Use:   "suggest <name>",
	Short: "Suggest popular games the user has not rated",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEngine(cmd)
		defer closeEngine(e)
		n, _ := cmd.Flags().GetInt("limit")
		ctx := context.Background()
		user, err := e.DataClient.GetUser(ctx, args[0])
		if err != nil {
			log.Logger().Fatal("failed to get user", zap.String("name", args[0]), zap.Error(err))
		}
		games, err := e.DataClient.SuggestGames(ctx, user.Id, e.Config.Recommend.MinGameRatings, n)
		if err != nil {
			log.Logger().Fatal("failed to suggest games", zap.Error(err))
		}
		printGames(games)
	},
}

var gamesSearchCommand = &cobra.Command{
	Use:   "search <name> <text>",
	Short: "Search popular games the user has not rated by name",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEngine(cmd)
		defer closeEngine(e)
		ctx := context.Background()
		user, err := e.DataClient.GetUser(ctx, args[0])
		if err != nil {
			log.Logger().Fatal("failed to get user", zap.String("name", args[0]), zap.Error(err))
		}
		games, err := e.DataClient.SearchGames(ctx, user.Id, args[1], e.Config.Recommend.MinGameRatings)
		if err != nil {
			log.Logger().Fatal("failed to search games", zap.Error(err))
		}
		printGames(games)
	},
}

var gamesImportCommand = &cobra.Command{
	Use:   "import <file>",
	Short: "Import games from a CSV file with a header row",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEngine(cmd)
		defer closeEngine(e)
		file, err := os.Open(args[0])
		if err != nil {
			log.Logger().Fatal("failed to open file", zap.String("path", args[0]), zap.Error(err))
		}
		defer file.Close()
		stat, err := file.Stat()
		if err != nil {
			log.Logger().Fatal("failed to stat file", zap.String("path", args[0]), zap.Error(err))
		}
		bar := progressbar.DefaultBytes(stat.Size(), "importing games")
		reader := progressbar.NewReader(file, bar)
		n, err := importGames(context.Background(), e.DataClient, &reader)
		if err != nil {
			log.Logger().Fatal("failed to import games", zap.Error(err))
		}
		_ = bar.Finish()
		log.Logger().Info("import games", zap.Int("n", n))
	},
}

func printGames(games []data.Game) {
	rows := make([][]string, 0, len(games))
	for _, game := range games {
		rows = append(rows, []string{
			strconv.FormatInt(game.Id, 10),
			game.Name,
			strconv.Itoa(game.MinPlayers) + "-" + strconv.Itoa(game.MaxPlayers),
			strconv.Itoa(game.NumRatings),
		})
	}
	renderTable(os.Stdout, []string{"game_id", "name", "players", "ratings"}, rows)
}

// importGames reads games from CSV. Columns are matched by header names, which
// follow the columns of the games table. Unknown columns are ignored.
func importGames(ctx context.Context, database data.Database, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return 0, errors.Annotate(err, "read header")
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	if _, ok := columns["id"]; !ok {
		return 0, errors.NotValidf("header without id column")
	}

	var (
		batch []data.Game
		count int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return count, errors.Trace(err)
		}
		game, err := parseGame(columns, record)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return count, errors.Annotatef(err, "line %d", line)
		}
		batch = append(batch, game)
		if len(batch) >= importBatchSize {
			if err = database.BatchInsertGames(ctx, batch); err != nil {
				return count, errors.Trace(err)
			}
			count += len(batch)
			batch = batch[:0]
		}
	}
	if err = database.BatchInsertGames(ctx, batch); err != nil {
		return count, errors.Trace(err)
	}
	return count + len(batch), nil
}

func parseGame(columns map[string]int, record []string) (data.Game, error) {
	var (
		game data.Game
		err  error
	)
	field := func(name string) string {
		if i, ok := columns[name]; ok && i < len(record) {
			return record[i]
		}
		return ""
	}
	parseInt := func(name string, dst *int) {
		if s := field(name); s != "" && err == nil {
			*dst, err = strconv.Atoi(s)
			err = errors.Annotate(err, name)
		}
	}
	if game.Id, err = strconv.ParseInt(field("id"), 10, 64); err != nil {
		return data.Game{}, errors.Annotate(err, "id")
	}
	game.Name = field("name")
	game.Description = field("description")
	game.LangDependence = field("langdependence")
	parseInt("yearpublished", &game.YearPublished)
	parseInt("minplayers", &game.MinPlayers)
	parseInt("maxplayers", &game.MaxPlayers)
	parseInt("age", &game.Age)
	parseInt("noofratings", &game.NumRatings)
	parseInt("bestnumplayers", &game.BestNumPlayers)
	if s := field("avgrating"); s != "" && err == nil {
		game.AvgRating, err = strconv.ParseFloat(s, 64)
		err = errors.Annotate(err, "avgrating")
	}
	if err != nil {
		return data.Game{}, err
	}
	return game, nil
}

func init() {
	gamesSuggestCommand.Flags().IntP("limit", "n", 10, "number of games")
	gamesCommand.AddCommand(gamesSuggestCommand, gamesSearchCommand, gamesImportCommand)
	rootCommand.AddCommand(gamesCommand)
}
