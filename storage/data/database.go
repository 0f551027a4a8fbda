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
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

var (
	ErrUserNotExist    = errors.NotFoundf("user")
	ErrGameNotExist    = errors.NotFoundf("game")
	ErrNameUnavailable = errors.AlreadyExistsf("user name")
	ErrNoDatabase      = errors.NotAssignedf("database")
)

// User is a person rating games, or a virtual user standing for a group.
type User struct {
	Id      int64  `gorm:"column:id;primaryKey" bson:"_id"`
	Name    string `gorm:"column:name" bson:"name"`
	Virtual bool   `gorm:"column:is_virtual" bson:"is_virtual"`
}

// Game stores meta data about a board game.
type Game struct {
	Id             int64   `gorm:"column:id;primaryKey;autoIncrement:false" bson:"_id"`
	Name           string  `gorm:"column:name" bson:"name"`
	YearPublished  int     `gorm:"column:yearpublished" bson:"yearpublished"`
	MinPlayers     int     `gorm:"column:minplayers" bson:"minplayers"`
	MaxPlayers     int     `gorm:"column:maxplayers" bson:"maxplayers"`
	Age            int     `gorm:"column:age" bson:"age"`
	Description    string  `gorm:"column:description" bson:"description"`
	NumRatings     int     `gorm:"column:noofratings" bson:"noofratings"`
	AvgRating      float64 `gorm:"column:avgrating" bson:"avgrating"`
	BestNumPlayers int     `gorm:"column:bestnumplayers" bson:"bestnumplayers"`
	LangDependence string  `gorm:"column:langdependence" bson:"langdependence"`
}

// SupportsPlayers reports whether the game can be played by n players.
func (g Game) SupportsPlayers(n int) bool {
	return g.MinPlayers <= n && n <= g.MaxPlayers
}

// Rating is the score a user gave a game. There is at most one rating per (user, game).
type Rating struct {
	UserId int64   `gorm:"column:user_id" bson:"user_id"`
	GameId int64   `gorm:"column:game_id" bson:"game_id"`
	Score  float64 `gorm:"column:rating" bson:"rating"`
}

// ClampRating clamps a user entered score into [minRating, maxRating].
func ClampRating(score, minRating, maxRating float64) float64 {
	return lo.Clamp(score, minRating, maxRating)
}

// SortRatings orders ratings by score descending, then by game id ascending.
func SortRatings(ratings []Rating) {
	slices.SortFunc(ratings, func(a, b Rating) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.GameId, b.GameId)
	})
}

// ratingRows converts a score map into rows ordered by game id.
func ratingRows(userId int64, ratings map[int64]float64) []Rating {
	rows := lo.MapToSlice(ratings, func(gameId int64, score float64) Rating {
		return Rating{UserId: userId, GameId: gameId, Score: score}
	})
	slices.SortFunc(rows, func(a, b Rating) int {
		return cmp.Compare(a.GameId, b.GameId)
	})
	return rows
}

// Database is the rating store.
type Database interface {
	Init() error
	Ping() error
	Close() error
	Purge() error
	// BatchInsertGames inserts games or overwrites existing ones.
	BatchInsertGames(ctx context.Context, games []Game) error
	GetGame(ctx context.Context, gameId int64) (Game, error)
	// AddUser creates a user and returns its id, or ErrNameUnavailable if the name is taken.
	AddUser(ctx context.Context, name string, virtual bool) (int64, error)
	GetUser(ctx context.Context, name string) (User, error)
	GetUserById(ctx context.Context, userId int64) (User, error)
	GetUsers(ctx context.Context) ([]User, error)
	// GetUserRatings returns ratings of a user ordered by score descending.
	GetUserRatings(ctx context.Context, userId int64) ([]Rating, error)
	// InsertUserRatings inserts ratings, overwriting the score of games already rated.
	InsertUserRatings(ctx context.Context, userId int64, ratings map[int64]float64) error
	// ReplaceUserRatings atomically replaces every rating of a user.
	ReplaceUserRatings(ctx context.Context, userId int64, ratings map[int64]float64) error
	// GetRatings returns ratings of games rated by more than minGameRatings users.
	GetRatings(ctx context.Context, minGameRatings int) ([]Rating, error)
	// SuggestGames returns the most rated games the user has not rated yet.
	SuggestGames(ctx context.Context, userId int64, minGameRatings, n int) ([]Game, error)
	// SearchGames returns unrated games whose name contains text, ignoring case.
	SearchGames(ctx context.Context, userId int64, text string, minGameRatings int) ([]Game, error)
}

// Open connects to a rating store. The backend is chosen by the URL prefix.
func Open(path, tablePrefix string) (Database, error) {
	var err error
	if strings.HasPrefix(path, storage.MySQLPrefix) {
		name := path[len(storage.MySQLPrefix):]
		if name, err = storage.AppendMySQLParams(name, map[string]string{
			"sql_mode":  "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
			"parseTime": "true",
		}); err != nil {
			return nil, errors.Trace(err)
		}
		database := new(SQLDatabase)
		database.driver = MySQL
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = otelsql.Open("mysql", name,
			otelsql.WithAttributes(attribute.String("db.system", "mysql")),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return newInstrumented(database), nil
	} else if strings.HasPrefix(path, storage.PostgresPrefix) || strings.HasPrefix(path, storage.PostgreSQLPrefix) {
		database := new(SQLDatabase)
		database.driver = Postgres
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = otelsql.Open("postgres", path,
			otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return newInstrumented(database), nil
	} else if strings.HasPrefix(path, storage.MongoPrefix) || strings.HasPrefix(path, storage.MongoSrvPrefix) {
		database := new(MongoDB)
		opts := options.Client()
		opts.Monitor = otelmongo.NewMonitor()
		opts.ApplyURI(path)
		if database.client, err = mongo.Connect(context.Background(), opts); err != nil {
			return nil, errors.Trace(err)
		}
		cs, err := connstring.ParseAndValidate(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database.dbName = cs.Database
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		return newInstrumented(database), nil
	} else if strings.HasPrefix(path, storage.SQLitePrefix) {
		if path, err = storage.AppendURLParams(path, []lo.Tuple2[string, string]{
			{A: "_pragma", B: "busy_timeout(10000)"},
			{A: "_pragma", B: "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		name := path[len(storage.SQLitePrefix):]
		database := new(SQLDatabase)
		database.driver = SQLite
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = otelsql.Open("sqlite", name,
			otelsql.WithAttributes(attribute.String("db.system", "sqlite")),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		gormConfig := storage.NewGORMConfig(tablePrefix)
		gormConfig.Logger = &zapgorm2.Logger{
			ZapLogger:                 log.Logger(),
			LogLevel:                  logger.Warn,
			SlowThreshold:             10 * time.Second,
			SkipCallerLookup:          false,
			IgnoreRecordNotFoundError: true,
		}
		database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: database.client}, gormConfig)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return newInstrumented(database), nil
	}
	return nil, errors.Errorf("unknown database: %s", log.RedactDBURL(path))
}
