// Copyright 2021 gorse Project Authors
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
	"database/sql"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorse-io/meeple/storage"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

// SQLDatabase stores games, users and ratings in MySQL, Postgres or SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init tables and indices.
func (d *SQLDatabase) Init() error {
	type Users struct {
		Id      int64  `gorm:"column:id;primaryKey;autoIncrement"`
		Name    string `gorm:"column:name;size:256;not null;uniqueIndex"`
		Virtual bool   `gorm:"column:is_virtual;not null;default:false"`
	}
	type Games struct {
		Id             int64   `gorm:"column:id;primaryKey;autoIncrement:false"`
		YearPublished  int     `gorm:"column:yearpublished;not null;default:0"`
		MinPlayers     int     `gorm:"column:minplayers;not null;default:0"`
		MaxPlayers     int     `gorm:"column:maxplayers;not null;default:0"`
		Name           string  `gorm:"column:name;size:256;not null"`
		Age            int     `gorm:"column:age;not null;default:0"`
		Description    string  `gorm:"column:description;type:text"`
		NumRatings     int     `gorm:"column:noofratings;not null;default:0"`
		AvgRating      float64 `gorm:"column:avgrating;not null;default:0"`
		BestNumPlayers int     `gorm:"column:bestnumplayers;not null;default:0"`
		LangDependence string  `gorm:"column:langdependence;size:256"`
	}
	type Gameratings struct {
		UserId int64   `gorm:"column:user_id;primaryKey;autoIncrement:false"`
		GameId int64   `gorm:"column:game_id;primaryKey;autoIncrement:false;index"`
		Rating float64 `gorm:"column:rating;not null"`
	}
	db := d.gormDB
	if d.driver == MySQL {
		db = db.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	if err := db.AutoMigrate(Users{}, Games{}, Gameratings{}); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

// Close the connection pool.
func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

// Purge deletes every row. Tables are kept.
func (d *SQLDatabase) Purge() error {
	for _, tableName := range []string{d.RatingsTable(), d.UsersTable(), d.GamesTable()} {
		if err := d.gormDB.Exec("DELETE FROM " + tableName).Error; err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *SQLDatabase) BatchInsertGames(ctx context.Context, games []Game) error {
	if len(games) == 0 {
		return nil
	}
	err := d.gormDB.WithContext(ctx).Table(d.GamesTable()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&games).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) GetGame(ctx context.Context, gameId int64) (Game, error) {
	var games []Game
	if err := d.gormDB.WithContext(ctx).Table(d.GamesTable()).Where("id = ?", gameId).Limit(1).Find(&games).Error; err != nil {
		return Game{}, errors.Trace(err)
	}
	if len(games) == 0 {
		return Game{}, errors.Annotatef(ErrGameNotExist, "game %d", gameId)
	}
	return games[0], nil
}

func (d *SQLDatabase) AddUser(ctx context.Context, name string, virtual bool) (int64, error) {
	user := User{Name: name, Virtual: virtual}
	err := d.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Table(d.UsersTable()).Where("name = ?", name).Count(&count).Error; err != nil {
			return errors.Trace(err)
		}
		if count > 0 {
			return errors.Annotate(ErrNameUnavailable, name)
		}
		return errors.Trace(tx.Table(d.UsersTable()).Create(&user).Error)
	})
	if err != nil {
		if !errors.Is(err, ErrNameUnavailable) {
			// a concurrent insert may have won the unique index
			if _, getErr := d.GetUser(ctx, name); getErr == nil {
				return 0, errors.Annotate(ErrNameUnavailable, name)
			}
		}
		return 0, errors.Trace(err)
	}
	return user.Id, nil
}

func (d *SQLDatabase) GetUser(ctx context.Context, name string) (User, error) {
	var users []User
	if err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).Where("name = ?", name).Limit(1).Find(&users).Error; err != nil {
		return User{}, errors.Trace(err)
	}
	if len(users) == 0 {
		return User{}, errors.Annotate(ErrUserNotExist, name)
	}
	return users[0], nil
}

func (d *SQLDatabase) GetUserById(ctx context.Context, userId int64) (User, error) {
	var users []User
	if err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).Where("id = ?", userId).Limit(1).Find(&users).Error; err != nil {
		return User{}, errors.Trace(err)
	}
	if len(users) == 0 {
		return User{}, errors.Annotatef(ErrUserNotExist, "user %d", userId)
	}
	return users[0], nil
}

func (d *SQLDatabase) GetUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).Order("id").Find(&users).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return users, nil
}

func (d *SQLDatabase) GetUserRatings(ctx context.Context, userId int64) ([]Rating, error) {
	var ratings []Rating
	if err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).
		Where("user_id = ?", userId).
		Order("rating DESC, game_id ASC").
		Find(&ratings).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return ratings, nil
}

func (d *SQLDatabase) InsertUserRatings(ctx context.Context, userId int64, ratings map[int64]float64) error {
	rows := ratingRows(userId, ratings)
	if len(rows) == 0 {
		return nil
	}
	err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "game_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) ReplaceUserRatings(ctx context.Context, userId int64, ratings map[int64]float64) error {
	rows := ratingRows(userId, ratings)
	return d.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(d.RatingsTable()).Where("user_id = ?", userId).Delete(&Rating{}).Error; err != nil {
			return errors.Trace(err)
		}
		if len(rows) == 0 {
			return nil
		}
		return errors.Trace(tx.Table(d.RatingsTable()).Create(&rows).Error)
	})
}

// popularGames selects ids of games rated by more than minGameRatings users.
func (d *SQLDatabase) popularGames(minGameRatings int) *gorm.DB {
	return d.gormDB.Table(d.RatingsTable()).
		Select("game_id").
		Group("game_id").
		Having("COUNT(user_id) > ?", minGameRatings)
}

func (d *SQLDatabase) GetRatings(ctx context.Context, minGameRatings int) ([]Rating, error) {
	var ratings []Rating
	if err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).
		Where("game_id IN (?)", d.popularGames(minGameRatings)).
		Order("user_id, game_id").
		Find(&ratings).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return ratings, nil
}

func (d *SQLDatabase) unratedGames(ctx context.Context, userId int64, minGameRatings int) *gorm.DB {
	rated := d.gormDB.Table(d.RatingsTable()).Select("game_id").Where("user_id = ?", userId)
	return d.gormDB.WithContext(ctx).Table(d.GamesTable()).
		Where("id IN (?)", d.popularGames(minGameRatings)).
		Where("id NOT IN (?)", rated)
}

func (d *SQLDatabase) SuggestGames(ctx context.Context, userId int64, minGameRatings, n int) ([]Game, error) {
	var games []Game
	query := d.unratedGames(ctx, userId, minGameRatings).Order("noofratings DESC, id ASC")
	if n > 0 {
		query = query.Limit(n)
	}
	if err := query.Find(&games).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return games, nil
}

func (d *SQLDatabase) SearchGames(ctx context.Context, userId int64, text string, minGameRatings int) ([]Game, error) {
	var games []Game
	if err := d.unratedGames(ctx, userId, minGameRatings).
		Where("LOWER(name) LIKE ?", "%"+strings.ToLower(text)+"%").
		Order("noofratings DESC, id ASC").
		Find(&games).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return games, nil
}
