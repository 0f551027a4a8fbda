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
	"regexp"
	"sync"

	"github.com/gorse-io/meeple/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB is the rating store based on MongoDB.
type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string

	topologyMu sync.Mutex
	topology   *bool
}

func (db *MongoDB) collection(name string) *mongo.Collection {
	return db.client.Database(db.dbName).Collection(name)
}

// Init collections and indices in MongoDB.
func (db *MongoDB) Init() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	for _, name := range []string{db.UsersTable(), db.GamesTable(), db.RatingsTable(), db.CountersTable()} {
		if !lo.Contains(collections, name) {
			if err = d.CreateCollection(ctx, name); err != nil {
				return errors.Trace(err)
			}
		}
	}
	if _, err = d.Collection(db.UsersTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"name": 1},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return errors.Trace(err)
	}
	if _, err = d.Collection(db.RatingsTable()).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "game_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"game_id": 1}},
	}); err != nil {
		return errors.Trace(err)
	}
	if _, err = d.Collection(db.GamesTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.M{"noofratings": -1},
	}); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (db *MongoDB) Ping() error {
	return db.client.Ping(context.Background(), nil)
}

func (db *MongoDB) Close() error {
	return db.client.Disconnect(context.Background())
}

func (db *MongoDB) Purge() error {
	ctx := context.Background()
	for _, name := range []string{db.RatingsTable(), db.UsersTable(), db.GamesTable(), db.CountersTable()} {
		if _, err := db.collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (db *MongoDB) BatchInsertGames(ctx context.Context, games []Game) error {
	if len(games) == 0 {
		return nil
	}
	var models []mongo.WriteModel
	for _, game := range games {
		models = append(models, mongo.NewReplaceOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"_id": game.Id}).
			SetReplacement(game))
	}
	_, err := db.collection(db.GamesTable()).BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (db *MongoDB) GetGame(ctx context.Context, gameId int64) (Game, error) {
	var game Game
	err := db.collection(db.GamesTable()).FindOne(ctx, bson.M{"_id": gameId}).Decode(&game)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Game{}, errors.Annotatef(ErrGameNotExist, "game %d", gameId)
	} else if err != nil {
		return Game{}, errors.Trace(err)
	}
	return game, nil
}

// nextId increases the named counter and returns its new value.
func (db *MongoDB) nextId(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := db.collection(db.CountersTable()).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return counter.Seq, nil
}

// AddUser relies on the unique index over names, so concurrent callers cannot
// create two users with one name.
func (db *MongoDB) AddUser(ctx context.Context, name string, virtual bool) (int64, error) {
	if _, err := db.GetUser(ctx, name); err == nil {
		return 0, errors.Annotate(ErrNameUnavailable, name)
	} else if !errors.Is(err, ErrUserNotExist) {
		return 0, errors.Trace(err)
	}
	id, err := db.nextId(ctx, db.UsersTable())
	if err != nil {
		return 0, errors.Trace(err)
	}
	_, err = db.collection(db.UsersTable()).InsertOne(ctx, User{Id: id, Name: name, Virtual: virtual})
	if mongo.IsDuplicateKeyError(err) {
		return 0, errors.Annotate(ErrNameUnavailable, name)
	} else if err != nil {
		return 0, errors.Trace(err)
	}
	return id, nil
}

func (db *MongoDB) GetUser(ctx context.Context, name string) (User, error) {
	var user User
	err := db.collection(db.UsersTable()).FindOne(ctx, bson.M{"name": name}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, errors.Annotate(ErrUserNotExist, name)
	} else if err != nil {
		return User{}, errors.Trace(err)
	}
	return user, nil
}

func (db *MongoDB) GetUserById(ctx context.Context, userId int64) (User, error) {
	var user User
	err := db.collection(db.UsersTable()).FindOne(ctx, bson.M{"_id": userId}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, errors.Annotatef(ErrUserNotExist, "user %d", userId)
	} else if err != nil {
		return User{}, errors.Trace(err)
	}
	return user, nil
}

func (db *MongoDB) GetUsers(ctx context.Context) ([]User, error) {
	cur, err := db.collection(db.UsersTable()).Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	var users []User
	if err = cur.All(ctx, &users); err != nil {
		return nil, errors.Trace(err)
	}
	return users, nil
}

func (db *MongoDB) findRatings(ctx context.Context, filter bson.M, sort bson.D) ([]Rating, error) {
	cur, err := db.collection(db.RatingsTable()).Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, errors.Trace(err)
	}
	var ratings []Rating
	if err = cur.All(ctx, &ratings); err != nil {
		return nil, errors.Trace(err)
	}
	return ratings, nil
}

func (db *MongoDB) GetUserRatings(ctx context.Context, userId int64) ([]Rating, error) {
	return db.findRatings(ctx, bson.M{"user_id": userId}, bson.D{{Key: "rating", Value: -1}, {Key: "game_id", Value: 1}})
}

func (db *MongoDB) InsertUserRatings(ctx context.Context, userId int64, ratings map[int64]float64) error {
	rows := ratingRows(userId, ratings)
	if len(rows) == 0 {
		return nil
	}
	var models []mongo.WriteModel
	for _, row := range rows {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"user_id": row.UserId, "game_id": row.GameId}).
			SetUpdate(bson.M{"$set": bson.M{"rating": row.Score}}))
	}
	_, err := db.collection(db.RatingsTable()).BulkWrite(ctx, models)
	return errors.Trace(err)
}

// ReplaceUserRatings deletes then inserts inside a transaction on replica sets
// and sharded clusters. Standalone servers do not support multi-document
// transactions, so readers there may observe the gap.
func (db *MongoDB) ReplaceUserRatings(ctx context.Context, userId int64, ratings map[int64]float64) error {
	transactional, err := db.transactional(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if !transactional {
		return errors.Trace(db.replaceUserRatings(ctx, userId, ratings))
	}
	return db.client.UseSession(ctx, func(sc mongo.SessionContext) error {
		_, err := sc.WithTransaction(sc, func(sc mongo.SessionContext) (any, error) {
			return nil, db.replaceUserRatings(sc, userId, ratings)
		})
		return errors.Trace(err)
	})
}

// replaceUserRatings returns driver errors unwrapped so that WithTransaction
// can retry on transient error labels.
func (db *MongoDB) replaceUserRatings(ctx context.Context, userId int64, ratings map[int64]float64) error {
	c := db.collection(db.RatingsTable())
	if _, err := c.DeleteMany(ctx, bson.M{"user_id": userId}); err != nil {
		return err
	}
	rows := ratingRows(userId, ratings)
	if len(rows) == 0 {
		return nil
	}
	_, err := c.InsertMany(ctx, lo.ToAnySlice(rows))
	return err
}

// transactional reports whether the deployment is a replica set or a sharded
// cluster. The answer is cached after the first successful probe.
func (db *MongoDB) transactional(ctx context.Context) (bool, error) {
	db.topologyMu.Lock()
	defer db.topologyMu.Unlock()
	if db.topology != nil {
		return *db.topology, nil
	}
	var reply struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := db.client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply); err != nil {
		return false, errors.Trace(err)
	}
	transactional := reply.SetName != "" || reply.Msg == "isdbgrid"
	db.topology = &transactional
	return transactional, nil
}

type gameCount struct {
	GameId int64 `bson:"_id"`
	Count  int   `bson:"count"`
}

// popularGames returns ids of games rated by more than minGameRatings users.
func (db *MongoDB) popularGames(ctx context.Context, minGameRatings int) ([]int64, error) {
	cur, err := db.collection(db.RatingsTable()).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$game_id", "count": bson.M{"$sum": 1}}}},
		{{Key: "$match", Value: bson.M{"count": bson.M{"$gt": minGameRatings}}}},
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	var groups []gameCount
	if err = cur.All(ctx, &groups); err != nil {
		return nil, errors.Trace(err)
	}
	return lo.Map(groups, func(g gameCount, _ int) int64 {
		return g.GameId
	}), nil
}

func (db *MongoDB) GetRatings(ctx context.Context, minGameRatings int) ([]Rating, error) {
	gameIds, err := db.popularGames(ctx, minGameRatings)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(gameIds) == 0 {
		return nil, nil
	}
	return db.findRatings(ctx, bson.M{"game_id": bson.M{"$in": gameIds}}, bson.D{{Key: "user_id", Value: 1}, {Key: "game_id", Value: 1}})
}

func (db *MongoDB) unratedGames(ctx context.Context, userId int64, minGameRatings int) ([]int64, error) {
	gameIds, err := db.popularGames(ctx, minGameRatings)
	if err != nil {
		return nil, errors.Trace(err)
	}
	rated, err := db.GetUserRatings(ctx, userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ratedIds := lo.Map(rated, func(r Rating, _ int) int64 { return r.GameId })
	return lo.Without(gameIds, ratedIds...), nil
}

func (db *MongoDB) findGames(ctx context.Context, filter bson.M, n int) ([]Game, error) {
	opts := options.Find().SetSort(bson.D{{Key: "noofratings", Value: -1}, {Key: "_id", Value: 1}})
	if n > 0 {
		opts.SetLimit(int64(n))
	}
	cur, err := db.collection(db.GamesTable()).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var games []Game
	if err = cur.All(ctx, &games); err != nil {
		return nil, errors.Trace(err)
	}
	return games, nil
}

func (db *MongoDB) SuggestGames(ctx context.Context, userId int64, minGameRatings, n int) ([]Game, error) {
	gameIds, err := db.unratedGames(ctx, userId, minGameRatings)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(gameIds) == 0 {
		return nil, nil
	}
	return db.findGames(ctx, bson.M{"_id": bson.M{"$in": gameIds}}, n)
}

func (db *MongoDB) SearchGames(ctx context.Context, userId int64, text string, minGameRatings int) ([]Game, error) {
	gameIds, err := db.unratedGames(ctx, userId, minGameRatings)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(gameIds) == 0 {
		return nil, nil
	}
	return db.findGames(ctx, bson.M{
		"_id":  bson.M{"$in": gameIds},
		"name": primitive.Regex{Pattern: regexp.QuoteMeta(text), Options: "i"},
	}, 0)
}
